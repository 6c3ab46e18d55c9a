package processor

import (
	"context"

	"ingestpipe/internal/alert"
	"ingestpipe/internal/config"
	"ingestpipe/internal/model"
)

// GeofenceProcessor flags samples inside a configured restricted region
// (spec.md §4.4.2). The region list is operator-supplied configuration;
// with no regions configured the processor never alerts.
type GeofenceProcessor struct {
	Regions []config.Region
}

// NewGeofenceProcessor constructs a processor over the given regions.
func NewGeofenceProcessor(regions []config.Region) *GeofenceProcessor {
	return &GeofenceProcessor{Regions: regions}
}

func (p *GeofenceProcessor) Name() string { return "geofence" }

func (p *GeofenceProcessor) Process(_ context.Context, s model.TelemetrySample, _ string) ([]alert.CreateRequest, error) {
	for _, r := range p.Regions {
		if !r.Contains(s.Latitude, s.Longitude) {
			continue
		}
		message := "Sample inside restricted area"
		if r.Forbidden {
			message = "Sample inside forbidden restricted area"
		}
		return []alert.CreateRequest{{
			DeviceID:      s.DeviceID,
			AlertType:     model.AlertTypeGeofence,
			Message:       message,
			Latitude:      s.Latitude,
			Longitude:     s.Longitude,
			HasCoords:     true,
			ProcessorName: p.Name(),
			Metadata:      r.Name,
		}}, nil
	}
	return nil, nil
}
