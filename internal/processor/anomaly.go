package processor

import (
	"context"
	"math"

	"ingestpipe/internal/alert"
	"ingestpipe/internal/model"
)

// AnomalyProcessor flags structurally invalid or extreme coordinates
// (spec.md §4.4.1).
type AnomalyProcessor struct {
	ExtremeLatitude float64
}

// NewAnomalyProcessor constructs a processor with the configured extreme-
// latitude threshold (spec.md §6.4 processors.anomaly.extremeLatitude).
func NewAnomalyProcessor(extremeLatitude float64) *AnomalyProcessor {
	return &AnomalyProcessor{ExtremeLatitude: extremeLatitude}
}

func (p *AnomalyProcessor) Name() string { return "coordinate-anomaly" }

func (p *AnomalyProcessor) Process(_ context.Context, s model.TelemetrySample, _ string) ([]alert.CreateRequest, error) {
	lat, lon := s.Latitude, s.Longitude

	if math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		return []alert.CreateRequest{{
			DeviceID:      s.DeviceID,
			AlertType:     model.AlertTypeAnomaly,
			Message:       "Invalid coordinates detected",
			Latitude:      lat,
			Longitude:     lon,
			HasCoords:     true,
			ProcessorName: p.Name(),
		}}, nil
	}

	if math.Abs(lat) > p.ExtremeLatitude {
		return []alert.CreateRequest{{
			DeviceID:      s.DeviceID,
			AlertType:     model.AlertTypeAnomaly,
			Message:       "Extreme location detected",
			Latitude:      lat,
			Longitude:     lon,
			HasCoords:     true,
			ProcessorName: p.Name(),
		}}, nil
	}

	return nil, nil
}
