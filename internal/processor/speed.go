package processor

import (
	"context"
	"fmt"
	"math"
	"time"

	"ingestpipe/internal/alert"
	"ingestpipe/internal/model"
	"ingestpipe/internal/telemetrystore"
)

const earthRadiusKm = 6371.0

// SpeedProcessor flags implausible speed between consecutive samples for a
// device (spec.md §4.4.3). The elapsed time used as the speed denominator
// is floored at MinInterval to avoid amplifying noise from a near-zero
// interval, but the speed is still computed and evaluated for samples
// closer together than that; an implied speed above MaxPlausibleKmh is
// treated as a data glitch rather than an alert-worthy event.
type SpeedProcessor struct {
	Store           telemetrystore.Store
	ThresholdKmh    float64
	MinInterval     time.Duration
	MaxPlausibleKmh float64
}

// NewSpeedProcessor constructs a processor backed by store, using the
// configured threshold and minimum sample interval (spec.md §6.4
// processors.speed).
func NewSpeedProcessor(store telemetrystore.Store, thresholdKmh, minIntervalSeconds float64) *SpeedProcessor {
	return &SpeedProcessor{
		Store:           store,
		ThresholdKmh:    thresholdKmh,
		MinInterval:     time.Duration(minIntervalSeconds * float64(time.Second)),
		MaxPlausibleKmh: 500,
	}
}

func (p *SpeedProcessor) Name() string { return "speed-statistics" }

func (p *SpeedProcessor) Process(ctx context.Context, s model.TelemetrySample, _ string) ([]alert.CreateRequest, error) {
	prior, ok, err := p.Store.PriorBefore(ctx, s.DeviceID, s.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("speed processor: lookup prior sample: %w", err)
	}
	if !ok {
		return nil, nil
	}

	elapsed := s.Timestamp.Sub(prior.Timestamp)
	if elapsed < p.MinInterval {
		// Floor the denominator rather than skipping the sample: the floor
		// guards against divide-by-small-number amplification, it does not
		// suppress alerting on genuinely fast short-interval movement.
		elapsed = p.MinInterval
	}

	distanceKm := haversineKm(prior.Latitude, prior.Longitude, s.Latitude, s.Longitude)
	speedKmh := distanceKm / elapsed.Hours()

	if speedKmh > p.MaxPlausibleKmh {
		// Implausible jump, most likely a coordinate glitch rather than
		// genuine travel; the anomaly processor handles bad coordinates.
		return nil, nil
	}

	if speedKmh > p.ThresholdKmh {
		return []alert.CreateRequest{{
			DeviceID:      s.DeviceID,
			AlertType:     model.AlertTypeSpeed,
			Message:       fmt.Sprintf("Implied speed %.1f km/h exceeds threshold", speedKmh),
			Latitude:      s.Latitude,
			Longitude:     s.Longitude,
			HasCoords:     true,
			ProcessorName: p.Name(),
		}}, nil
	}
	return nil, nil
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}
