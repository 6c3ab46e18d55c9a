// Package processor implements the analytic processors and their fan-out
// (spec.md C5/C6): coordinate-anomaly, geofence, speed-statistics, and
// aggregation, each a pure function of a sample (plus optional historical
// context) that may emit zero or more alerts.
package processor

import (
	"context"

	"ingestpipe/internal/alert"
	"ingestpipe/internal/model"
)

// Processor consumes one (sample, persistedID) pair and returns zero or
// more alert creation requests. Implementations must be independent:
// Process must not observe or affect any other processor.
type Processor interface {
	Name() string
	Process(ctx context.Context, sample model.TelemetrySample, persistedID string) ([]alert.CreateRequest, error)
}
