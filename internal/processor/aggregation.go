package processor

import (
	"context"

	"ingestpipe/internal/alert"
	"ingestpipe/internal/model"
)

// AggregationProcessor is a placeholder in the fan-out registry for
// rollup/aggregation analytics (spec.md §4.4.4's Non-goal of statistical
// aggregation). It participates in dispatch so the registry's shape and
// failure-isolation guarantees are exercised even though no aggregate
// alert is produced yet.
type AggregationProcessor struct{}

func NewAggregationProcessor() *AggregationProcessor { return &AggregationProcessor{} }

func (p *AggregationProcessor) Name() string { return "aggregation" }

func (p *AggregationProcessor) Process(_ context.Context, _ model.TelemetrySample, _ string) ([]alert.CreateRequest, error) {
	return nil, nil
}
