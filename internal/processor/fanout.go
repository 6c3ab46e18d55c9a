package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ingestpipe/internal/alert"
	"ingestpipe/internal/logging"
	"ingestpipe/internal/metrics"
	"ingestpipe/internal/model"
)

// Registry is the explicit processor fan-out (spec.md §9's redesign away
// from an implicit event bus): a fixed list of processors dispatched
// concurrently for every persisted sample, each isolated from the others'
// panics and errors.
type Registry struct {
	processors []Processor
	engine     *alert.Engine
	log        logging.Logger
}

// NewRegistry constructs a Registry over processors, dispatching emitted
// alerts through engine.
func NewRegistry(processors []Processor, engine *alert.Engine, log logging.Logger) *Registry {
	if log == nil {
		log = logging.Discard()
	}
	return &Registry{processors: processors, engine: engine, log: log}
}

// Dispatch runs every registered processor against sample concurrently.
// A processor that panics or returns an error is logged and skipped; it
// never prevents its peers from running or the caller from returning.
func (r *Registry) Dispatch(ctx context.Context, sample model.TelemetrySample, persistedID string) {
	var wg sync.WaitGroup
	wg.Add(len(r.processors))
	for _, p := range r.processors {
		go func(p Processor) {
			defer wg.Done()
			r.runOne(ctx, p, sample, persistedID)
		}(p)
	}
	wg.Wait()
}

func (r *Registry) runOne(ctx context.Context, p Processor, sample model.TelemetrySample, persistedID string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error(ctx, "processor panicked",
				"processor", p.Name(), "deviceId", sample.DeviceID, "panic", fmt.Sprint(rec))
		}
	}()

	start := time.Now()
	requests, err := p.Process(ctx, sample, persistedID)
	metrics.ObserveProcessorDuration(p.Name(), time.Since(start))
	if err != nil {
		r.log.Error(ctx, "processor failed",
			"processor", p.Name(), "deviceId", sample.DeviceID, "error", err)
		return
	}

	for _, req := range requests {
		a, err := r.engine.Create(ctx, req)
		if err != nil {
			r.log.Error(ctx, "alert create failed",
				"processor", p.Name(), "deviceId", sample.DeviceID, "error", err)
			continue
		}
		metrics.ObserveAlert(string(a.AlertType), string(a.Severity))
	}
}
