// Package ingest implements the Ingest Facade (spec.md C8): the single
// entry point called by the HTTP layer, gating every sample through
// validation, rate limiting, and either the background queue or a
// synchronous inline fallback.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ingestpipe/internal/logging"
	"ingestpipe/internal/metrics"
	"ingestpipe/internal/model"
	"ingestpipe/internal/processor"
	"ingestpipe/internal/queue"
	"ingestpipe/internal/ratelimit"
	"ingestpipe/internal/telemetrystore"
)

// RejectReason enumerates why Submit declined a sample.
type RejectReason string

const (
	RejectMalformed        RejectReason = "MALFORMED"
	RejectRateLimitGlobal  RejectReason = "RATE_LIMITED_GLOBAL"
	RejectRateLimitAddress RejectReason = "RATE_LIMITED_ADDRESS"
	RejectRateLimitDevice  RejectReason = "RATE_LIMITED_DEVICE"
	RejectQueueFull        RejectReason = "QUEUE_FULL_REJECT"
	RejectStoreUnavailable RejectReason = "STORE_UNAVAILABLE"
)

// Outcome is the result of Submit. Exactly one of the Accepted/Rejected
// shapes applies, selected by Status.
type Outcome struct {
	Status      string // ACCEPTED_QUEUED | ACCEPTED_SYNC | REJECTED
	RequestID   string
	QueueDepth  int
	PersistedID string
	Reason      RejectReason
	RetryAfter  time.Duration
}

// Fallback is the configured overflow policy for a full queue.
type Fallback string

const (
	FallbackSync   Fallback = "sync"
	FallbackReject Fallback = "reject"
	FallbackDrop   Fallback = "drop"
)

// Facade wires the rate limiter, queue, telemetry store, and processor
// registry into the single submit operation described in spec.md §4.1.
type Facade struct {
	limiter  *ratelimit.Limiter
	queue    *queue.Queue // nil when queue.enabled is false
	fallback Fallback
	store    telemetrystore.Store
	registry *processor.Registry
	log      logging.Logger
}

// New constructs a Facade. q may be nil, meaning the queue is disabled and
// every submission is processed synchronously. Pass nil and call SetQueue
// once the queue itself has been constructed if the queue's handler needs
// to close over this Facade (see cmd/ingest-service).
func New(limiter *ratelimit.Limiter, q *queue.Queue, fallback Fallback, store telemetrystore.Store, registry *processor.Registry, log logging.Logger) *Facade {
	if log == nil {
		log = logging.Discard()
	}
	return &Facade{limiter: limiter, queue: q, fallback: fallback, store: store, registry: registry, log: log}
}

// SetQueue attaches q to an already-constructed Facade, breaking the
// construction cycle between a Facade (which offers into the queue) and
// a Queue (whose drain handler is Facade.Handle).
func (f *Facade) SetQueue(q *queue.Queue) {
	f.queue = q
}

// Submit runs sample through validation, rate limiting, and either the
// background queue or an inline synchronous path (spec.md §4.1 algorithm).
func (f *Facade) Submit(ctx context.Context, sample model.TelemetrySample, clientAddress string) Outcome {
	out := f.submit(ctx, sample, clientAddress)
	metrics.ObserveSubmission(out.Status)
	if out.Status == "REJECTED" {
		metrics.ObserveRejection(string(out.Reason))
	}
	if f.queue != nil {
		metrics.SetQueueDepth(f.queue.Status().Depth)
	}
	return out
}

func (f *Facade) submit(ctx context.Context, sample model.TelemetrySample, clientAddress string) Outcome {
	if !sample.Valid() {
		return Outcome{Status: "REJECTED", Reason: RejectMalformed}
	}

	dec := f.limiter.Admit(clientAddress, sample.DeviceID)
	if !dec.Allowed {
		return Outcome{Status: "REJECTED", Reason: rateLimitReason(dec.Scope), RetryAfter: dec.RetryAfter}
	}

	requestID := uuid.NewString()

	if f.queue == nil {
		return f.processInline(ctx, sample, requestID)
	}

	env := model.Envelope{Sample: sample, RequestID: requestID, QueuedAt: time.Now()}
	if f.queue.Offer(env) {
		return Outcome{Status: "ACCEPTED_QUEUED", RequestID: requestID, QueueDepth: f.queue.Status().Depth}
	}

	switch f.fallback {
	case FallbackReject:
		return Outcome{Status: "REJECTED", Reason: RejectQueueFull}
	case FallbackDrop:
		f.queue.RecordDrop()
		return Outcome{Status: "ACCEPTED_QUEUED", RequestID: requestID}
	default:
		return f.processInline(ctx, sample, requestID)
	}
}

// processInline performs the persist + fan-out path used both when the
// queue is disabled and when the sync overflow fallback applies.
func (f *Facade) processInline(ctx context.Context, sample model.TelemetrySample, requestID string) Outcome {
	id, err := f.store.Save(ctx, sample)
	if err != nil {
		f.log.Error(ctx, "inline persist failed", "deviceId", sample.DeviceID, "requestId", requestID, "error", err)
		return Outcome{Status: "REJECTED", Reason: RejectStoreUnavailable}
	}
	f.registry.Dispatch(ctx, sample, id)
	return Outcome{Status: "ACCEPTED_SYNC", RequestID: requestID, PersistedID: id}
}

// Handle is the queue.Handler invoked by worker goroutines to persist and
// fan out a dequeued sample (spec.md §4.3 step after dequeue).
// A save failing with telemetrystore.ErrUnavailable is retried up to three
// attempts in all, with a 50ms backoff doubled per retry.
func (f *Facade) Handle(ctx context.Context, sample model.TelemetrySample) error {
	var id string
	var err error
	backoff := 50 * time.Millisecond
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("persist telemetry sample: %w", ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		id, err = f.store.Save(ctx, sample)
		if err == nil || !errors.Is(err, telemetrystore.ErrUnavailable) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("persist telemetry sample: %w", err)
	}
	f.registry.Dispatch(ctx, sample, id)
	return nil
}

func rateLimitReason(scope ratelimit.Scope) RejectReason {
	switch scope {
	case ratelimit.ScopeGlobal:
		return RejectRateLimitGlobal
	case ratelimit.ScopeAddress:
		return RejectRateLimitAddress
	case ratelimit.ScopeDevice:
		return RejectRateLimitDevice
	default:
		return RejectRateLimitGlobal
	}
}
