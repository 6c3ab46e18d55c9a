package ingest

import (
	"context"
	"testing"
	"time"

	"ingestpipe/internal/alert"
	"ingestpipe/internal/model"
	"ingestpipe/internal/processor"
	"ingestpipe/internal/queue"
	"ingestpipe/internal/ratelimit"
	"ingestpipe/internal/telemetrystore"
)

func noopLimiter() *ratelimit.Limiter {
	return ratelimit.New(ratelimit.Config{Enabled: false}, nil)
}

func noopRegistry() *processor.Registry {
	return processor.NewRegistry(nil, alert.NewEngine(alert.NewMemStore(), nil, nil), nil)
}

func validSample() model.TelemetrySample {
	return model.TelemetrySample{DeviceID: "d1", Latitude: 1, Longitude: 1, Timestamp: time.Now()}
}

// blockingHandler returns a queue.Handler that blocks until block is closed,
// used to hold a single worker busy so overflow fallbacks can be exercised.
func blockingHandler(block chan struct{}) queue.Handler {
	return func(_ context.Context, _ model.TelemetrySample) error {
		<-block
		return nil
	}
}

func TestFacade_Submit_RejectsMalformedSample(t *testing.T) {
	f := New(noopLimiter(), nil, FallbackReject, telemetrystore.NewMemStore(), noopRegistry(), nil)

	out := f.Submit(t.Context(), model.TelemetrySample{}, "1.2.3.4")
	if out.Status != "REJECTED" || out.Reason != RejectMalformed {
		t.Fatalf("expected malformed rejection, got %+v", out)
	}
}

func TestFacade_Submit_RateLimitedPropagatesScope(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{
		Enabled:            true,
		GlobalPerSecond:    0,
		AddressPerMinute:   10,
		AddressBurstPerMin: 10,
		DevicePerMinute:    10,
		CacheMaxSize:       16,
		CacheIdleTimeout:   time.Minute,
	}, nil)
	f := New(limiter, nil, FallbackReject, telemetrystore.NewMemStore(), noopRegistry(), nil)

	out := f.Submit(t.Context(), validSample(), "1.2.3.4")
	if out.Status != "REJECTED" || out.Reason != RejectRateLimitGlobal {
		t.Fatalf("expected global rate-limit rejection, got %+v", out)
	}
}

func TestFacade_Submit_NoQueueProcessesInlineSynchronously(t *testing.T) {
	store := telemetrystore.NewMemStore()
	f := New(noopLimiter(), nil, FallbackReject, store, noopRegistry(), nil)

	out := f.Submit(t.Context(), validSample(), "1.2.3.4")
	if out.Status != "ACCEPTED_SYNC" || out.PersistedID == "" {
		t.Fatalf("expected synchronous acceptance with a persisted id, got %+v", out)
	}
	if _, ok, _ := store.LatestForDevice(t.Context(), "d1"); !ok {
		t.Fatal("expected sample to be persisted inline")
	}
}

func TestFacade_Submit_QueueAcceptsAndDrains(t *testing.T) {
	store := telemetrystore.NewMemStore()
	f := New(noopLimiter(), nil, FallbackReject, store, noopRegistry(), nil)
	q := queue.New(4, 1, f.Handle, nil)
	f.SetQueue(q)
	q.Start()
	defer q.Shutdown(time.Second)

	out := f.Submit(t.Context(), validSample(), "1.2.3.4")
	if out.Status != "ACCEPTED_QUEUED" {
		t.Fatalf("expected queued acceptance, got %+v", out)
	}

	deadline := time.Now().Add(time.Second)
	for {
		if _, ok, _ := store.LatestForDevice(t.Context(), "d1"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected queued sample to be persisted by a worker")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestFacade_Submit_OverflowRejectFallback(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	store := telemetrystore.NewMemStore()
	f := New(noopLimiter(), nil, FallbackReject, store, noopRegistry(), nil)
	q := queue.New(1, 1, blockingHandler(block), nil)
	f.SetQueue(q)
	q.Start()
	defer q.Shutdown(100 * time.Millisecond)

	// Fill the single worker and the single buffer slot.
	if out := f.Submit(t.Context(), validSample(), "1.2.3.4"); out.Status != "ACCEPTED_QUEUED" {
		t.Fatalf("expected first submit to be queued, got %+v", out)
	}
	time.Sleep(20 * time.Millisecond)
	if out := f.Submit(t.Context(), validSample(), "1.2.3.4"); out.Status != "ACCEPTED_QUEUED" {
		t.Fatalf("expected second submit to fill the buffer, got %+v", out)
	}

	out := f.Submit(t.Context(), validSample(), "1.2.3.4")
	if out.Status != "REJECTED" || out.Reason != RejectQueueFull {
		t.Fatalf("expected queue-full rejection, got %+v", out)
	}
}

func TestFacade_Submit_OverflowDropFallback(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	store := telemetrystore.NewMemStore()
	f := New(noopLimiter(), nil, FallbackDrop, store, noopRegistry(), nil)
	q := queue.New(1, 1, blockingHandler(block), nil)
	f.SetQueue(q)
	q.Start()
	defer q.Shutdown(100 * time.Millisecond)

	f.Submit(t.Context(), validSample(), "1.2.3.4")
	time.Sleep(20 * time.Millisecond)
	f.Submit(t.Context(), validSample(), "1.2.3.4")

	out := f.Submit(t.Context(), validSample(), "1.2.3.4")
	if out.Status != "ACCEPTED_QUEUED" {
		t.Fatalf("expected drop fallback to still report queued acceptance, got %+v", out)
	}
	if q.Status().Dropped != 1 {
		t.Fatalf("expected exactly one recorded drop, got %d", q.Status().Dropped)
	}
}

func TestFacade_Submit_OverflowSyncFallback(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	store := telemetrystore.NewMemStore()
	f := New(noopLimiter(), nil, FallbackSync, store, noopRegistry(), nil)
	q := queue.New(1, 1, blockingHandler(block), nil)
	f.SetQueue(q)
	q.Start()
	defer q.Shutdown(100 * time.Millisecond)

	f.Submit(t.Context(), validSample(), "1.2.3.4")
	time.Sleep(20 * time.Millisecond)
	f.Submit(t.Context(), validSample(), "1.2.3.4")

	out := f.Submit(t.Context(), validSample(), "1.2.3.4")
	if out.Status != "ACCEPTED_SYNC" || out.PersistedID == "" {
		t.Fatalf("expected sync fallback to persist inline, got %+v", out)
	}
}
