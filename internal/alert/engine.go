// Package alert implements the Alert Engine (spec.md C4/§4.3): fingerprint
// derivation, severity classification, and at-most-once alert creation
// under contention.
package alert

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"ingestpipe/internal/logging"
	"ingestpipe/internal/model"
)

// CreateRequest is the input to Engine.Create.
type CreateRequest struct {
	DeviceID      string
	AlertType     model.AlertType
	Message       string
	Latitude      float64
	Longitude     float64
	HasCoords     bool
	ProcessorName string
	Metadata      string
}

// CreateFailedError wraps a persistent store failure from Engine.Create
// (spec.md's AlertCreateFailed). Callers must log and continue; it must
// never propagate up through the telemetry pipeline.
type CreateFailedError struct {
	Fingerprint string
	Cause       error
}

func (e *CreateFailedError) Error() string {
	return fmt.Sprintf("alert create failed for fingerprint %s: %v", e.Fingerprint, e.Cause)
}

func (e *CreateFailedError) Unwrap() error { return e.Cause }

// Engine derives fingerprints and severities and serializes
// lookup-then-insert so that, within one process, concurrent requests
// for the same fingerprint collapse to a single stored record. A Store
// with a unique fingerprint constraint is the cross-instance correctness
// backstop; an optional CrossInstanceDedup strengthens that backstop
// using Redis when the Store itself cannot enforce uniqueness.
type Engine struct {
	store  Store
	dedup  *CrossInstanceDedup
	log    logging.Logger
	mu     sync.Mutex
	maxTry int
}

// NewEngine constructs an Engine. dedup may be nil to rely solely on the
// store's uniqueness guarantee.
func NewEngine(store Store, dedup *CrossInstanceDedup, log logging.Logger) *Engine {
	if log == nil {
		log = logging.Discard()
	}
	return &Engine{store: store, dedup: dedup, log: log, maxTry: 3}
}

// Create derives the request's fingerprint and severity and returns the
// single stored alert for that fingerprint — the one this call created,
// or the prior winner if another request (in this process or another)
// got there first.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (model.Alert, error) {
	fp := Fingerprint(req.DeviceID, req.AlertType, req.Latitude, req.Longitude, req.HasCoords)
	severity := DeriveSeverity(req.AlertType, req.Message)

	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok, err := e.store.FindByFingerprint(ctx, fp); err == nil && ok {
		return existing, nil
	}

	candidate := model.Alert{
		DeviceID:      req.DeviceID,
		AlertType:     req.AlertType,
		Severity:      severity,
		Message:       req.Message,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		HasCoords:     req.HasCoords,
		ProcessorName: req.ProcessorName,
		Fingerprint:   fp,
		Metadata:      req.Metadata,
	}

	var lastErr error
	backoff := 50 * time.Millisecond
	for attempt := 0; attempt < e.maxTry; attempt++ {
		if attempt > 0 {
			jitter := time.Duration(rand.Int63n(int64(backoff)))
			time.Sleep(backoff + jitter)
			backoff *= 2
		}

		if e.dedup != nil {
			winnerID, err := e.dedup.Claim(ctx, fp, candidate.DeviceID+":"+fp)
			if err == nil && winnerID != candidate.DeviceID+":"+fp {
				if existing, ok, ferr := e.store.FindByFingerprint(ctx, fp); ferr == nil && ok {
					return existing, nil
				}
			}
		}

		stored, err := e.store.Insert(ctx, candidate)
		if err == nil {
			return stored, nil
		}
		if errors.Is(err, ErrDuplicateFingerprint) {
			// Another writer won the race; its record is authoritative.
			if existing, ok, ferr := e.store.FindByFingerprint(ctx, fp); ferr == nil && ok {
				return existing, nil
			}
		}
		lastErr = err
		e.log.Warn(ctx, "alert store insert failed, retrying",
			"deviceId", req.DeviceID, "processor", req.ProcessorName, "attempt", attempt+1, "error", err)
	}

	failErr := &CreateFailedError{Fingerprint: fp, Cause: lastErr}
	e.log.Error(ctx, "alert create failed permanently",
		"deviceId", req.DeviceID, "processor", req.ProcessorName, "error", failErr)
	return model.Alert{}, failErr
}
