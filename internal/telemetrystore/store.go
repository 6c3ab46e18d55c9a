// Package telemetrystore implements the Telemetry Store contract
// (spec.md §4.6/C2): idempotent-semantics-not-required persistence plus
// the indexed reads the analytic processors and query APIs need.
package telemetrystore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ingestpipe/internal/model"
)

// ErrUnavailable signals a transient outage (spec.md §4.6's "Unavailable"
// failure mode); callers retry with backoff before giving up.
var ErrUnavailable = errors.New("telemetry store unavailable")

// Store is the persistence contract for telemetry samples.
type Store interface {
	Save(ctx context.Context, sample model.TelemetrySample) (persistedID string, err error)
	LatestForDevice(ctx context.Context, deviceID string) (model.TelemetrySample, bool, error)
	// PriorBefore returns the most recent sample for deviceID with a
	// timestamp strictly before ts — ordered by the sample's own
	// timestamp, not arrival order, per spec.md §4.4.3/§5.
	PriorBefore(ctx context.Context, deviceID string, ts time.Time) (model.TelemetrySample, bool, error)
	ListForDevice(ctx context.Context, deviceID string, limit, offset int) ([]model.TelemetrySample, error)
}

// record pairs a stored sample with its assigned id.
type record struct {
	id     string
	sample model.TelemetrySample
}

// MemStore is an in-memory Store, indexed by device and kept sorted by
// timestamp for fast prior-sample lookups. Safe for concurrent use.
type MemStore struct {
	mu       sync.RWMutex
	byDevice map[string][]record
}

// NewMemStore creates an empty in-memory telemetry store.
func NewMemStore() *MemStore {
	return &MemStore{byDevice: make(map[string][]record)}
}

// Save persists sample and returns a freshly assigned id. Duplicate
// samples always produce distinct ids, per spec.md §4.6.
func (s *MemStore) Save(_ context.Context, sample model.TelemetrySample) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	list := s.byDevice[sample.DeviceID]
	list = append(list, record{id: id, sample: sample})
	sort.Slice(list, func(i, j int) bool { return list[i].sample.Timestamp.Before(list[j].sample.Timestamp) })
	s.byDevice[sample.DeviceID] = list
	return id, nil
}

// LatestForDevice returns the sample with the greatest timestamp for the
// device, if any.
func (s *MemStore) LatestForDevice(_ context.Context, deviceID string) (model.TelemetrySample, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.byDevice[deviceID]
	if len(list) == 0 {
		return model.TelemetrySample{}, false, nil
	}
	return list[len(list)-1].sample, true, nil
}

// PriorBefore returns the most recent sample for deviceID strictly before
// ts, scanning back from the newest entry since the per-device slice is
// kept sorted by timestamp.
func (s *MemStore) PriorBefore(_ context.Context, deviceID string, ts time.Time) (model.TelemetrySample, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.byDevice[deviceID]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].sample.Timestamp.Before(ts) {
			return list[i].sample, true, nil
		}
	}
	return model.TelemetrySample{}, false, nil
}

// ListForDevice returns up to limit samples for deviceID starting at
// offset, ordered by timestamp ascending.
func (s *MemStore) ListForDevice(_ context.Context, deviceID string, limit, offset int) ([]model.TelemetrySample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.byDevice[deviceID]
	if offset >= len(list) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(list) {
		end = len(list)
	}
	out := make([]model.TelemetrySample, 0, end-offset)
	for _, r := range list[offset:end] {
		out = append(out, r.sample)
	}
	return out, nil
}
