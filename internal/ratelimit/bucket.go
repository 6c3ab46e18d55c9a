// Package ratelimit implements the token-bucket admission control described
// in spec.md §4.2 (C1): a global bucket, a per-address pair of buckets
// (sustained + burst), and a per-device bucket, all backed by a bounded,
// idle-evicting key cache.
//
// The bucket itself is adapted from the teacher's striped-atomic VSA
// (vsa.go): TryConsume keeps VSA's "tiny critical section guarding a
// check-then-update pair" shape, but the VSA's "batch net changes to a
// database" half is replaced here by continuous wall-clock refill, since
// a rate limiter has no durable backing scalar to commit to.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is a single continuously-refilling token bucket. It is safe
// for concurrent use; all state transitions happen inside one mutex, the
// same tiny-critical-section shape as the teacher's VSA.TryConsume.
type TokenBucket struct {
	mu            sync.Mutex
	capacity      float64
	refillPerNano float64
	available     float64
	lastRefill    time.Time
}

// NewTokenBucket creates a bucket with the given capacity that refills at
// capacity tokens per refillWindow (e.g. capacity=500, window=time.Second
// for "500 admissions per second"). The bucket starts full.
func NewTokenBucket(capacity int64, refillWindow time.Duration) *TokenBucket {
	if refillWindow <= 0 {
		refillWindow = time.Second
	}
	return &TokenBucket{
		capacity:      float64(capacity),
		refillPerNano: float64(capacity) / float64(refillWindow.Nanoseconds()),
		available:     float64(capacity),
		lastRefill:    time.Now(),
	}
}

func (b *TokenBucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	b.available += float64(elapsed.Nanoseconds()) * b.refillPerNano
	if b.available > b.capacity {
		b.available = b.capacity
	}
	b.lastRefill = now
}

// TryConsume attempts to atomically remove n tokens. It reports whether
// the consumption succeeded and the tokens remaining afterward (rounded
// down; only ever observed as a best-effort hint to callers).
func (b *TokenBucket) TryConsume(n int64, now time.Time) (ok bool, remaining int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(now)
	if b.available < float64(n) {
		return false, int64(b.available)
	}
	b.available -= float64(n)
	return true, int64(b.available)
}

// Return credits n tokens back to the bucket, capped at capacity. Used to
// compensate an outer-scope consumption when an inner scope denies the
// request (spec.md §4.1 step 2, §4.2 "Compensation").
func (b *TokenBucket) Return(n int64, now time.Time) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(now)
	b.available += float64(n)
	if b.available > b.capacity {
		b.available = b.capacity
	}
}

// Available returns the current token count, refilled to now.
func (b *TokenBucket) Available(now time.Time) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(now)
	return int64(b.available)
}

// RetryAfter estimates how long the caller must wait before n tokens are
// available, given the bucket's refill rate.
func (b *TokenBucket) RetryAfter(n int64, now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(now)
	deficit := float64(n) - b.available
	if deficit <= 0 || b.refillPerNano <= 0 {
		return 0
	}
	return time.Duration(deficit / b.refillPerNano)
}
