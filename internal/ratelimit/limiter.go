package ratelimit

import (
	"context"
	"fmt"
	"time"

	"ingestpipe/internal/logging"
)

// Scope identifies which rate-limit dimension denied a request.
type Scope string

const (
	ScopeGlobal  Scope = "GLOBAL"
	ScopeAddress Scope = "ADDRESS"
	ScopeDevice  Scope = "DEVICE"
)

// Decision is the outcome of a tryConsume call.
type Decision struct {
	Allowed    bool
	Scope      Scope // set when denied
	RetryAfter time.Duration
	Remaining  int64
}

// Config configures the three scopes per spec.md §4.2 defaults.
type Config struct {
	Enabled            bool
	GlobalPerSecond    int64
	AddressPerMinute   int64
	AddressBurstPerMin int64
	DevicePerMinute    int64
	CacheMaxSize       int
	CacheIdleTimeout   time.Duration
}

// Limiter gates ingest admission across global, per-address, and
// per-device scopes (spec.md C1). It never holds a lock across I/O and
// fails open on internal error: if a bucket cannot be read, the request
// is admitted.
type Limiter struct {
	cfg     Config
	log     logging.Logger
	global  *TokenBucket
	address *BucketCache
	burst   *BucketCache
	device  *BucketCache
}

// New constructs a Limiter from cfg. Pass a non-nil logger; a discard
// logger from logging.Discard() is fine for tests.
func New(cfg Config, log logging.Logger) *Limiter {
	if log == nil {
		log = logging.Discard()
	}
	l := &Limiter{cfg: cfg, log: log}
	if !cfg.Enabled {
		return l
	}
	l.global = NewTokenBucket(cfg.GlobalPerSecond, time.Second)
	l.address = NewBucketCache(cfg.CacheMaxSize, cfg.CacheIdleTimeout, func() *TokenBucket {
		return NewTokenBucket(cfg.AddressPerMinute, time.Minute)
	})
	l.burst = NewBucketCache(cfg.CacheMaxSize, cfg.CacheIdleTimeout, func() *TokenBucket {
		return NewTokenBucket(cfg.AddressBurstPerMin, time.Minute)
	})
	l.device = NewBucketCache(cfg.CacheMaxSize, cfg.CacheIdleTimeout, func() *TokenBucket {
		return NewTokenBucket(cfg.DevicePerMinute, time.Minute)
	})
	return l
}

// RunEvictionLoops starts the background idle-eviction sweeps for the
// per-address, per-address-burst and per-device bucket caches. Call once
// at service startup; stop via Close.
func (l *Limiter) RunEvictionLoops(interval time.Duration) {
	if !l.cfg.Enabled {
		return
	}
	go l.address.RunEvictionLoop(interval)
	go l.burst.RunEvictionLoop(interval)
	go l.device.RunEvictionLoop(interval)
}

// Close stops the background eviction loops.
func (l *Limiter) Close() {
	if !l.cfg.Enabled {
		return
	}
	l.address.Stop()
	l.burst.Stop()
	l.device.Stop()
}

// Admit checks a request against global, address, and device scopes in
// that order (spec.md §4.1 step 2). If the device scope denies after the
// global scope admitted, the global token is returned so the global
// bucket reflects admissions, not attempts.
func (l *Limiter) Admit(address, deviceID string) (dec Decision) {
	if !l.cfg.Enabled {
		return Decision{Allowed: true, Remaining: -1}
	}
	defer func() {
		if r := recover(); r != nil {
			// Fail open: an unreadable limiter must not block ingest.
			l.log.Error(context.Background(), fmt.Sprintf("rate limiter panic, failing open: %v", r))
			dec = Decision{Allowed: true, Remaining: -1}
		}
	}()

	now := time.Now()

	globalOK, globalRemaining := l.global.TryConsume(1, now)
	if !globalOK {
		return Decision{Allowed: false, Scope: ScopeGlobal, RetryAfter: l.global.RetryAfter(1, now)}
	}

	addrBucket := l.address.GetOrCreate(address)
	burstBucket := l.burst.GetOrCreate(address)
	addrOK, _ := addrBucket.TryConsume(1, now)
	burstOK := false
	if addrOK {
		burstOK, _ = burstBucket.TryConsume(1, now)
	}
	if !addrOK || !burstOK {
		if addrOK {
			// Burst denied after the sustained bucket admitted: refund it.
			addrBucket.Return(1, now)
		}
		l.global.Return(1, now)
		retry := addrBucket.RetryAfter(1, now)
		if b := burstBucket.RetryAfter(1, now); b > retry {
			retry = b
		}
		return Decision{Allowed: false, Scope: ScopeAddress, RetryAfter: retry}
	}

	deviceBucket := l.device.GetOrCreate(deviceID)
	deviceOK, deviceRemaining := deviceBucket.TryConsume(1, now)
	if !deviceOK {
		// Compensate the outer scopes: address and global must reflect
		// admissions, not attempts.
		addrBucket.Return(1, now)
		burstBucket.Return(1, now)
		l.global.Return(1, now)
		return Decision{Allowed: false, Scope: ScopeDevice, RetryAfter: deviceBucket.RetryAfter(1, now)}
	}

	remaining := globalRemaining
	if deviceRemaining < remaining {
		remaining = deviceRemaining
	}
	return Decision{Allowed: true, Remaining: remaining}
}
