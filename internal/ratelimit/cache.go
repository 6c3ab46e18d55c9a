package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"
)

// entry is a cache-managed bucket plus the bookkeeping the eviction loop
// needs, the same shape as the teacher's managedVSA in core/store.go.
type entry struct {
	bucket       *TokenBucket
	lastAccessed int64 // UnixNano, updated on every GetOrCreate
}

// BucketCache is a bounded, idle-evicting map from key to TokenBucket,
// adapted from core/store.go's Store: a sync.Map for lock-free reads on
// the hot GetOrCreate path, plus a background loop that drops buckets
// idle for longer than idleTimeout, and opportunistically trims the
// oldest entries when the cache exceeds maxSize.
type BucketCache struct {
	entries     sync.Map
	count       atomic.Int64
	maxSize     int
	idleTimeout time.Duration
	newBucket   func() *TokenBucket
	stopOnce    sync.Once
	stopChan    chan struct{}
}

// NewBucketCache creates a cache whose buckets are constructed with
// newBucket on first reference to a key.
func NewBucketCache(maxSize int, idleTimeout time.Duration, newBucket func() *TokenBucket) *BucketCache {
	c := &BucketCache{
		maxSize:     maxSize,
		idleTimeout: idleTimeout,
		newBucket:   newBucket,
		stopChan:    make(chan struct{}),
	}
	return c
}

// GetOrCreate returns the bucket for key, creating it lazily on first
// reference. The fast path (key already present) never allocates.
func (c *BucketCache) GetOrCreate(key string) *TokenBucket {
	now := time.Now().UnixNano()
	if v, ok := c.entries.Load(key); ok {
		e := v.(*entry)
		atomic.StoreInt64(&e.lastAccessed, now)
		return e.bucket
	}
	newEntry := &entry{bucket: c.newBucket(), lastAccessed: now}
	if v, loaded := c.entries.LoadOrStore(key, newEntry); loaded {
		e := v.(*entry)
		atomic.StoreInt64(&e.lastAccessed, now)
		return e.bucket
	}
	c.count.Add(1)
	return newEntry.bucket
}

// Len reports the approximate number of cached keys.
func (c *BucketCache) Len() int64 { return c.count.Load() }

// RunEvictionLoop evicts idle entries on a fixed interval until Stop is
// called. Eviction of an idle bucket is equivalent to a full bucket: the
// next request starts fresh, per spec.md §4.2.
func (c *BucketCache) RunEvictionLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.evictIdle()
		case <-c.stopChan:
			return
		}
	}
}

func (c *BucketCache) evictIdle() {
	now := time.Now()
	var stale []string
	c.entries.Range(func(k, v any) bool {
		e := v.(*entry)
		last := time.Unix(0, atomic.LoadInt64(&e.lastAccessed))
		if now.Sub(last) > c.idleTimeout {
			stale = append(stale, k.(string))
		}
		return true
	})
	for _, k := range stale {
		if _, ok := c.entries.LoadAndDelete(k); ok {
			c.count.Add(-1)
		}
	}
	// Best-effort size cap: if still over budget, drop the oldest-touched
	// remaining entries. A full scan here is acceptable because it only
	// runs when the idle sweep above failed to bring the cache under the
	// configured maxSize.
	if c.maxSize > 0 && int(c.count.Load()) > c.maxSize {
		c.trimToSize()
	}
}

func (c *BucketCache) trimToSize() {
	type kv struct {
		key  string
		last int64
	}
	var all []kv
	c.entries.Range(func(k, v any) bool {
		e := v.(*entry)
		all = append(all, kv{k.(string), atomic.LoadInt64(&e.lastAccessed)})
		return true
	})
	over := len(all) - c.maxSize
	if over <= 0 {
		return
	}
	// Partial selection sort of the `over` oldest entries; its quadratic
	// cost is fine here since this path is the rare cold case, not the hot path.
	for i := 0; i < over; i++ {
		oldestIdx := i
		for j := i + 1; j < len(all); j++ {
			if all[j].last < all[oldestIdx].last {
				oldestIdx = j
			}
		}
		all[i], all[oldestIdx] = all[oldestIdx], all[i]
		if _, ok := c.entries.LoadAndDelete(all[i].key); ok {
			c.count.Add(-1)
		}
	}
}

// Stop terminates the eviction loop. Safe to call multiple times.
func (c *BucketCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}
