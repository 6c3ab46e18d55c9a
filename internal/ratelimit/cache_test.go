package ratelimit

import (
	"testing"
	"time"
)

func TestBucketCache_GetOrCreate_ReusesSameBucketForSameKey(t *testing.T) {
	c := NewBucketCache(10, time.Hour, func() *TokenBucket { return NewTokenBucket(5, time.Second) })

	b1 := c.GetOrCreate("k1")
	b2 := c.GetOrCreate("k1")
	if b1 != b2 {
		t.Fatal("expected repeated GetOrCreate calls for the same key to return the same bucket")
	}
	if c.Len() != 1 {
		t.Fatalf("expected exactly one cached entry, got %d", c.Len())
	}
}

func TestBucketCache_GetOrCreate_DistinctKeysGetDistinctBuckets(t *testing.T) {
	c := NewBucketCache(10, time.Hour, func() *TokenBucket { return NewTokenBucket(5, time.Second) })

	b1 := c.GetOrCreate("k1")
	b2 := c.GetOrCreate("k2")
	if b1 == b2 {
		t.Fatal("expected distinct keys to get distinct buckets")
	}
	if c.Len() != 2 {
		t.Fatalf("expected two cached entries, got %d", c.Len())
	}
}

func TestBucketCache_EvictIdle_DropsStaleEntries(t *testing.T) {
	c := NewBucketCache(10, time.Millisecond, func() *TokenBucket { return NewTokenBucket(5, time.Second) })

	c.GetOrCreate("k1")
	time.Sleep(5 * time.Millisecond)
	c.evictIdle()

	if c.Len() != 0 {
		t.Fatalf("expected the idle entry to be evicted, got %d remaining", c.Len())
	}
}

func TestBucketCache_EvictIdle_KeepsFreshlyAccessedEntries(t *testing.T) {
	c := NewBucketCache(10, time.Hour, func() *TokenBucket { return NewTokenBucket(5, time.Second) })

	c.GetOrCreate("k1")
	c.evictIdle()

	if c.Len() != 1 {
		t.Fatalf("expected the freshly accessed entry to survive, got %d", c.Len())
	}
}

func TestBucketCache_TrimToSize_CapsAtMaxSize(t *testing.T) {
	c := NewBucketCache(2, time.Hour, func() *TokenBucket { return NewTokenBucket(5, time.Second) })

	c.GetOrCreate("k1")
	time.Sleep(time.Millisecond)
	c.GetOrCreate("k2")
	time.Sleep(time.Millisecond)
	c.GetOrCreate("k3")

	c.trimToSize()
	if c.Len() > 2 {
		t.Fatalf("expected trimToSize to cap the cache at maxSize=2, got %d", c.Len())
	}
}

func TestBucketCache_StopIsIdempotent(t *testing.T) {
	c := NewBucketCache(10, time.Hour, func() *TokenBucket { return NewTokenBucket(5, time.Second) })
	c.Stop()
	c.Stop()
}
