package cache

import (
	"context"
	"time"
)

// Tier is the read/write surface of the second cache tier. Get reports
// the entry's remaining lifetime so a hit can be promoted without
// extending it.
type Tier interface {
	Get(ctx context.Context, key string) ([]byte, time.Duration, bool)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Invalidate(ctx context.Context, pattern string) int
	Close() error
}

// TieredCache layers the in-memory L1 over an optional L2 (Redis).
// L1 answers the hot path; L2 survives process restarts and can be shared
// between instances. L2 hits are promoted into L1.
type TieredCache struct {
	l1 *Cache
	l2 Tier
}

// NewTiered creates a tiered cache. l2 may be nil, in which case only the
// memory tier is active.
func NewTiered(l1 *Cache, l2 Tier) *TieredCache {
	return &TieredCache{l1: l1, l2: l2}
}

// Get checks L1 first, then L2. An L2 hit is promoted into L1 with the
// entry's remaining lifetime, so promotion never extends an entry past
// its original expiry. A hit whose remaining lifetime is unknown is
// served but not promoted.
func (t *TieredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if value, ok := t.l1.Get(ctx, key); ok {
		return value, true
	}
	if t.l2 != nil {
		if value, remaining, ok := t.l2.Get(ctx, key); ok {
			if remaining > 0 {
				t.l1.SetWithTTL(ctx, key, value, remaining)
			}
			return value, true
		}
	}
	return nil, false
}

// SetWithTTL stores a value in both tiers.
func (t *TieredCache) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) {
	t.l1.SetWithTTL(ctx, key, value, ttl)
	if t.l2 != nil {
		t.l2.SetWithTTL(ctx, key, value, ttl)
	}
}

// Delete removes a key from both tiers.
func (t *TieredCache) Delete(ctx context.Context, key string) {
	t.l1.Delete(ctx, key)
	if t.l2 != nil {
		t.l2.Delete(ctx, key)
	}
}

// Invalidate removes matching keys from both tiers and returns the L1 count.
func (t *TieredCache) Invalidate(ctx context.Context, pattern string) int {
	count := t.l1.Invalidate(ctx, pattern)
	if t.l2 != nil {
		t.l2.Invalidate(ctx, pattern)
	}
	return count
}

// Close closes both tiers.
func (t *TieredCache) Close() error {
	if t.l2 != nil {
		if err := t.l2.Close(); err != nil {
			return err
		}
	}
	return t.l1.Close()
}
