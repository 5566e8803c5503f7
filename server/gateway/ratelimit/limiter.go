// Package ratelimit guards outbound calls to upstream providers with
// per-provider token buckets.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// ErrTimeout is returned when a permit could not be obtained before the
// caller's deadline. The caller may retry later.
var ErrTimeout = errors.New("ratelimit: no permit before deadline")

// Config configures a provider's bucket.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// Limiter holds one token bucket per provider. Buckets refill lazily
// (x/time/rate computes tokens from elapsed time, no background timer)
// and tokens never exceed the configured burst.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	cooldown map[string]time.Time

	defaults    Config
	perProvider map[string]Config
}

// New creates a limiter. perProvider overrides defaults for named
// providers; both are fixed at startup.
func New(defaults Config, perProvider map[string]Config) *Limiter {
	if defaults.RequestsPerSecond <= 0 {
		defaults.RequestsPerSecond = 10
	}
	if defaults.Burst <= 0 {
		defaults.Burst = 20
	}
	return &Limiter{
		buckets:     make(map[string]*rate.Limiter),
		cooldown:    make(map[string]time.Time),
		defaults:    defaults,
		perProvider: perProvider,
	}
}

// Acquire blocks until a permit is available for the provider, or until
// ctx expires, in which case it reports ErrTimeout. An active cooldown is
// waited out before the bucket is consulted.
func (l *Limiter) Acquire(ctx context.Context, provider string) error {
	if wait := l.cooldownRemaining(provider); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return errors.Wrapf(ErrTimeout, "provider %s cooling down", provider)
		}
	}

	if err := l.bucket(provider).Wait(ctx); err != nil {
		// rate.Limiter.Wait fails only on ctx expiry or when the wait
		// would exceed the deadline.
		return errors.Wrapf(ErrTimeout, "provider %s", provider)
	}
	return nil
}

// TryAcquire attempts to take a permit without blocking. On failure it
// reports how long the caller would have to wait for the next token.
func (l *Limiter) TryAcquire(provider string) (time.Duration, bool) {
	if wait := l.cooldownRemaining(provider); wait > 0 {
		return wait, false
	}

	r := l.bucket(provider).Reserve()
	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		return delay, false
	}
	return 0, true
}

// Cooldown holds the provider's bucket closed for d from now. Used as
// adaptive backpressure when the upstream itself answers 429. A shorter
// cooldown never truncates a longer active one.
func (l *Limiter) Cooldown(provider string, d time.Duration) {
	if d <= 0 {
		return
	}
	until := time.Now().Add(d)

	l.mu.Lock()
	defer l.mu.Unlock()
	if until.After(l.cooldown[provider]) {
		l.cooldown[provider] = until
	}
}

func (l *Limiter) cooldownRemaining(provider string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	until, ok := l.cooldown[provider]
	if !ok {
		return 0
	}
	if remaining := time.Until(until); remaining > 0 {
		return remaining
	}
	delete(l.cooldown, provider)
	return 0
}

// bucket gets or lazily creates the provider's limiter.
func (l *Limiter) bucket(provider string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.buckets[provider]; ok {
		return lim
	}

	cfg := l.defaults
	if c, ok := l.perProvider[provider]; ok {
		cfg = c
	}
	lim := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	l.buckets[provider] = lim
	return lim
}
