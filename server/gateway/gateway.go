// Package gateway mediates all outbound calls to the upstream providers.
// It layers a response cache, single-flight deduplication and per-provider
// rate limiting between the web handlers and the network.
package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// Upstream performs the actual provider calls. Satisfied by
// upstream.Client.
type Upstream interface {
	Fetch(ctx context.Context, provider, operation string, params map[string]string) ([]byte, error)
	Submit(ctx context.Context, provider, operation string, params map[string]string, body any) ([]byte, error)
}

// Limiter hands out per-provider permits. Satisfied by ratelimit.Limiter.
type Limiter interface {
	Acquire(ctx context.Context, provider string) error
}

// Cache is the response cache surface the gateway needs. Satisfied by
// cache.Cache and cache.TieredCache.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

// Recorder receives call and cache statistics. Satisfied by
// observability.Metrics.
type Recorder interface {
	RecordCall(provider string, duration time.Duration, err error)
	RecordCacheHit()
	RecordCacheMiss()
}

type nopRecorder struct{}

func (nopRecorder) RecordCall(string, time.Duration, error) {}
func (nopRecorder) RecordCacheHit()                         {}
func (nopRecorder) RecordCacheMiss()                        {}

// Service orchestrates resolve/refresh/submit against the upstreams.
// It owns no global state; callers share one instance.
type Service struct {
	cache    Cache
	limiter  Limiter
	upstream Upstream
	group    singleflight.Group

	defaultTTL    time.Duration
	providerTTL   map[string]time.Duration
	flightTimeout time.Duration
	logger        *slog.Logger
	metrics       Recorder
}

// Option customizes the gateway service.
type Option func(*Service)

// WithDefaultTTL sets the cache lifetime for resolved responses.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(s *Service) { s.defaultTTL = ttl }
}

// WithProviderTTL overrides the TTL for a single provider.
func WithProviderTTL(provider string, ttl time.Duration) Option {
	return func(s *Service) { s.providerTTL[provider] = ttl }
}

// WithFlightTimeout bounds a shared in-flight call. The flight outlives
// any individual waiter but must not run forever.
func WithFlightTimeout(d time.Duration) Option {
	return func(s *Service) { s.flightTimeout = d }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics installs a call statistics recorder.
func WithMetrics(r Recorder) Option {
	return func(s *Service) { s.metrics = r }
}

// New creates a gateway service over the given collaborators.
func New(cache Cache, limiter Limiter, up Upstream, opts ...Option) *Service {
	s := &Service{
		cache:         cache,
		limiter:       limiter,
		upstream:      up,
		defaultTTL:    24 * time.Hour,
		providerTTL:   make(map[string]time.Duration),
		flightTimeout: 30 * time.Second,
		logger:        slog.Default(),
		metrics:       nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve returns the response for the key: from cache when fresh,
// otherwise via a single shared upstream call per key. Failures are
// surfaced to every waiter identically and are never cached.
func (s *Service) Resolve(ctx context.Context, key Key) ([]byte, error) {
	id := key.ID()
	if value, ok := s.cache.Get(ctx, id); ok {
		s.metrics.RecordCacheHit()
		return value, nil
	}
	s.metrics.RecordCacheMiss()
	return s.join(ctx, key, id)
}

// ForceRefresh invalidates the key and resolves it again. It converges on
// the same single-flight slot as concurrent cache-miss resolves, so a
// simultaneous normal fetch and forced refresh still produce exactly one
// upstream call.
func (s *Service) ForceRefresh(ctx context.Context, key Key) ([]byte, error) {
	id := key.ID()
	s.cache.Delete(ctx, id)
	return s.join(ctx, key, id)
}

// Submit forwards a write operation. Writes bypass the cache and the
// flight registry but still take a rate-limit permit and get the
// client's retry treatment.
func (s *Service) Submit(ctx context.Context, provider, operation string, params map[string]string, body any) ([]byte, error) {
	if err := s.limiter.Acquire(ctx, provider); err != nil {
		return nil, err
	}
	start := time.Now()
	payload, err := s.upstream.Submit(ctx, provider, operation, params, body)
	s.metrics.RecordCall(provider, time.Since(start), err)
	return payload, err
}

// join subscribes to the key's in-flight call, creating one if none is
// running. The flight itself runs on a context detached from the caller:
// a waiter abandoning the wait must not cancel the shared call.
func (s *Service) join(ctx context.Context, key Key, id string) ([]byte, error) {
	ch := s.group.DoChan(id, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.flightTimeout)
		defer cancel()
		return s.fetch(flightCtx, key, id)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "abandoned wait for %s", key)
	}
}

// fetch is the single execution body of an in-flight call: take a permit,
// hit the upstream, populate the cache. A panic inside the upstream stack
// becomes an error broadcast to all waiters rather than a crash or hang.
func (s *Service) fetch(ctx context.Context, key Key, id string) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("upstream call panicked: %v", r)
			s.logger.Error("in-flight call panicked", "key", key.String(), "panic", r)
		}
	}()

	if err := s.limiter.Acquire(ctx, key.Provider); err != nil {
		return nil, err
	}

	start := time.Now()
	payload, err := s.upstream.Fetch(ctx, key.Provider, key.Operation, key.Params)
	s.metrics.RecordCall(key.Provider, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	s.cache.SetWithTTL(ctx, id, payload, s.ttlFor(key.Provider))
	s.logger.Debug("resolved upstream query", "key", key.String(), "bytes", len(payload))
	return payload, nil
}

func (s *Service) ttlFor(provider string) time.Duration {
	if ttl, ok := s.providerTTL[provider]; ok {
		return ttl
	}
	return s.defaultTTL
}
