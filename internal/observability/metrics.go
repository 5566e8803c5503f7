package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics aggregates provider call statistics: volumes, failures and
// cache effectiveness, broken down per provider.
type Metrics struct {
	requestTotal  atomic.Int64
	requestFailed atomic.Int64
	cacheHits     atomic.Int64
	cacheMisses   atomic.Int64

	mu        sync.Mutex
	providers map[string]*ProviderMetrics
}

// ProviderMetrics counts one provider's upstream traffic.
type ProviderMetrics struct {
	callCount     atomic.Int64
	errorCount    atomic.Int64
	totalDuration atomic.Int64 // milliseconds
}

// NewMetrics creates an empty metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		providers: make(map[string]*ProviderMetrics),
	}
}

// RecordCall records a completed upstream call.
func (m *Metrics) RecordCall(provider string, duration time.Duration, err error) {
	m.requestTotal.Add(1)
	pm := m.provider(provider)
	pm.callCount.Add(1)
	pm.totalDuration.Add(duration.Milliseconds())
	if err != nil {
		m.requestFailed.Add(1)
		pm.errorCount.Add(1)
	}
}

// RecordCacheHit records a request served without an upstream call.
func (m *Metrics) RecordCacheHit() {
	m.cacheHits.Add(1)
}

// RecordCacheMiss records a request that had to go upstream.
func (m *Metrics) RecordCacheMiss() {
	m.cacheMisses.Add(1)
}

func (m *Metrics) provider(name string) *ProviderMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	pm, ok := m.providers[name]
	if !ok {
		pm = &ProviderMetrics{}
		m.providers[name] = pm
	}
	return pm
}

// Snapshot returns a point-in-time copy of all counters.
func (m *Metrics) Snapshot() *MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	providers := make(map[string]*ProviderSnapshot, len(m.providers))
	for name, pm := range m.providers {
		calls := pm.callCount.Load()
		snap := &ProviderSnapshot{
			CallCount:  calls,
			ErrorCount: pm.errorCount.Load(),
		}
		if calls > 0 {
			snap.AverageDurationMs = pm.totalDuration.Load() / calls
		}
		providers[name] = snap
	}

	return &MetricsSnapshot{
		RequestTotal:  m.requestTotal.Load(),
		RequestFailed: m.requestFailed.Load(),
		CacheHits:     m.cacheHits.Load(),
		CacheMisses:   m.cacheMisses.Load(),
		Providers:     providers,
	}
}

// MetricsSnapshot is the serialized form served by the metrics endpoint.
type MetricsSnapshot struct {
	RequestTotal  int64                        `json:"request_total"`
	RequestFailed int64                        `json:"request_failed"`
	CacheHits     int64                        `json:"cache_hits"`
	CacheMisses   int64                        `json:"cache_misses"`
	Providers     map[string]*ProviderSnapshot `json:"providers"`
}

// ProviderSnapshot is one provider's slice of the snapshot.
type ProviderSnapshot struct {
	CallCount         int64 `json:"call_count"`
	ErrorCount        int64 `json:"error_count"`
	AverageDurationMs int64 `json:"average_duration_ms"`
}

// CacheHitRate returns the cache hit percentage, 0 when idle.
func (s *MetricsSnapshot) CacheHitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total) * 100
}
