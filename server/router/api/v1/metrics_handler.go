package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// GetMetrics reports provider call statistics and cache effectiveness.
//
//	GET /api/v1/metrics
func (s *APIV1Service) GetMetrics(c echo.Context) error {
	snapshot := s.Metrics.Snapshot()
	return c.JSON(http.StatusOK, map[string]any{
		"request_total":  snapshot.RequestTotal,
		"request_failed": snapshot.RequestFailed,
		"cache_hits":     snapshot.CacheHits,
		"cache_misses":   snapshot.CacheMisses,
		"cache_hit_rate": snapshot.CacheHitRate(),
		"providers":      snapshot.Providers,
	})
}
