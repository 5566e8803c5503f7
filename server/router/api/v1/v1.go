// Package v1 exposes the dashboard's REST API over echo.
package v1

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/reelfeed/reelfeed/internal/profile"
	"github.com/reelfeed/reelfeed/internal/observability"
	"github.com/reelfeed/reelfeed/server/middleware"
	"github.com/reelfeed/reelfeed/server/service/release"
)

type APIV1Service struct {
	Profile  *profile.Profile
	Releases *release.Service
	Metrics  *observability.Metrics

	logger         *slog.Logger
	inboundLimiter *middleware.RateLimiter
}

func NewAPIV1Service(p *profile.Profile, releases *release.Service, metrics *observability.Metrics, logger *slog.Logger) *APIV1Service {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	return &APIV1Service{
		Profile:        p,
		Releases:       releases,
		Metrics:        metrics,
		logger:         logger,
		inboundLimiter: middleware.NewRateLimiter(p.InboundRateLimit.RequestsPerSecond, p.InboundRateLimit.Burst),
	}
}

// Register mounts the API routes on the echo instance. Mutating routes
// sit behind the per-client inbound rate limit.
func (s *APIV1Service) Register(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/releases", s.ListReleases)
	g.GET("/metrics", s.GetMetrics)

	limited := g.Group("", s.inboundLimiter.Middleware())
	limited.POST("/refresh", s.RefreshReleases)
	limited.POST("/request/:mediaType/:id", s.RequestMedia)
	limited.POST("/hide/:mediaType/:id", s.HideMedia)
}
