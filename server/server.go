// Package server assembles the echo instance: middlewares, API routes
// and the background refresh runner.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/reelfeed/reelfeed/internal/profile"
	"github.com/reelfeed/reelfeed/internal/observability"
	apiv1 "github.com/reelfeed/reelfeed/server/router/api/v1"
	"github.com/reelfeed/reelfeed/server/runner/refresh"
	"github.com/reelfeed/reelfeed/server/service/release"
)

type Server struct {
	Profile *profile.Profile

	echoServer *echo.Echo
	releases   *release.Service
	refresher  *refresh.Runner
	logger     *slog.Logger
}

// NewServer wires the HTTP surface over the release service.
func NewServer(p *profile.Profile, releases *release.Service, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.CORS())
	e.Use(observability.RequestLogger(logger))

	s := &Server{
		Profile:    p,
		echoServer: e,
		releases:   releases,
		logger:     logger,
	}
	// A zero interval disables the background refresh entirely.
	if p.RefreshInterval > 0 {
		s.refresher = refresh.NewRunner(releases, p.RefreshInterval, logger)
	}

	e.GET("/healthz", s.healthz)

	apiService := apiv1.NewAPIV1Service(p, releases, metrics, logger)
	apiService.Register(e)

	return s
}

// Start runs the HTTP listener and the refresh runner until the context
// is canceled.
func (s *Server) Start(ctx context.Context) error {
	if s.refresher != nil {
		go s.refresher.Run(ctx)
	}

	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	s.logger.Info("server listening", "address", address, "mode", s.Profile.Mode)

	if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "start http server")
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener. It takes
// its own deadline since the caller's context is typically already
// canceled by the stop signal.
func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown failed", "error", err)
	}
	s.logger.Info("server stopped")
}

func (s *Server) healthz(c echo.Context) error {
	body := map[string]string{
		"status":  "ok",
		"version": s.Profile.Version,
	}
	if last := s.releases.LastUpdate(); !last.IsZero() {
		body["last_update"] = last.UTC().Format(time.RFC3339)
	}
	return c.JSON(http.StatusOK, body)
}
