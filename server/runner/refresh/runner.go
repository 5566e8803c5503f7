// Package refresh keeps the release catalog warm by rebuilding it on a
// fixed interval, so the first dashboard load after a quiet period is
// still served from cache.
package refresh

import (
	"context"
	"log/slog"
	"time"

	"github.com/reelfeed/reelfeed/server/service/release"
)

// Catalog is the refreshable surface. Satisfied by release.Service.
type Catalog interface {
	ListReleases(ctx context.Context, force bool) (*release.Catalog, error)
}

type Runner struct {
	catalog  Catalog
	interval time.Duration
	logger   *slog.Logger
}

// NewRunner creates a catalog refresh runner.
func NewRunner(catalog Catalog, interval time.Duration, logger *slog.Logger) *Runner {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		catalog:  catalog,
		interval: interval,
		logger:   logger,
	}
}

// Run starts the background task. It warms the catalog once on startup
// and then forces a rebuild every interval until the context ends.
func (r *Runner) Run(ctx context.Context) {
	r.refresh(ctx, false)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.refresh(ctx, true)
		case <-ctx.Done():
			r.logger.Info("refresh runner stopped")
			return
		}
	}
}

// RunOnce rebuilds the catalog once (for manual trigger).
func (r *Runner) RunOnce(ctx context.Context) {
	r.refresh(ctx, true)
}

func (r *Runner) refresh(ctx context.Context, force bool) {
	start := time.Now()
	if _, err := r.catalog.ListReleases(ctx, force); err != nil {
		r.logger.Error("catalog refresh failed", "error", err, "forced", force)
		return
	}
	r.logger.Info("catalog refreshed", "forced", force, "duration_ms", time.Since(start).Milliseconds())
}
