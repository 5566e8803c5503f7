package refresh

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelfeed/reelfeed/server/service/release"
)

// mockCatalog counts refreshes and records whether they were forced.
type mockCatalog struct {
	calls  atomic.Int32
	forced atomic.Int32
	err    error
}

func (m *mockCatalog) ListReleases(_ context.Context, force bool) (*release.Catalog, error) {
	m.calls.Add(1)
	if force {
		m.forced.Add(1)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &release.Catalog{}, nil
}

func TestRunner_WarmsOnStartupThenForces(t *testing.T) {
	catalog := &mockCatalog{}
	r := NewRunner(catalog, 20*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	// Startup warm is cache-first; ticks force a rebuild.
	require.Eventually(t, func() bool { return catalog.forced.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.GreaterOrEqual(t, catalog.calls.Load(), catalog.forced.Load()+1)
}

func TestRunner_RunOnceForces(t *testing.T) {
	catalog := &mockCatalog{}
	r := NewRunner(catalog, time.Hour, nil)

	r.RunOnce(context.Background())
	assert.Equal(t, int32(1), catalog.calls.Load())
	assert.Equal(t, int32(1), catalog.forced.Load())
}

func TestRunner_SurvivesRefreshFailure(t *testing.T) {
	catalog := &mockCatalog{err: errors.New("providers down")}
	r := NewRunner(catalog, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return catalog.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
