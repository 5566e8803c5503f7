package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelfeed/reelfeed/internal/profile"
	"github.com/reelfeed/reelfeed/server/gateway"
	"github.com/reelfeed/reelfeed/server/service/release"
)

// noopResolver satisfies release.Resolver without touching the network.
type noopResolver struct{}

func (noopResolver) Resolve(context.Context, gateway.Key) ([]byte, error) {
	return []byte(`{"results":[]}`), nil
}

func (noopResolver) ForceRefresh(context.Context, gateway.Key) ([]byte, error) {
	return []byte(`{"results":[]}`), nil
}

func (noopResolver) Submit(context.Context, string, string, map[string]string, any) ([]byte, error) {
	return []byte(`{}`), nil
}

func testProfile(t *testing.T) *profile.Profile {
	t.Helper()
	p := profile.Default()
	p.TMDBAPIKey = "k"
	p.JellyseerrAPIKey = "k"
	p.JellyseerrURL = "http://jellyseerr"
	require.NoError(t, p.Validate())
	return p
}

func TestNewServer_ZeroIntervalDisablesRefresher(t *testing.T) {
	p := testProfile(t)
	p.RefreshInterval = 0

	s := NewServer(p, release.NewService(noopResolver{}, nil), nil, nil)
	assert.Nil(t, s.refresher)
}

func TestNewServer_PositiveIntervalEnablesRefresher(t *testing.T) {
	s := NewServer(testProfile(t), release.NewService(noopResolver{}, nil), nil, nil)
	assert.NotNil(t, s.refresher)
}

func TestServer_Healthz(t *testing.T) {
	s := NewServer(testProfile(t), release.NewService(noopResolver{}, nil), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.echoServer.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}
