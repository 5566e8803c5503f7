package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelfeed/reelfeed/internal/profile"
	"github.com/reelfeed/reelfeed/server/gateway"
	"github.com/reelfeed/reelfeed/server/gateway/ratelimit"
	"github.com/reelfeed/reelfeed/server/service/release"
	"github.com/reelfeed/reelfeed/server/upstream"
)

// stubResolver backs the release service with canned provider payloads.
type stubResolver struct {
	mu        sync.Mutex
	payloads  map[string][]byte
	errs      map[string]error
	submitted []any
}

func newStubResolver() *stubResolver {
	r := &stubResolver{payloads: map[string][]byte{}, errs: map[string]error{}}
	r.set(upstream.ProviderTMDB, upstream.OpListNewMovies, map[string]any{
		"results": []map[string]any{
			{"id": 603, "title": "The Matrix", "release_date": "2026-08-01", "vote_average": 8.7, "vote_count": 25000},
		},
	})
	r.set(upstream.ProviderTMDB, upstream.OpListNewTV, map[string]any{"results": []any{}})
	r.set(upstream.ProviderTMDB, upstream.OpGetTVDetails, map[string]any{"number_of_seasons": 2})
	r.set(upstream.ProviderOMDB, upstream.OpGetRatings, map[string]any{"Response": "True", "imdbRating": "8.7"})
	r.set(upstream.ProviderJellyseerr, upstream.OpListRequests, map[string]any{"results": []any{}})
	return r
}

func (r *stubResolver) set(provider, operation string, v any) {
	raw, _ := json.Marshal(v)
	r.payloads[provider+":"+operation] = raw
}

func (r *stubResolver) lookup(key gateway.Key) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot := key.Provider + ":" + key.Operation
	if err, ok := r.errs[slot]; ok {
		return nil, err
	}
	if payload, ok := r.payloads[slot]; ok {
		return payload, nil
	}
	return nil, fmt.Errorf("no payload for %s", slot)
}

func (r *stubResolver) Resolve(_ context.Context, key gateway.Key) ([]byte, error) {
	return r.lookup(key)
}

func (r *stubResolver) ForceRefresh(_ context.Context, key gateway.Key) ([]byte, error) {
	return r.lookup(key)
}

func (r *stubResolver) Submit(_ context.Context, _, _ string, _ map[string]string, body any) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted = append(r.submitted, body)
	return []byte(`{"id":1}`), nil
}

func newTestAPI(t *testing.T, resolver *stubResolver) (*echo.Echo, *stubResolver) {
	t.Helper()
	if resolver == nil {
		resolver = newStubResolver()
	}
	p := profile.Default()
	p.TMDBAPIKey = "k"
	p.JellyseerrAPIKey = "k"
	p.JellyseerrURL = "http://jellyseerr"
	require.NoError(t, p.Validate())

	svc := NewAPIV1Service(p, release.NewService(resolver, nil), nil, nil)
	e := echo.New()
	svc.Register(e)
	return e, resolver
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestListReleases(t *testing.T) {
	e, _ := newTestAPI(t, nil)

	rec := doJSON(e, http.MethodGet, "/api/v1/releases", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var catalog release.Catalog
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &catalog))
	require.Len(t, catalog.Releases, 1)
	assert.Equal(t, "The Matrix", catalog.Releases[0].Title)
	assert.Equal(t, "8.7", catalog.Releases[0].IMDBRating)
	assert.NotEmpty(t, catalog.UpdatedAt)
}

func TestRefreshReleases(t *testing.T) {
	e, _ := newTestAPI(t, nil)

	rec := doJSON(e, http.MethodPost, "/api/v1/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "The Matrix")
}

func TestRequestMedia_Movie(t *testing.T) {
	e, resolver := newTestAPI(t, nil)

	rec := doJSON(e, http.MethodPost, "/api/v1/request/movie/603", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resolver.mu.Lock()
	require.Len(t, resolver.submitted, 1)
	body := resolver.submitted[0].(map[string]any)
	resolver.mu.Unlock()
	assert.Equal(t, "movie", body["mediaType"])
	assert.Equal(t, int64(603), body["mediaId"])

	// The requested item drops out of the catalog.
	rec = doJSON(e, http.MethodGet, "/api/v1/releases", "")
	assert.NotContains(t, rec.Body.String(), "The Matrix")
}

func TestRequestMedia_TVDefaultsToAllSeasons(t *testing.T) {
	e, resolver := newTestAPI(t, nil)

	rec := doJSON(e, http.MethodPost, "/api/v1/request/tv/1399", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resolver.mu.Lock()
	defer resolver.mu.Unlock()
	require.Len(t, resolver.submitted, 1)
	body := resolver.submitted[0].(map[string]any)
	assert.Equal(t, []int{1, 2}, body["seasons"])
}

func TestRequestMedia_TVExplicitSeasons(t *testing.T) {
	e, resolver := newTestAPI(t, nil)

	rec := doJSON(e, http.MethodPost, "/api/v1/request/tv/1399", `{"seasons":[2]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resolver.mu.Lock()
	defer resolver.mu.Unlock()
	body := resolver.submitted[0].(map[string]any)
	assert.Equal(t, []int{2}, body["seasons"])
}

func TestRequestMedia_BadParams(t *testing.T) {
	e, _ := newTestAPI(t, nil)

	assert.Equal(t, http.StatusBadRequest, doJSON(e, http.MethodPost, "/api/v1/request/book/1", "").Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(e, http.MethodPost, "/api/v1/request/movie/zero", "").Code)
	assert.Equal(t, http.StatusNotFound, doJSON(e, http.MethodPost, "/api/v1/request/movie/", "").Code)
}

func TestHideMedia(t *testing.T) {
	e, _ := newTestAPI(t, nil)

	rec := doJSON(e, http.MethodPost, "/api/v1/hide/movie/603", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/v1/releases", "")
	assert.NotContains(t, rec.Body.String(), "The Matrix")
}

func TestErrorMapping(t *testing.T) {
	t.Run("RateLimitSaturated", func(t *testing.T) {
		resolver := newStubResolver()
		resolver.errs[upstream.ProviderTMDB+":"+upstream.OpListNewMovies] = ratelimit.ErrTimeout
		e, _ := newTestAPI(t, resolver)

		rec := doJSON(e, http.MethodGet, "/api/v1/releases", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	})

	t.Run("UpstreamTimeout", func(t *testing.T) {
		resolver := newStubResolver()
		resolver.errs[upstream.ProviderTMDB+":"+upstream.OpListNewMovies] = context.DeadlineExceeded
		e, _ := newTestAPI(t, resolver)

		rec := doJSON(e, http.MethodGet, "/api/v1/releases", "")
		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	})

	t.Run("ProviderFailure", func(t *testing.T) {
		resolver := newStubResolver()
		resolver.errs[upstream.ProviderTMDB+":"+upstream.OpListNewMovies] = &upstream.Error{
			Code: upstream.ErrCodeServerError, Provider: "tmdb", Status: 502, Retriable: true,
		}
		e, _ := newTestAPI(t, resolver)

		rec := doJSON(e, http.MethodGet, "/api/v1/releases", "")
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}
