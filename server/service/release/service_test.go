package release

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelfeed/reelfeed/server/gateway"
	"github.com/reelfeed/reelfeed/server/upstream"
)

// stubResolver serves canned payloads by provider:operation and records
// which keys were force-refreshed and which bodies were submitted.
type stubResolver struct {
	mu        sync.Mutex
	payloads  map[string][]byte
	errs      map[string]error
	refreshed []string
	submitted []any
	submitErr error
}

func newStubResolver() *stubResolver {
	return &stubResolver{
		payloads: map[string][]byte{},
		errs:     map[string]error{},
	}
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
	r.mu.Lock()
	r.refreshed = append(r.refreshed, key.Provider+":"+key.Operation)
	r.mu.Unlock()
	return r.lookup(key)
}

func (r *stubResolver) Submit(_ context.Context, provider, operation string, _ map[string]string, body any) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.submitErr != nil {
		return nil, r.submitErr
	}
	r.submitted = append(r.submitted, body)
	return []byte(`{"id":1}`), nil
}

func seedCatalog(r *stubResolver) {
	r.set(upstream.ProviderTMDB, upstream.OpListNewMovies, map[string]any{
		"results": []map[string]any{
			{"id": 603, "title": "The Matrix", "release_date": "2026-08-01", "vote_average": 8.7, "vote_count": 25000, "poster_path": "/matrix.jpg", "overview": "A hacker learns the truth."},
			{"id": 604, "title": "Reloaded", "release_date": "2026-08-15", "vote_average": 7.2, "vote_count": 20000},
		},
	})
	r.set(upstream.ProviderTMDB, upstream.OpListNewTV, map[string]any{
		"results": []map[string]any{
			{"id": 1399, "name": "Winter Watch", "first_air_date": "2026-08-10", "vote_average": 9.2, "vote_count": 18000, "poster_path": "/ww.jpg"},
		},
	})
	r.set(upstream.ProviderTMDB, upstream.OpGetTVDetails, map[string]any{"number_of_seasons": 3})
	r.set(upstream.ProviderOMDB, upstream.OpGetRatings, map[string]any{
		"Response":   "True",
		"imdbRating": "8.7",
		"Metascore":  "N/A",
		"Ratings": []map[string]string{
			{"Source": "Internet Movie Database", "Value": "8.7/10"},
			{"Source": "Rotten Tomatoes", "Value": "88%"},
		},
	})
	r.set(upstream.ProviderJellyseerr, upstream.OpListRequests, map[string]any{"results": []any{}})
}

func TestService_ListReleases(t *testing.T) {
	resolver := newStubResolver()
	seedCatalog(resolver)
	svc := NewService(resolver, nil)

	catalog, err := svc.ListReleases(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, catalog.Releases, 3)

	// Newest first across both media types.
	assert.Equal(t, "Reloaded", catalog.Releases[0].Title)
	assert.Equal(t, "Winter Watch", catalog.Releases[1].Title)
	assert.Equal(t, "The Matrix", catalog.Releases[2].Title)

	matrix := catalog.Releases[2]
	assert.Equal(t, MediaTypeMovie, matrix.MediaType)
	assert.Equal(t, "https://image.tmdb.org/t/p/w500/matrix.jpg", matrix.PosterURL)
	assert.Equal(t, "https://www.themoviedb.org/movie/603", matrix.TMDBURL)
	assert.Equal(t, "8.7", matrix.IMDBRating)
	assert.Equal(t, "88%", matrix.RottenTomatoes)
	// OMDB's "N/A" sentinel is stripped, not surfaced.
	assert.Empty(t, matrix.Metascore)

	show := catalog.Releases[1]
	assert.Equal(t, MediaTypeTV, show.MediaType)
	assert.Equal(t, 3, show.NumberOfSeasons)
	assert.Equal(t, "https://www.themoviedb.org/tv/1399", show.TMDBURL)

	// No poster path falls back to the placeholder.
	assert.Equal(t, "https://via.placeholder.com/500x750", catalog.Releases[0].PosterURL)

	assert.False(t, svc.LastUpdate().IsZero())
	assert.NotEmpty(t, catalog.UpdatedAt)
}

func TestService_ListReleasesFiltersRequested(t *testing.T) {
	resolver := newStubResolver()
	seedCatalog(resolver)
	resolver.set(upstream.ProviderJellyseerr, upstream.OpListRequests, map[string]any{
		"results": []map[string]any{
			{"media": map[string]any{"tmdbId": 603, "mediaType": "movie"}},
		},
	})
	svc := NewService(resolver, nil)

	catalog, err := svc.ListReleases(context.Background(), false)
	require.NoError(t, err)
	for _, r := range catalog.Releases {
		assert.NotEqual(t, "The Matrix", r.Title)
	}
}

func TestService_ListReleasesFiltersHidden(t *testing.T) {
	resolver := newStubResolver()
	seedCatalog(resolver)
	svc := NewService(resolver, nil)
	svc.Hide(MediaTypeTV, 1399)

	catalog, err := svc.ListReleases(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, catalog.Releases, 2)
	for _, r := range catalog.Releases {
		assert.Equal(t, MediaTypeMovie, r.MediaType)
	}
}

func TestService_ListReleasesDegradations(t *testing.T) {
	resolver := newStubResolver()
	seedCatalog(resolver)
	// Ratings, season details and the requested-set are all best effort.
	resolver.errs[upstream.ProviderOMDB+":"+upstream.OpGetRatings] = fmt.Errorf("omdb down")
	resolver.errs[upstream.ProviderTMDB+":"+upstream.OpGetTVDetails] = fmt.Errorf("tmdb details down")
	resolver.errs[upstream.ProviderJellyseerr+":"+upstream.OpListRequests] = fmt.Errorf("jellyseerr down")
	svc := NewService(resolver, nil)

	catalog, err := svc.ListReleases(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, catalog.Releases, 3)
	for _, r := range catalog.Releases {
		assert.Empty(t, r.IMDBRating)
		assert.Zero(t, r.NumberOfSeasons)
	}
}

func TestService_ListReleasesFailsWhenListingFails(t *testing.T) {
	resolver := newStubResolver()
	seedCatalog(resolver)
	resolver.errs[upstream.ProviderTMDB+":"+upstream.OpListNewMovies] = fmt.Errorf("tmdb down")
	svc := NewService(resolver, nil)

	_, err := svc.ListReleases(context.Background(), false)
	require.ErrorContains(t, err, "list new movies")
}

func TestService_ForceRefreshesListings(t *testing.T) {
	resolver := newStubResolver()
	seedCatalog(resolver)
	svc := NewService(resolver, nil)

	_, err := svc.ListReleases(context.Background(), true)
	require.NoError(t, err)

	resolver.mu.Lock()
	defer resolver.mu.Unlock()
	assert.Contains(t, resolver.refreshed, upstream.ProviderTMDB+":"+upstream.OpListNewMovies)
	assert.Contains(t, resolver.refreshed, upstream.ProviderTMDB+":"+upstream.OpListNewTV)
	// Ratings stay cache-first even on a forced refresh; only listings churn.
	assert.NotContains(t, resolver.refreshed, upstream.ProviderOMDB+":"+upstream.OpGetRatings)
}

func TestService_RequestMedia(t *testing.T) {
	resolver := newStubResolver()
	seedCatalog(resolver)
	svc := NewService(resolver, nil)

	require.NoError(t, svc.RequestMedia(context.Background(), MediaTypeMovie, 603, nil))

	resolver.mu.Lock()
	require.Len(t, resolver.submitted, 1)
	body := resolver.submitted[0].(map[string]any)
	resolver.mu.Unlock()
	assert.Equal(t, MediaTypeMovie, body["mediaType"])
	assert.Equal(t, int64(603), body["mediaId"])
	_, hasSeasons := body["seasons"]
	assert.False(t, hasSeasons)

	// A granted request disappears from subsequent listings.
	catalog, err := svc.ListReleases(context.Background(), false)
	require.NoError(t, err)
	for _, r := range catalog.Releases {
		assert.NotEqual(t, int64(603), r.ID)
	}
}

func TestService_RequestMediaTVNeedsSeasons(t *testing.T) {
	resolver := newStubResolver()
	svc := NewService(resolver, nil)

	err := svc.RequestMedia(context.Background(), MediaTypeTV, 1399, nil)
	require.ErrorContains(t, err, "season")

	require.NoError(t, svc.RequestMedia(context.Background(), MediaTypeTV, 1399, []int{1, 2, 3}))
	resolver.mu.Lock()
	defer resolver.mu.Unlock()
	body := resolver.submitted[0].(map[string]any)
	assert.Equal(t, []int{1, 2, 3}, body["seasons"])
}

func TestService_RatingsDisabled(t *testing.T) {
	resolver := newStubResolver()
	seedCatalog(resolver)
	// A failing OMDB must not even be consulted when ratings are off.
	resolver.errs[upstream.ProviderOMDB+":"+upstream.OpGetRatings] = fmt.Errorf("should not be called")
	svc := NewService(resolver, nil, WithRatings(false))

	catalog, err := svc.ListReleases(context.Background(), false)
	require.NoError(t, err)
	for _, r := range catalog.Releases {
		assert.Empty(t, r.IMDBRating)
	}
}

func TestService_RequestMediaRejectsUnknownType(t *testing.T) {
	svc := NewService(newStubResolver(), nil)
	err := svc.RequestMedia(context.Background(), "book", 1, nil)
	require.ErrorContains(t, err, "unsupported media type")
}

func TestService_RequestMediaSubmitFailureDoesNotHide(t *testing.T) {
	resolver := newStubResolver()
	seedCatalog(resolver)
	resolver.submitErr = fmt.Errorf("jellyseerr rejected it")
	svc := NewService(resolver, nil)

	err := svc.RequestMedia(context.Background(), MediaTypeMovie, 603, nil)
	require.Error(t, err)

	catalog, err := svc.ListReleases(context.Background(), false)
	require.NoError(t, err)
	found := false
	for _, r := range catalog.Releases {
		if r.ID == 603 {
			found = true
		}
	}
	assert.True(t, found)
}
