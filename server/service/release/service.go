// Package release assembles the dashboard catalog: new movie and TV
// releases from TMDB, ratings from OMDB, and the already-requested set
// from Jellyseerr, with user-hidden items filtered out.
package release

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/reelfeed/reelfeed/server/gateway"
	"github.com/reelfeed/reelfeed/server/upstream"
)

// Resolver is the gateway surface the service consumes. Satisfied by
// gateway.Service.
type Resolver interface {
	Resolve(ctx context.Context, key gateway.Key) ([]byte, error)
	ForceRefresh(ctx context.Context, key gateway.Key) ([]byte, error)
	Submit(ctx context.Context, provider, operation string, params map[string]string, body any) ([]byte, error)
}

// enrichConcurrency bounds the OMDB and TV-details fan-out per catalog
// assembly, so one refresh cannot monopolize the provider rate budget.
const enrichConcurrency = 4

// Service builds and maintains the release catalog.
type Service struct {
	resolver Resolver
	logger   *slog.Logger
	ratings  bool

	mu         sync.RWMutex
	hidden     map[string]struct{}
	lastUpdate time.Time
}

// Option customizes the service.
type Option func(*Service)

// WithRatings toggles OMDB enrichment; disable it when no ratings API
// key is configured, so the catalog skips the lookups entirely.
func WithRatings(enabled bool) Option {
	return func(s *Service) { s.ratings = enabled }
}

// NewService creates a release service over the gateway.
func NewService(resolver Resolver, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		resolver: resolver,
		logger:   logger,
		ratings:  true,
		hidden:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListReleases returns the assembled catalog, newest first. With force
// set, the provider listings are refetched instead of served from cache.
func (s *Service) ListReleases(ctx context.Context, force bool) (*Catalog, error) {
	requested := s.requestedSet(ctx, force)

	var movies, shows []Release
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		movies, err = s.listMovies(gctx, force)
		return err
	})
	g.Go(func() error {
		var err error
		shows, err = s.listTV(gctx, force)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	releases := make([]Release, 0, len(movies)+len(shows))
	s.mu.RLock()
	for _, r := range append(movies, shows...) {
		key := mediaKey(r.MediaType, r.ID)
		if _, ok := requested[key]; ok {
			continue
		}
		if _, ok := s.hidden[key]; ok {
			continue
		}
		releases = append(releases, r)
	}
	s.mu.RUnlock()

	sort.SliceStable(releases, func(i, j int) bool {
		return releases[i].ReleaseDate > releases[j].ReleaseDate
	})

	now := time.Now().UTC()
	s.mu.Lock()
	s.lastUpdate = now
	s.mu.Unlock()

	return &Catalog{Releases: releases, UpdatedAt: now.Format(time.RFC3339)}, nil
}

// RequestMedia submits a download request to Jellyseerr and hides the
// item from subsequent listings. For TV, all seasons are requested.
func (s *Service) RequestMedia(ctx context.Context, mediaType string, id int64, seasons []int) error {
	if mediaType != MediaTypeMovie && mediaType != MediaTypeTV {
		return errors.Errorf("unsupported media type %q", mediaType)
	}

	body := map[string]any{
		"mediaType": mediaType,
		"mediaId":   id,
	}
	if mediaType == MediaTypeTV {
		if len(seasons) == 0 {
			return errors.New("tv request needs at least one season")
		}
		body["seasons"] = seasons
	}

	if _, err := s.resolver.Submit(ctx, upstream.ProviderJellyseerr, upstream.OpSubmitRequest, nil, body); err != nil {
		return errors.Wrapf(err, "submit request for %s/%d", mediaType, id)
	}

	s.Hide(mediaType, id)
	s.logger.Info("media requested", "media_type", mediaType, "id", id, "seasons", len(seasons))
	return nil
}

// Hide removes an item from subsequent listings for this process
// lifetime.
func (s *Service) Hide(mediaType string, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hidden[mediaKey(mediaType, id)] = struct{}{}
}

// SeasonCount looks up a show's season count, zero when unknown.
func (s *Service) SeasonCount(ctx context.Context, id int64) int {
	key := gateway.NewKey(upstream.ProviderTMDB, upstream.OpGetTVDetails, map[string]string{"id": strconv.FormatInt(id, 10)})
	payload, err := s.resolver.Resolve(ctx, key)
	if err != nil {
		return 0
	}
	var details tmdbTVDetails
	if err := json.Unmarshal(payload, &details); err != nil {
		return 0
	}
	return details.NumberOfSeasons
}

// LastUpdate reports when the catalog was last assembled. Zero before
// the first assembly.
func (s *Service) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

func (s *Service) listMovies(ctx context.Context, force bool) ([]Release, error) {
	payload, err := s.resolve(ctx, force, gateway.NewKey(upstream.ProviderTMDB, upstream.OpListNewMovies, nil))
	if err != nil {
		return nil, errors.Wrap(err, "list new movies")
	}

	var discover tmdbDiscoverResponse
	if err := json.Unmarshal(payload, &discover); err != nil {
		return nil, errors.Wrap(err, "decode movie listing")
	}

	releases := make([]Release, len(discover.Results))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i, result := range discover.Results {
		releases[i] = result.toRelease(MediaTypeMovie)
		g.Go(func() error {
			s.enrichRatings(gctx, &releases[i], result)
			return nil
		})
	}
	_ = g.Wait()

	return releases, nil
}

func (s *Service) listTV(ctx context.Context, force bool) ([]Release, error) {
	payload, err := s.resolve(ctx, force, gateway.NewKey(upstream.ProviderTMDB, upstream.OpListNewTV, nil))
	if err != nil {
		return nil, errors.Wrap(err, "list new tv")
	}

	var discover tmdbDiscoverResponse
	if err := json.Unmarshal(payload, &discover); err != nil {
		return nil, errors.Wrap(err, "decode tv listing")
	}

	releases := make([]Release, len(discover.Results))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i, result := range discover.Results {
		releases[i] = result.toRelease(MediaTypeTV)
		g.Go(func() error {
			s.enrichSeasons(gctx, &releases[i], result.ID, force)
			return nil
		})
	}
	_ = g.Wait()

	return releases, nil
}

// enrichRatings fills the OMDB fields. A missing or failed lookup leaves
// the release unenriched; the catalog never fails over ratings.
func (s *Service) enrichRatings(ctx context.Context, r *Release, result tmdbResult) {
	if !s.ratings {
		return
	}
	title := result.title()
	if title == "" {
		return
	}
	params := map[string]string{"title": title}
	if date := result.releaseDate(); len(date) >= 4 {
		params["year"] = date[:4]
	}

	payload, err := s.resolver.Resolve(ctx, gateway.NewKey(upstream.ProviderOMDB, upstream.OpGetRatings, params))
	if err != nil {
		s.logger.Debug("ratings lookup failed", "title", title, "error", err)
		return
	}

	var ratings omdbResponse
	if err := json.Unmarshal(payload, &ratings); err != nil || ratings.Response == "False" {
		return
	}

	r.IMDBRating = cleanRating(ratings.IMDBRating)
	r.Metascore = cleanRating(ratings.Metascore)
	r.RottenTomatoes = ratings.rottenTomatoes()
}

// enrichSeasons fills the season count for a show. Failures leave it at
// zero rather than dropping the show.
func (s *Service) enrichSeasons(ctx context.Context, r *Release, id int64, force bool) {
	key := gateway.NewKey(upstream.ProviderTMDB, upstream.OpGetTVDetails, map[string]string{"id": strconv.FormatInt(id, 10)})
	payload, err := s.resolve(ctx, force, key)
	if err != nil {
		s.logger.Debug("tv details lookup failed", "id", id, "error", err)
		return
	}

	var details tmdbTVDetails
	if err := json.Unmarshal(payload, &details); err != nil {
		return
	}
	r.NumberOfSeasons = details.NumberOfSeasons
}

// requestedSet lists media already requested through Jellyseerr. A
// failure here degrades to an unfiltered catalog instead of an error.
func (s *Service) requestedSet(ctx context.Context, force bool) map[string]struct{} {
	payload, err := s.resolve(ctx, force, gateway.NewKey(upstream.ProviderJellyseerr, upstream.OpListRequests, nil))
	if err != nil {
		s.logger.Warn("listing existing requests failed", "error", err)
		return nil
	}

	var list jellyseerrRequestList
	if err := json.Unmarshal(payload, &list); err != nil {
		s.logger.Warn("decoding existing requests failed", "error", err)
		return nil
	}

	requested := make(map[string]struct{}, len(list.Results))
	for _, req := range list.Results {
		if req.Media.TMDBID != 0 {
			requested[mediaKey(req.Media.MediaType, req.Media.TMDBID)] = struct{}{}
		}
	}
	return requested
}

func (s *Service) resolve(ctx context.Context, force bool, key gateway.Key) ([]byte, error) {
	if force {
		return s.resolver.ForceRefresh(ctx, key)
	}
	return s.resolver.Resolve(ctx, key)
}
