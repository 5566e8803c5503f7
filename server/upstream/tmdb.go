package upstream

import (
	"net/http"
	"net/url"
)

// watchProviders is the fixed set of streaming services the dashboard
// tracks (Netflix, Prime, Disney+, Max, Apple TV+, Hulu, Peacock, Crunchyroll).
const watchProviders = "8|9|337|1899|350|15|619|283"

// tmdbShaper shapes requests against the TMDB v3 API. The API key is
// injected as a query parameter, per TMDB's auth scheme.
type tmdbShaper struct {
	baseURL string
	apiKey  string
}

func (s *tmdbShaper) plan(operation string, params map[string]string) (*plan, error) {
	q := url.Values{}
	q.Set("api_key", s.apiKey)
	q.Set("language", "en-US")

	var path string
	switch operation {
	case OpListNewMovies:
		path = "/discover/movie"
		q.Set("sort_by", "release_date.desc")
		q.Set("with_watch_providers", watchProviders)
		q.Set("watch_region", "US")
		q.Set("vote_count.gte", "1")
		q.Set("vote_average.gte", "1")
		q.Set("page", paramOr(params, "page", "1"))

	case OpListNewTV:
		path = "/discover/tv"
		q.Set("sort_by", "first_air_date.desc")
		q.Set("with_watch_providers", watchProviders)
		q.Set("watch_region", "US")
		q.Set("with_watch_monetization_types", "flatrate")
		q.Set("vote_count.gte", "1")
		q.Set("vote_average.gte", "1")
		q.Set("page", paramOr(params, "page", "1"))

	case OpGetTVDetails:
		id := params["id"]
		if id == "" {
			return nil, &Error{
				Code: ErrCodeBadOperation, Provider: ProviderTMDB, Operation: operation,
				Message: "missing id parameter",
			}
		}
		path = "/tv/" + url.PathEscape(id)

	default:
		return nil, &Error{
			Code: ErrCodeBadOperation, Provider: ProviderTMDB, Operation: operation,
			Message: "unknown operation",
		}
	}

	return &plan{
		method: http.MethodGet,
		url:    s.baseURL + path,
		query:  q,
	}, nil
}

func paramOr(params map[string]string, key, fallback string) string {
	if v := params[key]; v != "" {
		return v
	}
	return fallback
}
