package upstream

import (
	"net/http"
	"net/url"
)

// omdbShaper shapes requests against the OMDB API, which exposes a single
// endpoint queried by title and year.
type omdbShaper struct {
	baseURL string
	apiKey  string
}

func (s *omdbShaper) plan(operation string, params map[string]string) (*plan, error) {
	if operation != OpGetRatings {
		return nil, &Error{
			Code: ErrCodeBadOperation, Provider: ProviderOMDB, Operation: operation,
			Message: "unknown operation",
		}
	}
	title := params["title"]
	if title == "" {
		return nil, &Error{
			Code: ErrCodeBadOperation, Provider: ProviderOMDB, Operation: operation,
			Message: "missing title parameter",
		}
	}

	q := url.Values{}
	q.Set("apikey", s.apiKey)
	q.Set("t", title)
	if year := params["year"]; year != "" {
		q.Set("y", year)
	}

	return &plan{
		method: http.MethodGet,
		url:    s.baseURL + "/",
		query:  q,
	}, nil
}
