package upstream

import (
	"net/http"
	"net/url"
)

// jellyseerrShaper shapes requests against the Jellyseerr v1 API.
// Auth goes through the X-Api-Key header.
type jellyseerrShaper struct {
	baseURL string
	apiKey  string
}

func (s *jellyseerrShaper) plan(operation string, params map[string]string) (*plan, error) {
	headers := map[string]string{"X-Api-Key": s.apiKey}

	switch operation {
	case OpListRequests:
		q := url.Values{}
		q.Set("take", paramOr(params, "take", "100"))
		q.Set("filter", "all")
		return &plan{
			method:  http.MethodGet,
			url:     s.baseURL + "/api/v1/request",
			query:   q,
			headers: headers,
		}, nil

	case OpSubmitRequest:
		return &plan{
			method:  http.MethodPost,
			url:     s.baseURL + "/api/v1/request",
			headers: headers,
		}, nil

	default:
		return nil, &Error{
			Code: ErrCodeBadOperation, Provider: ProviderJellyseerr, Operation: operation,
			Message: "unknown operation",
		}
	}
}
