// Package upstream performs the actual HTTP calls to the external
// providers: request shaping per provider, bounded retry with backoff,
// and failure classification.
package upstream

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"time"

	"resty.dev/v3"
)

// Providers known to the client. The metadata/ratings side of the system
// is tmdb+omdb; jellyseerr is the request-forwarding service.
const (
	ProviderTMDB       = "tmdb"
	ProviderOMDB       = "omdb"
	ProviderJellyseerr = "jellyseerr"
)

// Operations, grouped by provider.
const (
	OpListNewMovies = "ListNewMovies"
	OpListNewTV     = "ListNewTV"
	OpGetTVDetails  = "GetTVDetails"
	OpGetRatings    = "GetRatings"
	OpListRequests  = "ListRequests"
	OpSubmitRequest = "SubmitRequest"
)

// RetryPolicy bounds the internal retry loop.
type RetryPolicy struct {
	// MaxAttempts is the total attempt budget, including the first try.
	MaxAttempts int
	// BaseDelay is the delay before the first retry, doubled per attempt.
	BaseDelay time.Duration
	// MaxDelay caps the backoff.
	MaxDelay time.Duration
}

// CooldownHinter receives local backpressure hints when an upstream
// answers 429. Satisfied by ratelimit.Limiter.
type CooldownHinter interface {
	Cooldown(provider string, d time.Duration)
}

// plan is a shaped outbound request.
type plan struct {
	method  string
	url     string
	query   url.Values
	headers map[string]string
}

// shaper turns an (operation, params) pair into a concrete request.
type shaper interface {
	plan(operation string, params map[string]string) (*plan, error)
}

// Config wires provider credentials and endpoints into the client.
type Config struct {
	TMDBAPIKey  string
	TMDBBaseURL string

	OMDBAPIKey  string
	OMDBBaseURL string

	JellyseerrAPIKey string
	JellyseerrURL    string

	Retry RetryPolicy
}

// Option customizes the client.
type Option func(*Client)

// WithCooldownHinter enables 429 backpressure hints toward the limiter.
func WithCooldownHinter(h CooldownHinter, period time.Duration) Option {
	return func(c *Client) {
		c.hinter = h
		c.cooldownPeriod = period
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Client performs provider-specific HTTP calls with retry and backoff.
type Client struct {
	http    *resty.Client
	shapers map[string]shaper
	retry   RetryPolicy

	hinter         CooldownHinter
	cooldownPeriod time.Duration
	logger         *slog.Logger
}

// NewClient creates an upstream client for the configured providers.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.TMDBBaseURL == "" {
		cfg.TMDBBaseURL = "https://api.themoviedb.org/3"
	}
	if cfg.OMDBBaseURL == "" {
		cfg.OMDBBaseURL = "https://www.omdbapi.com"
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 4
	}
	if cfg.Retry.BaseDelay <= 0 {
		cfg.Retry.BaseDelay = 250 * time.Millisecond
	}
	if cfg.Retry.MaxDelay < cfg.Retry.BaseDelay {
		cfg.Retry.MaxDelay = 4 * time.Second
	}

	httpClient := resty.New().
		SetTimeout(10 * time.Second)

	c := &Client{
		http: httpClient,
		shapers: map[string]shaper{
			ProviderTMDB:       &tmdbShaper{baseURL: cfg.TMDBBaseURL, apiKey: cfg.TMDBAPIKey},
			ProviderOMDB:       &omdbShaper{baseURL: cfg.OMDBBaseURL, apiKey: cfg.OMDBAPIKey},
			ProviderJellyseerr: &jellyseerrShaper{baseURL: cfg.JellyseerrURL, apiKey: cfg.JellyseerrAPIKey},
		},
		retry:  cfg.Retry,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases the underlying HTTP client resources.
func (c *Client) Close() error {
	return c.http.Close()
}

// Fetch performs a read operation and returns the raw JSON payload.
func (c *Client) Fetch(ctx context.Context, provider, operation string, params map[string]string) ([]byte, error) {
	return c.call(ctx, provider, operation, params, nil)
}

// Submit performs a write operation with a JSON body.
func (c *Client) Submit(ctx context.Context, provider, operation string, params map[string]string, body any) ([]byte, error) {
	return c.call(ctx, provider, operation, params, body)
}

func (c *Client) call(ctx context.Context, provider, operation string, params map[string]string, body any) ([]byte, error) {
	sh, ok := c.shapers[provider]
	if !ok {
		return nil, &Error{
			Code: ErrCodeBadOperation, Provider: provider, Operation: operation,
			Message: "unknown provider",
		}
	}
	p, err := sh.plan(operation, params)
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, provider, operation, p, body)
}

// execute runs the bounded retry loop: one iteration per attempt, with
// exponential backoff and jitter between attempts.
func (c *Client) execute(ctx context.Context, provider, operation string, p *plan, body any) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.backoffDelay(attempt)
			c.logger.Debug("retrying upstream request",
				"provider", provider,
				"operation", operation,
				"attempt", attempt,
				"delay_ms", delay.Milliseconds())
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, &Error{
					Code: ErrCodeTransport, Provider: provider, Operation: operation,
					Retriable: true, Message: "canceled while backing off", Cause: ctx.Err(),
				}
			}
		}

		payload, err := c.attempt(ctx, provider, operation, p, body)
		if err == nil {
			return payload, nil
		}
		if !IsRetriable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

// attempt performs a single HTTP round trip and classifies the outcome.
func (c *Client) attempt(ctx context.Context, provider, operation string, p *plan, body any) ([]byte, error) {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json")
	for k, v := range p.headers {
		req.SetHeader(k, v)
	}
	if len(p.query) > 0 {
		req.SetQueryParamsFromValues(p.query)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(p.method, p.url)
	if err != nil {
		return nil, &Error{
			Code: ErrCodeTransport, Provider: provider, Operation: operation,
			Retriable: true, Message: "request failed", Cause: err,
		}
	}

	status := resp.StatusCode()
	switch {
	case status >= 200 && status < 300:
		payload := resp.Bytes()
		if !json.Valid(payload) {
			return nil, &Error{
				Code: ErrCodeBadPayload, Provider: provider, Operation: operation,
				Status: status, Message: "malformed response body",
			}
		}
		return payload, nil

	case status == 429:
		if c.hinter != nil {
			c.hinter.Cooldown(provider, c.cooldownPeriod)
		}
		c.logger.Warn("upstream rate limited", "provider", provider, "operation", operation)
		return nil, &Error{
			Code: ErrCodeRateLimited, Provider: provider, Operation: operation,
			Status: 429, Retriable: true, Message: "upstream rate limited",
		}

	case status == 408 || status >= 500:
		c.logger.Warn("upstream server error",
			"provider", provider, "operation", operation, "status", status)
		return nil, &Error{
			Code: ErrCodeServerError, Provider: provider, Operation: operation,
			Status: status, Retriable: true, Message: "upstream server error",
		}

	default:
		return nil, &Error{
			Code: ErrCodeClientError, Provider: provider, Operation: operation,
			Status: status, Message: "upstream rejected request",
		}
	}
}

// backoffDelay computes the delay before the given attempt (attempt >= 2):
// base doubling per attempt, capped, with jitter in [d/2, d) to avoid a
// thundering herd of synchronized retries.
func (c *Client) backoffDelay(attempt int) time.Duration {
	d := c.retry.BaseDelay << (attempt - 2)
	if d > c.retry.MaxDelay {
		d = c.retry.MaxDelay
	}
	half := d / 2
	if half <= 0 {
		// rand.N panics on a non-positive bound; a sub-2ns base delay
		// gets no jitter.
		return d
	}
	return half + rand.N(half)
}
