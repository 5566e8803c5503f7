package profile

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// RateLimit configures a single provider's token bucket.
type RateLimit struct {
	// RequestsPerSecond is the bucket refill rate.
	RequestsPerSecond float64
	// Burst is the bucket capacity.
	Burst int
}

// Retry configures the upstream retry policy.
type Retry struct {
	// MaxAttempts is the total attempt budget, including the first try.
	MaxAttempts int
	// BaseDelay is the delay before the first retry; it doubles per attempt.
	BaseDelay time.Duration
	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration
}

// Profile is the configuration to start the main server.
// It is loaded once at startup and treated as immutable afterwards.
type Profile struct {
	// Mode can be "prod" or "dev"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Version is the current version of server
	Version string

	// TMDBAPIKey authenticates against the metadata provider.
	TMDBAPIKey string
	// TMDBBaseURL overrides the metadata provider endpoint (tests).
	TMDBBaseURL string
	// OMDBAPIKey authenticates against the ratings provider. Optional:
	// when empty, rating enrichment is skipped.
	OMDBAPIKey string
	// OMDBBaseURL overrides the ratings provider endpoint (tests).
	OMDBBaseURL string
	// JellyseerrAPIKey authenticates against the request-forwarding service.
	JellyseerrAPIKey string
	// JellyseerrURL is the base URL of the request-forwarding service.
	JellyseerrURL string

	// RefreshInterval is the period of the background catalog refresh.
	// Zero disables the runner.
	RefreshInterval time.Duration
	// CacheTTL is the default lifetime of cached upstream responses.
	CacheTTL time.Duration
	// CacheMaxItems bounds the in-memory response cache.
	CacheMaxItems int

	// RedisAddr enables the Redis L2 cache tier when non-empty.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// RateLimits holds per-provider bucket settings, keyed by provider
	// name (tmdb, omdb, jellyseerr). Missing providers use DefaultRateLimit.
	RateLimits       map[string]RateLimit
	DefaultRateLimit RateLimit

	// InboundRateLimit guards the mutating API routes, keyed by client IP.
	InboundRateLimit RateLimit

	// Retry is the upstream retry policy.
	Retry Retry

	// CooldownOn429 makes an upstream 429 hold the provider's bucket for
	// CooldownPeriod before new permits are handed out.
	CooldownOn429  bool
	CooldownPeriod time.Duration
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// Default returns a profile with the documented defaults applied.
func Default() *Profile {
	return &Profile{
		Mode:             "dev",
		Addr:             "",
		Port:             8081,
		CacheTTL:         24 * time.Hour,
		CacheMaxItems:    1000,
		RefreshInterval:  time.Hour,
		DefaultRateLimit: RateLimit{RequestsPerSecond: 10, Burst: 20},
		InboundRateLimit: RateLimit{RequestsPerSecond: 10, Burst: 20},
		Retry: Retry{
			MaxAttempts: 4,
			BaseDelay:   250 * time.Millisecond,
			MaxDelay:    4 * time.Second,
		},
		CooldownPeriod: 5 * time.Second,
	}
}

// Validate checks required settings and normalizes the rest.
func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}
	if p.TMDBAPIKey == "" {
		return errors.New("tmdb api key is required")
	}
	if p.JellyseerrAPIKey == "" {
		return errors.New("jellyseerr api key is required")
	}
	if p.JellyseerrURL == "" {
		return errors.New("jellyseerr url is required")
	}
	p.JellyseerrURL = strings.TrimRight(p.JellyseerrURL, "/")

	if p.CacheTTL <= 0 {
		p.CacheTTL = 24 * time.Hour
	}
	if p.CacheMaxItems <= 0 {
		p.CacheMaxItems = 1000
	}
	if p.Retry.MaxAttempts <= 0 {
		p.Retry.MaxAttempts = 4
	}
	if p.Retry.BaseDelay <= 0 {
		p.Retry.BaseDelay = 250 * time.Millisecond
	}
	if p.Retry.MaxDelay < p.Retry.BaseDelay {
		p.Retry.MaxDelay = 4 * time.Second
	}
	if p.DefaultRateLimit.RequestsPerSecond <= 0 {
		p.DefaultRateLimit.RequestsPerSecond = 10
	}
	if p.DefaultRateLimit.Burst <= 0 {
		p.DefaultRateLimit.Burst = 20
	}
	for name, rl := range p.RateLimits {
		if rl.RequestsPerSecond <= 0 || rl.Burst <= 0 {
			return errors.Errorf("invalid rate limit for provider %s", name)
		}
	}
	if p.CooldownOn429 && p.CooldownPeriod <= 0 {
		p.CooldownPeriod = 5 * time.Second
	}
	return nil
}

// RateLimitFor returns the bucket settings for a provider.
func (p *Profile) RateLimitFor(provider string) RateLimit {
	if rl, ok := p.RateLimits[provider]; ok {
		return rl
	}
	return p.DefaultRateLimit
}
