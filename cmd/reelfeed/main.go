package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/reelfeed/reelfeed/internal/profile"
	"github.com/reelfeed/reelfeed/server"
	"github.com/reelfeed/reelfeed/server/gateway"
	"github.com/reelfeed/reelfeed/server/gateway/ratelimit"
	"github.com/reelfeed/reelfeed/internal/observability"
	"github.com/reelfeed/reelfeed/server/service/release"
	"github.com/reelfeed/reelfeed/server/upstream"
	"github.com/reelfeed/reelfeed/store/cache"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "reelfeed",
	Short: "Streaming release dashboard backed by TMDB, OMDB and Jellyseerr",
}

func init() {
	rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}

		logger := newLogger(p)
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return run(ctx, p, logger)
	}

	viper.SetDefault("mode", "dev")
	viper.SetDefault("addr", "")
	viper.SetDefault("port", 8081)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of server")
	rootCmd.PersistentFlags().String("config", "", "config file to load")

	if err := viper.BindPFlag("mode", rootCmd.PersistentFlags().Lookup("mode")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("addr", rootCmd.PersistentFlags().Lookup("addr")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port")); err != nil {
		panic(err)
	}

	viper.SetEnvPrefix("reelfeed")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

func loadProfile() (*profile.Profile, error) {
	if configFile, _ := rootCmd.PersistentFlags().GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	p := profile.Default()
	p.Version = version
	p.Mode = viper.GetString("mode")
	p.Addr = viper.GetString("addr")
	p.Port = viper.GetInt("port")

	p.TMDBAPIKey = viper.GetString("tmdb.api_key")
	p.TMDBBaseURL = viper.GetString("tmdb.base_url")
	p.OMDBAPIKey = viper.GetString("omdb.api_key")
	p.OMDBBaseURL = viper.GetString("omdb.base_url")
	p.JellyseerrAPIKey = viper.GetString("jellyseerr.api_key")
	p.JellyseerrURL = viper.GetString("jellyseerr.url")

	if v := viper.GetDuration("cache.ttl"); v > 0 {
		p.CacheTTL = v
	}
	if v := viper.GetInt("cache.max_items"); v > 0 {
		p.CacheMaxItems = v
	}
	// An explicit zero disables the background refresh runner.
	if viper.IsSet("refresh.interval") {
		p.RefreshInterval = viper.GetDuration("refresh.interval")
	}

	p.RedisAddr = viper.GetString("redis.addr")
	p.RedisPassword = viper.GetString("redis.password")
	p.RedisDB = viper.GetInt("redis.db")

	if v := viper.GetInt("retry.max_attempts"); v > 0 {
		p.Retry.MaxAttempts = v
	}
	if v := viper.GetDuration("retry.base_delay"); v > 0 {
		p.Retry.BaseDelay = v
	}
	if v := viper.GetDuration("retry.max_delay"); v > 0 {
		p.Retry.MaxDelay = v
	}

	if viper.IsSet("ratelimit.requests_per_second") {
		p.DefaultRateLimit.RequestsPerSecond = viper.GetFloat64("ratelimit.requests_per_second")
	}
	if viper.IsSet("ratelimit.burst") {
		p.DefaultRateLimit.Burst = viper.GetInt("ratelimit.burst")
	}
	p.CooldownOn429 = viper.GetBool("ratelimit.cooldown_on_429")
	if v := viper.GetDuration("ratelimit.cooldown_period"); v > 0 {
		p.CooldownPeriod = v
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func newLogger(p *profile.Profile) *slog.Logger {
	level := slog.LevelInfo
	if p.IsDev() {
		level = slog.LevelDebug
	}
	if p.IsDev() {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func run(ctx context.Context, p *profile.Profile, logger *slog.Logger) error {
	l1 := cache.New(cache.Config{
		MaxItems:        p.CacheMaxItems,
		DefaultTTL:      p.CacheTTL,
		CleanupInterval: 10 * time.Minute,
	})
	defer func() { _ = l1.Close() }()

	var l2 cache.Tier
	if p.RedisAddr != "" {
		redisCache, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:       p.RedisAddr,
			Password:   p.RedisPassword,
			DB:         p.RedisDB,
			DefaultTTL: p.CacheTTL,
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer func() { _ = redisCache.Close() }()
		l2 = redisCache
		logger.Info("redis cache tier enabled", "addr", p.RedisAddr)
	}
	responseCache := cache.NewTiered(l1, l2)

	perProvider := make(map[string]ratelimit.Config, len(p.RateLimits))
	for name, rl := range p.RateLimits {
		perProvider[name] = ratelimit.Config{RequestsPerSecond: rl.RequestsPerSecond, Burst: rl.Burst}
	}
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: p.DefaultRateLimit.RequestsPerSecond,
		Burst:             p.DefaultRateLimit.Burst,
	}, perProvider)

	clientOpts := []upstream.Option{upstream.WithLogger(logger)}
	if p.CooldownOn429 {
		clientOpts = append(clientOpts, upstream.WithCooldownHinter(limiter, p.CooldownPeriod))
	}
	client := upstream.NewClient(upstream.Config{
		TMDBAPIKey:       p.TMDBAPIKey,
		TMDBBaseURL:      p.TMDBBaseURL,
		OMDBAPIKey:       p.OMDBAPIKey,
		OMDBBaseURL:      p.OMDBBaseURL,
		JellyseerrAPIKey: p.JellyseerrAPIKey,
		JellyseerrURL:    p.JellyseerrURL,
		Retry: upstream.RetryPolicy{
			MaxAttempts: p.Retry.MaxAttempts,
			BaseDelay:   p.Retry.BaseDelay,
			MaxDelay:    p.Retry.MaxDelay,
		},
	}, clientOpts...)
	defer func() { _ = client.Close() }()

	metrics := observability.NewMetrics()
	gw := gateway.New(responseCache, limiter, client,
		gateway.WithDefaultTTL(p.CacheTTL),
		gateway.WithLogger(logger),
		gateway.WithMetrics(metrics),
	)

	releases := release.NewService(gw, logger, release.WithRatings(p.OMDBAPIKey != ""))

	s := server.NewServer(p, releases, metrics, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start(ctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.Shutdown()
		return nil
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
