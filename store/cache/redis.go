package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the Redis connection configuration for the L2 tier.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// DefaultTTL applies when SetWithTTL receives a non-positive TTL.
	DefaultTTL time.Duration
}

// RedisCache is the Redis-backed L2 cache tier. Values are stored as raw
// bytes; serialization is the caller's concern.
type RedisCache struct {
	client     *redis.Client
	keyPrefix  string
	defaultTTL time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 24 * time.Hour
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "reelfeed:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to redis")
	}

	slog.Info("redis cache connected", "addr", cfg.Addr)

	return &RedisCache{
		client:     client,
		keyPrefix:  cfg.KeyPrefix,
		defaultTTL: cfg.DefaultTTL,
	}, nil
}

// Get retrieves a value along with its remaining lifetime, pipelining
// GET and PTTL into one round trip. A missing key or a transport error
// is a miss; the gateway falls back to the network either way.
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, time.Duration, bool) {
	var (
		getCmd *redis.StringCmd
		ttlCmd *redis.DurationCmd
	)
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		getCmd = pipe.Get(ctx, r.fullKey(key))
		ttlCmd = pipe.PTTL(ctx, r.fullKey(key))
		return nil
	})
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("failed to get cache value", "key", key, "error", err)
		}
		return nil, 0, false
	}

	data, err := getCmd.Bytes()
	if err != nil {
		return nil, 0, false
	}
	// PTTL reports negative values for keys without an expiry; surface
	// those as an unknown lifetime rather than a bogus one.
	remaining := ttlCmd.Val()
	if remaining < 0 {
		remaining = 0
	}
	return data, remaining, true
}

// SetWithTTL stores a value. Write failures are logged, not surfaced: a
// degraded L2 must not fail the request path.
func (r *RedisCache) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	if err := r.client.Set(ctx, r.fullKey(key), value, ttl).Err(); err != nil {
		slog.Warn("failed to set cache value", "key", key, "error", err)
	}
}

// Delete removes a single key.
func (r *RedisCache) Delete(ctx context.Context, key string) {
	if err := r.client.Del(ctx, r.fullKey(key)).Err(); err != nil {
		slog.Warn("failed to delete cache value", "key", key, "error", err)
	}
}

// Invalidate removes keys matching the pattern (trailing * wildcard).
func (r *RedisCache) Invalidate(ctx context.Context, pattern string) int {
	iter := r.client.Scan(ctx, 0, r.fullKey(pattern), 100).Iterator()

	count := 0
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 100 {
			count += r.unlink(ctx, keys)
			keys = keys[:0]
		}
	}
	if len(keys) > 0 {
		count += r.unlink(ctx, keys)
	}
	return count
}

// Close closes the Redis connection.
func (r *RedisCache) Close() error {
	return r.client.Close()
}

func (r *RedisCache) unlink(ctx context.Context, keys []string) int {
	n, err := r.client.Unlink(ctx, keys...).Result()
	if err != nil {
		slog.Warn("failed to unlink cache keys", "error", err)
		return 0
	}
	return int(n)
}

func (r *RedisCache) fullKey(key string) string {
	return r.keyPrefix + key
}
