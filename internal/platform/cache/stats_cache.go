package cache

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
)

const (
	defaultPrefix = "orders:stats:"
	defaultTTL    = 5 * time.Minute
	keySetSuffix  = "keys"
	genSuffix     = "gen"
	maxJitter     = 15 * time.Second
)

// Client is the subset of go-redis commands the cache issues.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Option customises a StatsCache.
type Option func(*StatsCache)

// WithPrefix namespaces every key written by the cache.
func WithPrefix(prefix string) Option {
	return func(c *StatsCache) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			c.prefix = trimmed
		}
	}
}

// WithTTL overrides how long aggregates stay cached.
func WithTTL(ttl time.Duration) Option {
	return func(c *StatsCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger receives cache failures that were absorbed by falling back to the loader.
func WithLogger(logger func(ctx context.Context, event string, fields map[string]any)) Option {
	return func(c *StatsCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBreakerSettings replaces the circuit breaker configuration.
func WithBreakerSettings(settings gobreaker.Settings) Option {
	return func(c *StatsCache) {
		c.breaker = gobreaker.NewCircuitBreaker(settings)
	}
}

// StatsCache is a read-through cache for aggregation results. Concurrent misses on one key
// share a single load, and a circuit breaker stops calling Redis while it is failing; in both
// degraded paths the loader result is served directly.
//
// Keys are scoped by a generation counter that Invalidate bumps, so a load that started
// before an invalidation never becomes visible after it.
type StatsCache struct {
	client  Client
	prefix  string
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
	group   singleflight.Group
	logger  func(context.Context, string, map[string]any)
}

// NewStatsCache wraps client.
func NewStatsCache(client Client, opts ...Option) (*StatsCache, error) {
	if client == nil {
		return nil, errors.New("cache: redis client is required")
	}
	c := &StatsCache{
		client: client,
		prefix: defaultPrefix,
		ttl:    defaultTTL,
		logger: func(context.Context, string, map[string]any) {},
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "stats-cache",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     20 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
	})
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Fetch returns the cached value for key or stores the result of load.
func (c *StatsCache) Fetch(ctx context.Context, key string, load func(context.Context) ([]byte, error)) ([]byte, error) {
	gen, ok := c.generation(ctx)
	if !ok {
		return load(ctx)
	}
	full := c.versionedKey(gen, key)

	value, err, _ := c.group.Do(full, func() (any, error) {
		if cached, ok := c.get(ctx, full); ok {
			return cached, nil
		}
		data, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if current, ok := c.generation(ctx); ok && current == gen {
			c.set(ctx, full, data)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]byte), nil
}

// Invalidate starts a new generation and drops every key written under earlier ones.
func (c *StatsCache) Invalidate(ctx context.Context) error {
	setKey := c.prefix + keySetSuffix
	_, err := c.breaker.Execute(func() (any, error) {
		if err := c.client.Incr(ctx, c.prefix+genSuffix).Err(); err != nil {
			return nil, err
		}
		members, err := c.client.SMembers(ctx, setKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, err
		}
		keys := append(members, setKey)
		return nil, c.client.Del(ctx, keys...).Err()
	})
	if err != nil {
		return fmt.Errorf("cache: invalidate: %w", err)
	}
	return nil
}

func (c *StatsCache) versionedKey(gen int64, key string) string {
	return c.prefix + "g" + strconv.FormatInt(gen, 10) + ":" + key
}

func (c *StatsCache) generation(ctx context.Context) (int64, bool) {
	value, err := c.breaker.Execute(func() (any, error) {
		gen, err := c.client.Get(ctx, c.prefix+genSuffix).Int64()
		if errors.Is(err, redis.Nil) {
			return int64(0), nil
		}
		return gen, err
	})
	if err != nil {
		c.logger(ctx, "stats_cache.generation_failed", map[string]any{"error": err.Error()})
		return 0, false
	}
	return value.(int64), true
}

func (c *StatsCache) get(ctx context.Context, key string) ([]byte, bool) {
	value, err := c.breaker.Execute(func() (any, error) {
		data, err := c.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return data, err
	})
	if err != nil {
		c.logger(ctx, "stats_cache.get_failed", map[string]any{"key": key, "error": err.Error()})
		return nil, false
	}
	data, _ := value.([]byte)
	return data, data != nil
}

func (c *StatsCache) set(ctx context.Context, key string, data []byte) {
	ttl := c.ttl + time.Duration(rand.Int63n(int64(maxJitter)))
	_, err := c.breaker.Execute(func() (any, error) {
		if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
			return nil, err
		}
		return nil, c.client.SAdd(ctx, c.prefix+keySetSuffix, key).Err()
	})
	if err != nil {
		c.logger(ctx, "stats_cache.set_failed", map[string]any{"key": key, "error": err.Error()})
	}
}
