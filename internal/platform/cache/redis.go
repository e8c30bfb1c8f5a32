package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	"github.com/StevenEgasJ/HomeworkOrders/internal/platform/config"
)

// NewRedisClient builds a traced go-redis client from configuration. It returns nil when no
// address is configured so callers can run without a cache.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	if err := redisotel.InstrumentTracing(client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: instrument redis tracing: %w", err)
	}
	return client, nil
}

// Ping is a health probe for the Redis dependency.
func Ping(client redis.Cmdable) func(context.Context) error {
	return func(ctx context.Context) error {
		if client == nil {
			return errors.New("cache: redis client not configured")
		}
		return client.Ping(ctx).Err()
	}
}
