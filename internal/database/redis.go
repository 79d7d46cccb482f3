package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/larp/internal/config"
)

// NewRedis parses the URL and pings until Redis answers or the configured
// connect timeout passes. Redis carries the push channel and the rate
// limiter, so the server does not start without it.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	client := redis.NewClient(opts)

	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := pingWithRetry(ctx, "redis", cfg.ConnectTimeout, ping); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
