package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"caretrail/internal/platform/config"
)

// Client carries the shared permission-cache connection. It embeds the
// go-redis client, so callers close and command it directly.
type Client struct {
	*redis.Client
}

// New builds a client from the permission-cache settings and verifies the
// connection up front. An empty URL returns nil: the cache layer is simply
// absent and permission lookups fall through to the primary source.
func New(cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{Client: client}, nil
}

// Health reports whether the cache connection still answers. Losing it does
// not fail permission lookups, only the fast path, so it surfaces through
// readiness rather than request errors.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
