package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wonny/canslim/pkg/config"
)

const (
	// DefaultNamespace prefixes every key when REDIS_KEY_PREFIX is unset
	DefaultNamespace = "canslim"

	connectTimeout = 5 * time.Second
	ioTimeout      = 3 * time.Second
)

// Client wraps the Redis client. Every key the screener writes lives under
// one namespace, so several deployments can share a server.
// ⭐ SSOT: Redis 연결은 여기서만 관리
type Client struct {
	rdb       *redis.Client
	enabled   bool
	namespace string
}

// New connects to Redis, or returns a disabled client when REDIS_ENABLED is false.
// The connection test is bounded by ctx and a short timeout.
func New(ctx context.Context, cfg *config.Config) (*Client, error) {
	ns := cfg.Redis.KeyPrefix
	if ns == "" {
		ns = DefaultNamespace
	}
	if !cfg.Redis.Enabled {
		return &Client{namespace: ns}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  connectTimeout,
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed (%s): %w", rdb.Options().Addr, err)
	}

	return &Client{
		rdb:       rdb,
		enabled:   true,
		namespace: ns,
	}, nil
}

// Ping checks the server; a disabled client is always healthy
func (c *Client) Ping(ctx context.Context) error {
	if !c.enabled {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

// Namespace is the key prefix shared by the cache and the rate limiter
func (c *Client) Namespace() string {
	return c.namespace
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// Enabled returns whether Redis is enabled
func (c *Client) Enabled() bool {
	return c.enabled
}

// Redis returns the underlying redis client for advanced usage
func (c *Client) Redis() *redis.Client {
	return c.rdb
}
