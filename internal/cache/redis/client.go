// Package redis backs the rule engine's cache interfaces (LockManager,
// RateLimiter, SignalBus) with go-redis/v9. None of the three holds
// anything Redis-native in its public shape — they speak in rule IDs,
// broker throttle buckets, and rule-change events — so this file and its
// siblings are the only place a Redis key or Lua script is ever named.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// defaultPoolSize applies when ClientConfig.PoolSize is left at zero. It is
// sized for the engine's own concurrency profile: the Worker's position
// refresh and evaluation loop, the Executor's single-flight lock/rate-limit
// calls, and the SubscriptionReconciler's pub/sub listener can all be
// in-flight at once, but the Executor's own LockManager keeps concurrent
// Redis traffic for any one rule to a single round trip.
const defaultPoolSize = 20

// ClientConfig holds connection parameters for the Redis client backing
// rule locking, broker-call throttling, and rule-change signaling.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

// Client wraps a go-redis Client and provides the connectivity helpers the
// LockManager, RateLimiter, and SignalBus are built on.
type Client struct {
	rdb *redis.Client
}

// New creates a new Redis Client, pings it to verify connectivity, and
// returns the wrapper. It returns an error if the connection cannot be
// established.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}

	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   poolSize,
		MaxRetries: cfg.MaxRetries,
	}

	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	rdb := redis.NewClient(opts)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Ping checks the Redis connection. The dashboard's health endpoint calls
// this on every request so a lost connection surfaces as a degraded
// readiness response rather than a silent LockManager/RateLimiter failure
// the next time a rule triggers.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the raw *redis.Client for sub-packages that need direct
// access to the driver.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
