// Package redislock provides a Redis-backed implementation of
// lock.Cache using go-redis.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache implements lock.Cache on a Redis client.
type Cache struct {
	rdb *redis.Client
}

// New creates a Redis-backed cache.
func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Config controls Redis client behavior. Defaults are conservative.
type Config struct {
	Addr string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PingTimeout  time.Duration
}

// withDefaults returns a copy of the config with default values applied.
func (c Config) withDefaults() Config {
	cfg := c
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 2 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2 * time.Second
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 2 * time.Second
	}
	return cfg
}

// Open initializes a Redis client and validates connectivity via PING.
// Inability to reach the lock service at startup is one of the few
// conditions that should abort the process.
func Open(ctx context.Context, config Config) (*Cache, error) {
	cfg := config.withDefaults()
	if cfg.Addr == "" {
		return nil, errors.New("redislock: Addr is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redislock: ping failed: %w", err)
	}

	return New(rdb), nil
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

// Get retrieves a value; ok is false when absent or expired.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set stores a value with a TTL, overwriting any existing value.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Replace stores a value with a TTL only if the key is present (SET XX).
// Reports whether the value landed; false when the key was absent.
func (c *Cache) Replace(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return c.rdb.SetXX(ctx, key, value, ttl).Result()
}

// Remove deletes a key.
func (c *Cache) Remove(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}
