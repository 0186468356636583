// Package memory provides an in-memory implementation of lock.Cache.
// This implementation is suitable for testing and development; real
// deployments use the redislock package.
package memory

import (
	"context"
	"sync"
	"time"
)

// entry is a value with its expiry deadline.
type entry struct {
	value   string
	expires time.Time
}

// Cache is a thread-safe in-memory implementation of lock.Cache.
// The zero value is ready for use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry

	// now is swappable for tests.
	now func() time.Time
}

// New creates a new in-memory cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// SetNow overrides the clock. Test use only.
func (c *Cache) SetNow(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *Cache) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

// get returns a live entry, dropping it if expired.
// Caller must hold c.mu.
func (c *Cache) get(key string) (entry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return entry{}, false
	}
	if !e.expires.IsZero() && !e.expires.After(c.clock()) {
		delete(c.entries, key)
		return entry{}, false
	}
	return e, true
}

// Get retrieves a value; ok is false when absent or expired.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.get(key)
	if !ok {
		return "", false, nil
	}
	return e.value, true, nil
}

// Set stores a value with a TTL, overwriting any existing value.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries == nil {
		c.entries = make(map[string]entry)
	}

	var expires time.Time
	if ttl > 0 {
		expires = c.clock().Add(ttl)
	}
	c.entries[key] = entry{value: value, expires: expires}
	return nil
}

// Replace stores a value with a TTL only if the key is present.
// Reports whether the value landed.
func (c *Cache) Replace(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.get(key); !ok {
		return false, nil
	}

	var expires time.Time
	if ttl > 0 {
		expires = c.clock().Add(ttl)
	}
	c.entries[key] = entry{value: value, expires: expires}
	return true, nil
}

// Remove deletes a key.
func (c *Cache) Remove(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}
