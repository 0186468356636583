// Package lock provides cooperative mutual exclusion over a TTL
// key-value cache service. Locks guard job mutation across workers:
// the job document is the unit of exclusion, and correctness relies on
// this external locking rather than local synchronization.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lirancohen/dirigent/retry"
)

// Default lock parameters.
const (
	// DefaultTTL is how long an acquired lock lives without being
	// extended. It must outlast a single job mutation comfortably.
	DefaultTTL = 2 * time.Minute

	// DefaultRetryDelay is the single fixed delay a contender waits
	// before its one retry. There is no further backoff; a still-held
	// lock is reported as a conflict and retried via re-delivery.
	DefaultRetryDelay = 5 * time.Second
)

// ErrConflict indicates the lock is held by another worker.
// Retryable by queue re-delivery, never fatal.
var ErrConflict = errors.New("lock held by another worker")

// ConflictError reports who holds a contended lock.
type ConflictError struct {
	Key    string
	Holder string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("lock %q held by %q", e.Key, e.Holder)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// Cache is the TTL key-value boundary of the external cache/lock
// service. Implementations must be safe for concurrent use.
type Cache interface {
	// Get retrieves a value. ok is false when the key is absent or
	// expired.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores a value with a TTL, overwriting any existing value.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Replace stores a value with a TTL only if the key is present.
	// Reports whether the value landed; false when the key was absent.
	Replace(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Remove deletes a key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

// Locker is the mutual exclusion interface the job controller depends on.
type Locker interface {
	// Acquire takes the lock for this worker. Returns ErrConflict
	// (wrapped) if another worker holds it after the retry window.
	Acquire(ctx context.Context, key string) error

	// Release gives up the lock. Releasing a lock held by another
	// worker is a no-op.
	Release(ctx context.Context, key string) error
}

// Fingerprint identifies this worker as a lock holder: host plus
// process id. Re-acquiring a lock with the same fingerprint extends it
// instead of conflicting.
func Fingerprint() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}

// Config configures a cache-backed Locker.
type Config struct {
	// Cache is the TTL key-value service.
	// Required.
	Cache Cache

	// Holder is the lock holder identity.
	// If empty, defaults to Fingerprint().
	Holder string

	// TTL is the lock lifetime. If zero, defaults to DefaultTTL.
	TTL time.Duration

	// Retry bounds acquisition attempts. If nil, defaults to one
	// retry after DefaultRetryDelay.
	Retry *retry.Policy
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Cache == nil {
		return errors.New("lock: Cache is required")
	}
	return nil
}

// withDefaults returns a copy of the config with default values applied.
func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.Holder == "" {
		cfg.Holder = Fingerprint()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.Fixed(2, DefaultRetryDelay)
	}
	return cfg
}

// CacheLocker implements Locker over any Cache.
type CacheLocker struct {
	cache  Cache
	holder string
	ttl    time.Duration
	retry  *retry.Policy

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a cache-backed Locker.
func New(config Config) (*CacheLocker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	cfg := config.withDefaults()

	return &CacheLocker{
		cache:  cfg.Cache,
		holder: cfg.Holder,
		ttl:    cfg.TTL,
		retry:  cfg.Retry,
		sleep:  sleepCtx,
	}, nil
}

// Holder returns the lock holder identity.
func (l *CacheLocker) Holder() string {
	return l.holder
}

// Acquire takes the lock for this worker. If this worker already holds
// it, the lock is extended for another TTL. If another worker holds it,
// Acquire waits one fixed delay and retries once before reporting a
// conflict. State is re-read on every attempt, never cached: another
// worker may change it between check and use.
func (l *CacheLocker) Acquire(ctx context.Context, key string) error {
	for attempt := 1; ; attempt++ {
		value, ok, err := l.cache.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("lock get %q: %w", key, err)
		}

		if !ok {
			if err := l.cache.Set(ctx, key, l.holder, l.ttl); err != nil {
				return fmt.Errorf("lock set %q: %w", key, err)
			}
			return nil
		}

		if value == l.holder {
			// Re-affirm our own lock for another TTL. The key may
			// expire between the read and the conditional write, in
			// which case the lock must be taken fresh, not assumed.
			replaced, err := l.cache.Replace(ctx, key, l.holder, l.ttl)
			if err != nil {
				return fmt.Errorf("lock extend %q: %w", key, err)
			}
			if !replaced {
				if err := l.cache.Set(ctx, key, l.holder, l.ttl); err != nil {
					return fmt.Errorf("lock set %q: %w", key, err)
				}
			}
			return nil
		}

		if !l.retry.ShouldRetry(attempt) {
			return &ConflictError{Key: key, Holder: value}
		}
		if err := l.sleep(ctx, l.retry.NextDelay()); err != nil {
			return err
		}
	}
}

// Release gives up the lock if this worker holds it.
func (l *CacheLocker) Release(ctx context.Context, key string) error {
	value, ok, err := l.cache.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("lock get %q: %w", key, err)
	}
	if !ok || value != l.holder {
		// Expired or taken over; nothing of ours to release.
		return nil
	}
	if err := l.cache.Remove(ctx, key); err != nil {
		return fmt.Errorf("lock remove %q: %w", key, err)
	}
	return nil
}

// sleepCtx sleeps for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
