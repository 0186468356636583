package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lirancohen/dirigent/retry"
)

// fakeCache is a minimal Cache for white-box locker tests.
type fakeCache struct {
	entries map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]string)}
}

func (c *fakeCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *fakeCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.entries[key] = value
	return nil
}

func (c *fakeCache) Replace(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if _, ok := c.entries[key]; !ok {
		return false, nil
	}
	c.entries[key] = value
	return true, nil
}

func (c *fakeCache) Remove(ctx context.Context, key string) error {
	delete(c.entries, key)
	return nil
}

func newTestLocker(t *testing.T, cache Cache, holder string, policy *retry.Policy) *CacheLocker {
	t.Helper()
	l, err := New(Config{Cache: cache, Holder: holder, Retry: policy})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	// No real sleeping in tests.
	l.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return l
}

func TestAcquireFree(t *testing.T) {
	cache := newFakeCache()
	l := newTestLocker(t, cache, "worker-a:1", retry.Once())

	if err := l.Acquire(context.Background(), "job:42"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if got := cache.entries["job:42"]; got != "worker-a:1" {
		t.Errorf("lock value = %q, want worker-a:1", got)
	}
}

func TestAcquireExtendsOwnLock(t *testing.T) {
	cache := newFakeCache()
	l := newTestLocker(t, cache, "worker-a:1", retry.Once())
	ctx := context.Background()

	if err := l.Acquire(ctx, "job:42"); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	// Same holder re-acquires: extend, not conflict.
	if err := l.Acquire(ctx, "job:42"); err != nil {
		t.Fatalf("re-Acquire() error = %v", err)
	}
}

// expiringCache drops the key between the holder check and the extend,
// like a TTL elapsing mid-acquire.
type expiringCache struct {
	fakeCache
	dropOnReplace string
}

func (c *expiringCache) Replace(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if key == c.dropOnReplace {
		delete(c.entries, key)
		c.dropOnReplace = ""
	}
	return c.fakeCache.Replace(ctx, key, value, ttl)
}

func TestAcquireExtendAfterExpiry(t *testing.T) {
	cache := &expiringCache{
		fakeCache:     fakeCache{entries: map[string]string{"job:42": "worker-a:1"}},
		dropOnReplace: "job:42",
	}

	l := newTestLocker(t, cache, "worker-a:1", retry.Once())
	if err := l.Acquire(context.Background(), "job:42"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	// The failed extend must fall through to a fresh set: returning
	// success without a lock in the cache would let another worker in.
	if got := cache.entries["job:42"]; got != "worker-a:1" {
		t.Errorf("lock value = %q, want worker-a:1", got)
	}
}

func TestAcquireConflict(t *testing.T) {
	cache := newFakeCache()
	cache.entries["job:42"] = "worker-b:9"

	l := newTestLocker(t, cache, "worker-a:1", retry.Once())
	err := l.Acquire(context.Background(), "job:42")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("Acquire() error = %v, want ErrConflict", err)
	}

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Acquire() error is not a *ConflictError: %v", err)
	}
	if conflict.Holder != "worker-b:9" {
		t.Errorf("ConflictError holder = %q, want worker-b:9", conflict.Holder)
	}
}

func TestAcquireRetriesOnceThenConflicts(t *testing.T) {
	cache := newFakeCache()
	cache.entries["job:42"] = "worker-b:9"

	slept := 0
	l := newTestLocker(t, cache, "worker-a:1", retry.Fixed(2, time.Second))
	l.sleep = func(ctx context.Context, d time.Duration) error {
		slept++
		return nil
	}

	err := l.Acquire(context.Background(), "job:42")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("Acquire() error = %v, want ErrConflict", err)
	}
	if slept != 1 {
		t.Errorf("slept %d times, want exactly 1", slept)
	}
}

func TestAcquireSucceedsAfterRelease(t *testing.T) {
	cache := newFakeCache()
	cache.entries["job:42"] = "worker-b:9"

	l := newTestLocker(t, cache, "worker-a:1", retry.Fixed(2, time.Second))
	l.sleep = func(ctx context.Context, d time.Duration) error {
		// The other worker lets go during our wait.
		delete(cache.entries, "job:42")
		return nil
	}

	if err := l.Acquire(context.Background(), "job:42"); err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	if got := cache.entries["job:42"]; got != "worker-a:1" {
		t.Errorf("lock value = %q, want worker-a:1", got)
	}
}

func TestRelease(t *testing.T) {
	cache := newFakeCache()
	l := newTestLocker(t, cache, "worker-a:1", retry.Once())
	ctx := context.Background()

	if err := l.Acquire(ctx, "job:42"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := l.Release(ctx, "job:42"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, ok := cache.entries["job:42"]; ok {
		t.Errorf("lock still present after Release()")
	}

	// Releasing someone else's lock is a no-op.
	cache.entries["job:42"] = "worker-b:9"
	if err := l.Release(ctx, "job:42"); err != nil {
		t.Fatalf("Release() of foreign lock error = %v", err)
	}
	if got := cache.entries["job:42"]; got != "worker-b:9" {
		t.Errorf("foreign lock removed by Release()")
	}
}

func TestFingerprint(t *testing.T) {
	fp := Fingerprint()
	if fp == "" {
		t.Fatalf("Fingerprint() is empty")
	}
	if fp != Fingerprint() {
		t.Errorf("Fingerprint() is not stable within a process")
	}
}
