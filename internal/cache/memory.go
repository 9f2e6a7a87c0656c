package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// sweepInterval bounds how often a write scans for expired entries.
const sweepInterval = time.Minute

// MemoryCache implements Cache in process memory. Expired entries are dropped
// on access and by a sweep that runs at most once per sweepInterval on write.
type MemoryCache struct {
	mu        sync.Mutex
	entries   map[string]memoryEntry
	now       func() time.Time
	lastSweep time.Time
}

func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheWithClock(time.Now)
}

// NewMemoryCacheWithClock creates a MemoryCache that reads time from now.
func NewMemoryCacheWithClock(now func() time.Time) *MemoryCache {
	return &MemoryCache{
		entries:   make(map[string]memoryEntry),
		now:       now,
		lastSweep: now(),
	}
}

func (c *MemoryCache) Ping(_ context.Context) error { return nil }

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value, ttl)
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.getLocked(key)
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *MemoryCache) SetJobStatus(ctx context.Context, jobID string, status string, ttl time.Duration) error {
	return c.Set(ctx, JobStatusKey(jobID), []byte(status), ttl)
}

func (c *MemoryCache) GetJobStatus(ctx context.Context, jobID string) (string, bool, error) {
	val, ok, err := c.Get(ctx, JobStatusKey(jobID))
	return string(val), ok, err
}

// IncrWithExpiry increments key. The expiry is set when the key is created
// and kept on later increments, matching the Redis implementation.
func (c *MemoryCache) IncrWithExpiry(_ context.Context, key string, expiry time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.getLocked(key)
	if !ok {
		c.setLocked(key, []byte("1"), expiry)
		return 1, nil
	}
	n, err := strconv.ParseInt(string(e.value), 10, 64)
	if err != nil {
		return 0, err
	}
	n++
	e.value = []byte(strconv.FormatInt(n, 10))
	c.entries[key] = e
	return n, nil
}

// Len returns the number of entries held, including expired ones not yet swept.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// DeleteExpired removes every expired entry and returns how many were removed.
func (c *MemoryCache) DeleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(c.now())
}

func (c *MemoryCache) sweepLocked(now time.Time) int {
	removed := 0
	for key, e := range c.entries {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	c.lastSweep = now
	return removed
}

func (c *MemoryCache) setLocked(key string, value []byte, ttl time.Duration) {
	now := c.now()
	if now.Sub(c.lastSweep) >= sweepInterval {
		c.sweepLocked(now)
	}

	e := memoryEntry{value: make([]byte, len(value))}
	copy(e.value, value)
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	c.entries[key] = e
}

func (c *MemoryCache) getLocked(key string) (memoryEntry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

var _ Cache = (*MemoryCache)(nil)
