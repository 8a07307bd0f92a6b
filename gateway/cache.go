package gateway

import (
	"sync"
	"time"

	"paper-auditor/models"

	"golang.org/x/sync/singleflight"
)

// CacheEntry is a cached provider answer. NotFound entries are cached too.
type CacheEntry struct {
	Results   []*models.LookupResult
	NotFound  bool
	ExpiresAt time.Time
}

// Cache is a TTL cache of provider answers, safe for concurrent use.
// Concurrent loads of the same key are collapsed into one call.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]*CacheEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	group      singleflight.Group
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// NewCache creates a cache with the given TTL and size bound (0 = unbounded).
func NewCache(ttl time.Duration, maxEntries int, opts ...CacheOption) *Cache {
	c := &Cache{
		entries:    make(map[string]*CacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the live entry for key.
func (c *Cache) Get(key string) (*CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.ExpiresAt) {
		return nil, false
	}
	return e, true
}

// Set stores results for key; an empty result set is stored as NotFound.
func (c *Cache) Set(key string, results []*models.LookupResult) *CacheEntry {
	e := &CacheEntry{
		Results:   results,
		NotFound:  len(results) == 0,
		ExpiresAt: c.now().Add(c.ttl),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	c.entries[key] = e
	return e
}

// GetOrLoad returns the cached entry for key or runs load exactly once
// across concurrent callers. hit is true only when the entry was already
// cached. Failed loads are not cached.
func (c *Cache) GetOrLoad(key string, load func() ([]*models.LookupResult, error)) (entry *CacheEntry, hit bool, err error) {
	if e, ok := c.Get(key); ok {
		return e, true, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if e, ok := c.Get(key); ok {
			return e, nil
		}
		results, err := load()
		if err != nil {
			return nil, err
		}
		return c.Set(key, results), nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*CacheEntry), false, nil
}

// Cleanup drops expired entries and returns how many were removed.
func (c *Cache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.ExpiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictLocked removes expired entries, or else the one expiring soonest.
func (c *Cache) evictLocked() {
	now := c.now()
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if !now.Before(e.ExpiresAt) {
			delete(c.entries, k)
			continue
		}
		if oldestKey == "" || e.ExpiresAt.Before(oldest) {
			oldestKey, oldest = k, e.ExpiresAt
		}
	}
	if len(c.entries) >= c.maxEntries && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
