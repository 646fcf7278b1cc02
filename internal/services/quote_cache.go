package services

import (
	"sync"
	"time"
)

// quoteCache memoizes quote results per (destination, cart fingerprint) for a
// fixed TTL. Expired entries are treated as absent on read and reclaimed by
// Sweep. Safe for concurrent use; failures are never stored.
type quoteCache struct {
	ttl time.Duration
	now func() time.Time
	mu  sync.RWMutex
	m   map[string]quoteCacheEntry
}

type quoteCacheEntry struct {
	result  QuoteResult
	expires time.Time
}

func newQuoteCache(ttl time.Duration, now func() time.Time) *quoteCache {
	return &quoteCache{
		ttl: ttl,
		now: now,
		m:   make(map[string]quoteCacheEntry),
	}
}

func (c *quoteCache) Get(key string) (QuoteResult, bool) {
	c.mu.RLock()
	entry, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return QuoteResult{}, false
	}
	if c.now().After(entry.expires) {
		c.mu.Lock()
		// Re-check under the write lock; another request may have refreshed it.
		if current, still := c.m[key]; still && c.now().After(current.expires) {
			delete(c.m, key)
		}
		c.mu.Unlock()
		return QuoteResult{}, false
	}
	return entry.result, true
}

func (c *quoteCache) Set(key string, result QuoteResult) {
	c.mu.Lock()
	c.m[key] = quoteCacheEntry{result: result, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Sweep removes expired entries in a single pass and reports how many were
// reclaimed. It bounds memory growth from abandoned fingerprints.
func (c *quoteCache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.m {
		if now.After(entry.expires) {
			delete(c.m, key)
			removed++
		}
	}
	return removed
}

func (c *quoteCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
