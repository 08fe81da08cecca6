// Package cache provides a time-boxed in-memory store for fetched
// price series. The cache is shared across runs and tickers; the only
// contract is TTL-gate on read, overwrite on write. Concurrent misses
// for the same ticker may both fetch; values are deterministic for the
// same time window, so last-write-wins is safe.
package cache

import (
	"sync"
	"time"

	"stocksignal/models"
)

// DefaultTTL matches the upstream's practical staleness window.
const DefaultTTL = 5 * time.Minute

type entry struct {
	series    *models.RawSeries
	resolved  string
	fetchedAt time.Time
}

// SeriesCache is a TTL cache of aligned price series keyed by
// normalized ticker symbol.
type SeriesCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]entry
	now     func() time.Time
}

// New creates a cache with the given TTL. A non-positive TTL falls
// back to DefaultTTL.
func New(ttl time.Duration) *SeriesCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SeriesCache{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the cached series for ticker if present and within TTL,
// along with the symbol variant the upstream answered for when the
// series was fetched. Expired entries are treated as absent; they are
// overwritten by the next Put, never read.
func (c *SeriesCache) Get(ticker string) (*models.RawSeries, string, bool) {
	key := models.NormalizeTicker(ticker)

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.fetchedAt) >= c.ttl {
		return nil, "", false
	}
	return e.series, e.resolved, true
}

// Put stores the series under ticker with the current timestamp and
// the symbol variant that resolved, unconditionally overwriting any
// previous entry.
func (c *SeriesCache) Put(ticker string, series *models.RawSeries, resolved string) {
	key := models.NormalizeTicker(ticker)

	c.mu.Lock()
	c.entries[key] = entry{series: series, resolved: resolved, fetchedAt: c.now()}
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired or not.
func (c *SeriesCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
