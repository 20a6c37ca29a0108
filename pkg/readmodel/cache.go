package readmodel

import (
	"sync"
	"time"

	"github.com/jondmarien/hemostat/pkg/shared/clock"
)

// cacheTTL mirrors the dashboard's original @st.cache_data(ttl=5): every
// Redis read feeding an HTTP response is reused for five seconds so a
// handful of dashboard clients polling concurrently collapse into one
// Redis round trip.
const cacheTTL = 5 * time.Second

// ttlCache is a small in-memory memoization layer keyed by query shape
// (endpoint + parameters). It replaces Streamlit's caching decorators,
// which have no equivalent outside a Streamlit process.
type ttlCache struct {
	clock clock.Clock

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value     interface{}
	expiresAt time.Time
}

func newTTLCache(clk clock.Clock) *ttlCache {
	return &ttlCache{clock: clk, entries: map[string]cacheEntry{}}
}

// cachedFetch returns the cached value for key if it hasn't expired,
// otherwise calls fetch, caches the result for ttl, and returns it.
func cachedFetch[T any](c *ttlCache, key string, ttl time.Duration, fetch func() (T, error)) (T, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && c.clock.Now().Before(e.expiresAt) {
		c.mu.Unlock()
		return e.value.(T), nil
	}
	c.mu.Unlock()

	v, err := fetch()
	if err != nil {
		var zero T
		return zero, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{value: v, expiresAt: c.clock.Now().Add(ttl)}
	c.mu.Unlock()
	return v, nil
}
