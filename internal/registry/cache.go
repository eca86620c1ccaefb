package registry

import (
	"sync"
	"time"

	"github.com/promptgate/promptgate/internal/models"
)

// loadCache is a TTL-scoped read-through cache for resolved prompt
// versions. Entries are discarded on expiry, not refreshed in place; the
// next lookup re-runs the loader. A zero TTL passed to Get bypasses the
// cache entirely.
type loadCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	value     models.PromptVersion
	expiresAt time.Time // zero means never expires
}

func newLoadCache() *loadCache {
	return &loadCache{
		entries: map[string]cacheEntry{},
		now:     time.Now,
	}
}

// Get returns the cached value for key, running loader on miss or expiry.
// ttl < 0 caches without expiry (immutable referents); ttl == 0 disables
// caching for this lookup.
func (c *loadCache) Get(key string, ttl time.Duration, loader func() (models.PromptVersion, error)) (models.PromptVersion, error) {
	if ttl == 0 {
		return loader()
	}

	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && (entry.expiresAt.IsZero() || c.now().Before(entry.expiresAt)) {
		c.mu.Unlock()
		return entry.value, nil
	}
	if ok {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	value, err := loader()
	if err != nil {
		return models.PromptVersion{}, err
	}

	entry = cacheEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return value, nil
}
