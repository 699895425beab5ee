// Package cache provides an in-memory LRU cache with TTL for caching JSON
// responses of aggregate collection reads.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// entry is a cached response body and its content type.
type entry struct {
	value       []byte
	contentType string
}

// LRUCache is a thread-safe in-memory cache with TTL and max-size eviction.
// When the cache is full, the least recently used entry is evicted. Expired
// entries are never returned and are swept in the background.
type LRUCache struct {
	lru     *expirable.LRU[string, entry]
	maxSize int
	ttl     time.Duration
}

// NewLRUCache creates a new LRU cache with the given maximum size and TTL.
// maxSize below 1 becomes 1; a non-positive ttl becomes 60s.
func NewLRUCache(maxSize int, ttl time.Duration) *LRUCache {
	if maxSize < 1 {
		maxSize = 1
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &LRUCache{
		lru:     expirable.NewLRU[string, entry](maxSize, nil, ttl),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get retrieves a cached value by key. Returns (nil, false) if the key is
// missing or expired.
func (c *LRUCache) Get(key string) ([]byte, bool) {
	v, _, ok := c.get(key)
	return v, ok
}

func (c *LRUCache) get(key string) ([]byte, string, bool) {
	e, ok := c.lru.Get(key)
	if !ok {
		return nil, "", false
	}
	return e.value, e.contentType, true
}

// Set stores a JSON value, evicting the least recently used entry if the
// cache is full.
func (c *LRUCache) Set(key string, value []byte) {
	c.set(key, value, "application/json")
}

func (c *LRUCache) set(key string, value []byte, contentType string) {
	c.lru.Add(key, entry{value: value, contentType: contentType})
}

// Invalidate removes a specific key from the cache.
func (c *LRUCache) Invalidate(key string) {
	c.lru.Remove(key)
}

// InvalidateAll removes all entries from the cache.
func (c *LRUCache) InvalidateAll() {
	c.lru.Purge()
}

// Size returns the number of live entries.
func (c *LRUCache) Size() int {
	return len(c.lru.Keys())
}
