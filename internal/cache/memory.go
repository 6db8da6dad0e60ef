// Package cache is a small in-process TTL cache.
package cache

import (
	"sync"
	"time"
)

type Item[V any] struct {
	Value      V
	Expiration int64
}

// MemoryCache expires entries lazily on Get. When full, Set first drops
// expired entries and then, if still full, an arbitrary one.
type MemoryCache[V any] struct {
	items    map[string]Item[V]
	mu       sync.RWMutex
	ttl      time.Duration
	maxItems int

	Now func() time.Time
}

func NewMemoryCache[V any](ttl time.Duration, maxItems int) *MemoryCache[V] {
	return &MemoryCache[V]{
		items:    make(map[string]Item[V]),
		ttl:      ttl,
		maxItems: maxItems,
		Now:      time.Now,
	}
}

func (c *MemoryCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.Now().UnixNano()
	if _, exists := c.items[key]; !exists && c.maxItems > 0 && len(c.items) >= c.maxItems {
		c.evict(now)
	}

	c.items[key] = Item[V]{
		Value:      value,
		Expiration: c.Now().Add(c.ttl).UnixNano(),
	}
}

// evict must be called with mu held.
func (c *MemoryCache[V]) evict(now int64) {
	for k, it := range c.items {
		if now > it.Expiration {
			delete(c.items, k)
		}
	}
	if len(c.items) < c.maxItems {
		return
	}
	for k := range c.items {
		delete(c.items, k)
		return
	}
}

func (c *MemoryCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, found := c.items[key]
	if !found || c.Now().UnixNano() > item.Expiration {
		var zero V
		return zero, false
	}

	return item.Value, true
}
