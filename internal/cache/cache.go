// Package cache is a small in-process TTL map.
package cache

import (
	"sync"
	"time"
)

const defaultTTL = 5 * time.Second

type Cache[K comparable, V any] struct {
	mu  sync.RWMutex
	ttl time.Duration
	now func() time.Time
	m   map[K]entry[V]
}

type entry[V any] struct {
	val V
	exp time.Time
}

func New[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	if ttl <= 0 {
		ttl = defaultTTL
	}

	return &Cache[K, V]{
		ttl: ttl,
		now: time.Now,
		m:   make(map[K]entry[V]),
	}
}

// Get returns the value for key unless it is missing or expired. Expired
// entries are evicted on read.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	now := c.now()

	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}

	if now.After(e.exp) {
		c.mu.Lock()
		// another writer may have refreshed it meanwhile
		if cur, ok := c.m[key]; ok && now.After(cur.exp) {
			delete(c.m, key)
		}
		c.mu.Unlock()
		return zero, false
	}

	return e.val, true
}

func (c *Cache[K, V]) Set(key K, val V) {
	c.mu.Lock()
	c.m[key] = entry[V]{val: val, exp: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
}

// Purge drops every expired entry and reports how many were removed.
func (c *Cache[K, V]) Purge() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, e := range c.m {
		if now.After(e.exp) {
			delete(c.m, k)
			n++
		}
	}
	return n
}

func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	c.m = make(map[K]entry[V])
	c.mu.Unlock()
}
