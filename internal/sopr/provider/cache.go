package provider

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"time"
)

type cacheEntry[V any] struct {
	value    V
	storedAt time.Time
}

// ttlCache 带过期时间的 LRU，size 或 ttl <= 0 时不缓存
type ttlCache[K comparable, V any] struct {
	lru *lru.Cache[K, cacheEntry[V]]
	ttl time.Duration
}

func newTTLCache[K comparable, V any](size int, ttl time.Duration) *ttlCache[K, V] {
	if size <= 0 || ttl <= 0 {
		return &ttlCache[K, V]{}
	}
	c, err := lru.New[K, cacheEntry[V]](size)
	if err != nil {
		return &ttlCache[K, V]{}
	}
	return &ttlCache[K, V]{lru: c, ttl: ttl}
}

func (c *ttlCache[K, V]) Get(key K) (V, bool) {
	var zero V
	if c == nil || c.lru == nil {
		return zero, false
	}
	entry, ok := c.lru.Get(key)
	if !ok {
		return zero, false
	}
	if time.Since(entry.storedAt) > c.ttl {
		c.lru.Remove(key)
		return zero, false
	}
	return entry.value, true
}

func (c *ttlCache[K, V]) Add(key K, value V) {
	if c == nil || c.lru == nil {
		return
	}
	c.lru.Add(key, cacheEntry[V]{value: value, storedAt: time.Now()})
}
