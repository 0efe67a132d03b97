package expression

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of merged specs a Cache keeps.
const DefaultCacheSize = 1024

type mergeKey struct {
	global  string
	perCall string
}

// Cache memoizes Merge results. Entries are idempotent, so concurrent callers
// computing the same key may both store it.
type Cache struct {
	lru *lru.Cache[mergeKey, Spec]
}

// NewCache returns a Cache holding at most size entries. size <= 0 selects
// DefaultCacheSize.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[mergeKey, Spec](size)
	if err != nil {
		return &Cache{}
	}
	return &Cache{lru: c}
}

// Merge returns Merge(global, perCall), consulting the cache first.
func (c *Cache) Merge(global, perCall string) Spec {
	if c == nil || c.lru == nil {
		return Merge(global, perCall)
	}
	key := mergeKey{global: global, perCall: perCall}
	if spec, ok := c.lru.Get(key); ok {
		return spec
	}
	spec := Merge(global, perCall)
	c.lru.Add(key, spec)
	return spec
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	if c == nil || c.lru == nil {
		return 0
	}
	return c.lru.Len()
}
