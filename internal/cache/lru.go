// Package cache provides a bounded LRU store for compiled query templates.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
)

const (
	// DefaultCapacity is the default maximum number of cached entries.
	DefaultCapacity = 1000
)

// LRU is a bounded least-recently-used cache keyed by string.
// Entries are never mutated after insertion; a concurrent write race on the
// same key is resolved by last-writer-wins overwrite, which is safe as long
// as values for equal keys are interchangeable.
type LRU[V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	lruList  *list.List

	// Metrics using atomic for lock-free reads.
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// entry is a single cached key/value pair.
type entry[V any] struct {
	key   string
	value V
}

// New creates an LRU cache with the default capacity.
func New[V any]() *LRU[V] {
	return NewWithCapacity[V](DefaultCapacity)
}

// NewWithCapacity creates an LRU cache with the specified capacity.
// Non-positive capacities fall back to the default.
func NewWithCapacity[V any](capacity int) *LRU[V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &LRU[V]{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		lruList:  list.New(),
	}
}

// Get retrieves a value by key.
// Accessing an entry moves it to the front of the LRU list.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.items[key]
	if !exists {
		c.misses.Add(1)
		var zero V
		return zero, false
	}

	c.lruList.MoveToFront(elem)
	c.hits.Add(1)

	return elem.Value.(*entry[V]).value, true
}

// Set stores a value under key, overwriting any existing entry.
// If the cache is at capacity, the least recently used entry is evicted.
func (c *LRU[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		c.lruList.MoveToFront(elem)
		elem.Value.(*entry[V]).value = value
		return
	}

	if c.lruList.Len() >= c.capacity {
		c.evictOldest()
	}

	elem := c.lruList.PushFront(&entry[V]{key: key, value: value})
	c.items[key] = elem
}

// evictOldest removes the least recently used entry.
// Must be called with the lock held.
func (c *LRU[V]) evictOldest() {
	elem := c.lruList.Back()
	if elem == nil {
		return
	}

	c.lruList.Remove(elem)
	delete(c.items, elem.Value.(*entry[V]).key)
	c.evictions.Add(1)
}

// Clear removes all cached entries. Metrics are preserved.
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element, c.capacity)
	c.lruList.Init()
}

// Stats holds cache performance metrics.
type Stats struct {
	Size      int     // Current number of cached entries.
	Capacity  int     // Maximum capacity.
	Hits      uint64  // Number of successful lookups.
	Misses    uint64  // Number of lookups that found nothing.
	Evictions uint64  // Number of evicted entries.
	HitRate   float64 // Hits / total lookups.
}

// Stats returns a snapshot of the cache metrics.
func (c *LRU[V]) Stats() Stats {
	c.mu.Lock()
	size := c.lruList.Len()
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()

	total := hits + misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Size:      size,
		Capacity:  c.capacity,
		Hits:      hits,
		Misses:    misses,
		Evictions: c.evictions.Load(),
		HitRate:   hitRate,
	}
}
