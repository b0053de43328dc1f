// Package cache memoises captured command output for the duration of a
// single aggregation run. Nothing is kept across runs.
package cache

import (
	"sort"
	"sync"
	"time"
)

// Entry holds one captured result
type Entry struct {
	Output []byte
	Err    error
	Took   time.Duration
}

// Cache is a thread-safe store of captures keyed by command line
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	hits    int
}

// New creates an empty cache
func New() *Cache {
	return &Cache{
		entries: make(map[string]*Entry),
	}
}

// Get returns the entry for key, if captured
func (c *Cache) Get(key string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if ok {
		c.hits++
	}
	return entry, ok
}

// Set stores a capture
func (c *Cache) Set(key string, output []byte, err error, took time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &Entry{
		Output: output,
		Err:    err,
		Took:   took,
	}
}

// Hits returns how many lookups were served from the cache
func (c *Cache) Hits() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits
}

// Keys returns all keys in sorted order (for debugging)
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Elapsed returns the total time spent producing the cached captures
func (c *Cache) Elapsed() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var total time.Duration
	for _, e := range c.entries {
		total += e.Took
	}
	return total
}
