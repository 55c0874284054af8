// Package cache is the in-memory freshness cache shared by the sync engine.
//
// Entries never expire. Readers get the age of an entry and decide for themselves
// whether it is too old; a forced refetch simply overwrites the entry.
package cache

import (
	"sort"
	"sync"
	"time"
)

// Entry is a stored value and the moment it was written.
type Entry struct {
	Key      string
	Value    any
	StoredAt time.Time
}

// Hit is what [Cache.Get] returns for a present key. Age is computed at read time.
type Hit struct {
	Value    any
	Age      time.Duration
	StoredAt time.Time
}

// Option configures a [Cache].
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// Cache maps keys to the most recently written value. Last writer wins.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{entries: make(map[string]Entry), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value for key with its current age.
func (c *Cache) Get(key string) (Hit, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return Hit{}, false
	}

	age := c.now().Sub(e.StoredAt)
	if age < 0 {
		age = 0
	}
	return Hit{Value: e.Value, Age: age, StoredAt: e.StoredAt}, true
}

// Put replaces the value for key and stamps it with the current time.
func (c *Cache) Put(key string, value any) {
	c.mu.Lock()
	c.entries[key] = Entry{Key: key, Value: value, StoredAt: c.now()}
	c.mu.Unlock()
}

// Delete removes a single key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.mu.Unlock()
}

// Len is the number of stored keys.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Keys returns the stored keys in sorted order.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Lookup is a typed [Cache.Get]. A value of another type counts as a miss.
func Lookup[T any](c *Cache, key string) (T, time.Duration, bool) {
	hit, ok := c.Get(key)
	if !ok {
		var zero T
		return zero, 0, false
	}
	v, ok := hit.Value.(T)
	if !ok {
		var zero T
		return zero, 0, false
	}
	return v, hit.Age, true
}
