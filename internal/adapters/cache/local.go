package cache

import (
	"container/list"
	"sync"
	"time"
)

type localEntry struct {
	key       string
	value     []byte
	tags      []string
	expiresAt time.Time
	elem      *list.Element
}

// localCache is the in-process cache level: a TTL map bounded by entry
// count, with FIFO eviction once full. Entries here are always at most as
// fresh as their shared-level counterparts.
type localCache struct {
	mu         sync.Mutex
	entries    map[string]*localEntry
	order      *list.List
	maxEntries int
	evictions  int64
}

func newLocalCache(maxEntries int) *localCache {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &localCache{
		entries:    make(map[string]*localEntry),
		order:      list.New(),
		maxEntries: maxEntries,
	}
}

func (c *localCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.remove(entry)
		return nil, false
	}
	return entry.value, true
}

func (c *localCache) set(key string, value []byte, ttl time.Duration, tags []string) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		c.remove(existing)
	}

	if len(c.entries) >= c.maxEntries {
		c.sweepLocked()
	}
	for len(c.entries) >= c.maxEntries {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.remove(oldest.Value.(*localEntry))
		c.evictions++
	}

	entry := &localEntry{
		key:       key,
		value:     value,
		tags:      tags,
		expiresAt: time.Now().Add(ttl),
	}
	entry.elem = c.order.PushBack(entry)
	c.entries[key] = entry
}

func (c *localCache) delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		c.remove(entry)
	}
}

// deleteByTag drops every entry carrying the tag and reports how many.
func (c *localCache) deleteByTag(tag string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, entry := range c.entries {
		for _, t := range entry.tags {
			if t == tag {
				c.remove(entry)
				removed++
				break
			}
		}
	}
	return removed
}

func (c *localCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
}

func (c *localCache) sweepLocked() {
	now := time.Now()
	for _, entry := range c.entries {
		if now.After(entry.expiresAt) {
			c.remove(entry)
		}
	}
}

// remove unlinks an entry. Caller holds the mutex.
func (c *localCache) remove(entry *localEntry) {
	delete(c.entries, entry.key)
	c.order.Remove(entry.elem)
}

func (c *localCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *localCache) evicted() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictions
}

func (c *localCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*localEntry)
	c.order.Init()
}
