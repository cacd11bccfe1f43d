package translator

import "sync"

const DefaultCacheSize = 1000

type CacheKey struct {
	SourceLang string
	TargetLang string
	Text       string
}

// Cache is a bounded map that evicts the oldest inserted entry first.
// Lookups do not refresh an entry's position.
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[CacheKey]Translation
	// order is a ring of inserted keys; head is the oldest once the ring is full.
	order []CacheKey
	head  int
}

func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[CacheKey]Translation, capacity),
		order:    make([]CacheKey, capacity),
	}
}

func (c *Cache) Get(key CacheKey) (Translation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.entries[key]
	return t, ok
}

func (c *Cache) Add(key CacheKey, t Translation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; exists {
		c.entries[key] = t
		return
	}
	if len(c.entries) >= c.capacity {
		delete(c.entries, c.order[c.head])
	}
	c.order[c.head] = key
	c.head = (c.head + 1) % c.capacity
	c.entries[key] = t
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
