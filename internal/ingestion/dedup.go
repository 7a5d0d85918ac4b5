package ingestion

import (
	"container/list"
	"sync"
)

// seenCache is an LRU of idempotency keys whose dispatch already changed a
// record. Redeliveries that hit it are acked without touching the store.
type seenCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List
}

func newSeenCache(capacity int) *seenCache {
	return &seenCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Contains reports whether key was added and promotes it.
func (c *seenCache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if ok {
		c.order.MoveToFront(elem)
	}
	return ok
}

func (c *seenCache) Add(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.order.MoveToFront(elem)
		return
	}
	c.entries[key] = c.order.PushFront(key)

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(string))
	}
}

func (c *seenCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
