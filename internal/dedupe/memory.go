package dedupe

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	seenAt  time.Time
	element *list.Element
}

// MemoryCache is a size-bounded TTL set. Oldest keys are evicted first.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	order   *list.List
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

func NewMemoryCache(ttl time.Duration, maxSize int) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]*memoryEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

func (c *MemoryCache) Seen(ctx context.Context, key string) (bool, error) {
	return c.CheckAndMark(key), nil
}

// CheckAndMark returns true if key is a live duplicate. Otherwise it records key.
func (c *MemoryCache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if entry, ok := c.entries[key]; ok {
		if now.Sub(entry.seenAt) < c.ttl {
			return true
		}
		entry.seenAt = now
		c.order.MoveToBack(entry.element)
		return false
	}

	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			c.order.Remove(front)
			delete(c.entries, front.Value.(string))
		}
	}

	c.entries[key] = &memoryEntry{seenAt: now, element: c.order.PushBack(key)}
	return false
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *MemoryCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		key := front.Value.(string)
		if now.Sub(c.entries[key].seenAt) < c.ttl {
			return
		}
		c.order.Remove(front)
		delete(c.entries, key)
	}
}

func (c *MemoryCache) Close() {
	c.once.Do(func() { close(c.done) })
}
