// Package memory provides an in-process LRU embedding cache with TTL.
package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/docrag/internal/core/ports/driven"
)

// Ensure Cache implements the interface.
var _ driven.EmbeddingCache = (*Cache)(nil)

// Defaults.
const (
	DefaultCapacity = 4096
	DefaultTTL      = time.Hour
)

// Cache is a bounded LRU. The front of the list is the most recently used entry.
type Cache struct {
	mu    sync.Mutex
	cap   int
	ttl   time.Duration
	list  *list.List
	items map[string]*list.Element
	now   func() time.Time
}

type entry struct {
	key     string
	vec     []float32
	expires time.Time
}

// New creates a cache holding at most capacity vectors for ttl each.
func New(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		cap:   capacity,
		ttl:   ttl,
		list:  list.New(),
		items: make(map[string]*list.Element, capacity),
		now:   time.Now,
	}
}

// Get returns a copy of the cached vector.
func (c *Cache) Get(_ context.Context, key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	ent := el.Value.(*entry)
	if !c.now().Before(ent.expires) {
		c.list.Remove(el)
		delete(c.items, key)
		return nil, false
	}
	c.list.MoveToFront(el)
	return append([]float32(nil), ent.vec...), true
}

// Set stores a copy of vec, evicting the least recently used entry when full.
func (c *Cache) Set(_ context.Context, key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent := &entry{key: key, vec: append([]float32(nil), vec...), expires: c.now().Add(c.ttl)}
	if el, ok := c.items[key]; ok {
		el.Value = ent
		c.list.MoveToFront(el)
		return
	}
	c.items[key] = c.list.PushFront(ent)
	if c.list.Len() > c.cap {
		oldest := c.list.Back()
		c.list.Remove(oldest)
		delete(c.items, oldest.Value.(*entry).key)
	}
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.Len()
}
