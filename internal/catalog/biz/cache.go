package biz

import (
	"context"
	"sync"
	"time"
)

// ResultCache 查询结果缓存，键为 (generation, predicate key)
//
// Bump 使之前所有 generation 的结果失效；Set 对过期 generation 的写入必须被忽略。
type ResultCache interface {
	Generation(ctx context.Context) (uint64, error)
	Bump(ctx context.Context) (uint64, error)
	Get(ctx context.Context, generation uint64, key string) ([]*Entry, bool, error)
	Set(ctx context.Context, generation uint64, key string, entries []*Entry) error
	// Shared reports whether every service instance sees the same generation
	Shared() bool
}

// Invalidation 目录变更通知
type Invalidation struct {
	Generation uint64    `json:"generation"`
	Reason     string    `json:"reason"`
	EntryIDs   []string  `json:"entry_ids,omitempty"`
	Origin     string    `json:"origin"`
	At         time.Time `json:"at"`
}

// InvalidationBus 变更通知总线（本地或跨实例）
type InvalidationBus interface {
	Publish(ctx context.Context, inv Invalidation) error
	Subscribe(handler func(Invalidation)) (unsubscribe func())
}

// MemoryCache 进程内结果缓存，只保留当前 generation
type MemoryCache struct {
	mu         sync.RWMutex
	generation uint64
	results    map[string][]*Entry
	maxKeys    int
}

// NewMemoryCache creates a cache holding at most maxKeys predicates; 0 means 256
func NewMemoryCache(maxKeys int) *MemoryCache {
	if maxKeys <= 0 {
		maxKeys = 256
	}
	return &MemoryCache{
		results: make(map[string][]*Entry),
		maxKeys: maxKeys,
	}
}

func (c *MemoryCache) Generation(context.Context) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation, nil
}

func (c *MemoryCache) Bump(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.results = make(map[string][]*Entry)
	return c.generation, nil
}

func (c *MemoryCache) Get(_ context.Context, generation uint64, key string) ([]*Entry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if generation != c.generation {
		return nil, false, nil
	}
	entries, ok := c.results[key]
	if !ok {
		return nil, false, nil
	}
	return cloneEntries(entries), true, nil
}

func (c *MemoryCache) Set(_ context.Context, generation uint64, key string, entries []*Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return nil
	}
	if _, exists := c.results[key]; !exists && len(c.results) >= c.maxKeys {
		// full: start over rather than track recency
		c.results = make(map[string][]*Entry)
	}
	c.results[key] = cloneEntries(entries)
	return nil
}

func (c *MemoryCache) Shared() bool {
	return false
}

// LocalBus 进程内通知总线
type LocalBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]func(Invalidation)
}

func NewLocalBus() *LocalBus {
	return &LocalBus{handlers: make(map[int]func(Invalidation))}
}

// Publish delivers inv synchronously to every subscriber
func (b *LocalBus) Publish(_ context.Context, inv Invalidation) error {
	b.Dispatch(inv)
	return nil
}

// Dispatch runs the subscribed handlers for inv
func (b *LocalBus) Dispatch(inv Invalidation) {
	b.mu.RLock()
	handlers := make([]func(Invalidation), 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(inv)
	}
}

func (b *LocalBus) Subscribe(handler func(Invalidation)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}
