// Package cache provides the response cache tiers for the upstream
// gateway: an in-memory LRU with per-entry TTL, and an optional Redis
// second tier for cross-restart sharing.
package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"
)

// Config configures the in-memory cache.
type Config struct {
	// MaxItems is the LRU capacity (default: 1000).
	MaxItems int
	// DefaultTTL applies when Set is called without an explicit TTL
	// (default: 24h, the provider catalog churn rate).
	DefaultTTL time.Duration
	// CleanupInterval is the period of the background expired-entry sweep.
	// Zero disables the sweeper; expiry is still enforced lazily on Get.
	CleanupInterval time.Duration
}

// Cache is an in-memory LRU cache with TTL support. Entries are opaque
// payloads, replaced wholesale on write and never mutated in place.
// All methods are safe for concurrent use.
type Cache struct {
	capacity   int
	defaultTTL time.Duration
	mu         sync.RWMutex

	items map[string]*entry
	order *list.List

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
	element   *list.Element
}

// New creates a cache and, when CleanupInterval is set, starts the sweeper.
func New(cfg Config) *Cache {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 1000
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 24 * time.Hour
	}

	c := &Cache{
		capacity:   cfg.MaxItems,
		defaultTTL: cfg.DefaultTTL,
		items:      make(map[string]*entry),
		order:      list.New(),
	}

	if cfg.CleanupInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		c.wg.Add(1)
		go c.cleanupLoop(ctx, cfg.CleanupInterval)
	}

	return c
}

// Get retrieves a value. An entry past its TTL is treated as a miss and
// evicted on the spot.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return nil, false
	}

	if time.Now().After(e.expiresAt) {
		c.removeEntry(e)
		return nil, false
	}

	c.order.MoveToFront(e.element)
	return e.value, true
}

// Set stores a value with the default TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte) {
	c.SetWithTTL(ctx, key, value, 0)
}

// SetWithTTL stores a value with an explicit TTL.
func (c *Cache) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		e.value = value
		e.expiresAt = time.Now().Add(ttl)
		c.order.MoveToFront(e.element)
		return
	}

	for len(c.items) >= c.capacity {
		c.evictOldest()
	}

	e := &entry{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	e.element = c.order.PushFront(e)
	c.items[key] = e
}

// Delete removes a single key.
func (c *Cache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		c.removeEntry(e)
	}
}

// Invalidate removes entries matching the pattern and returns the count.
// Supports a trailing * wildcard (e.g. "tmdb:*").
func (c *Cache) Invalidate(_ context.Context, pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !strings.HasSuffix(pattern, "*") {
		if e, ok := c.items[pattern]; ok {
			c.removeEntry(e)
			return 1
		}
		return 0
	}

	prefix := strings.TrimSuffix(pattern, "*")
	count := 0
	for key, e := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.removeEntry(e)
			count++
		}
	}
	return count
}

// Size returns the number of resident entries, expired ones included.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Clear removes all entries.
func (c *Cache) Clear(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*entry)
	c.order.Init()
}

// Close stops the background sweeper, if any.
func (c *Cache) Close() error {
	if c.cancel != nil {
		c.cancel()
		c.wg.Wait()
	}
	return nil
}

// CleanupExpired removes all expired entries and returns the count.
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toDelete []*entry
	now := time.Now()
	for _, e := range c.items {
		if now.After(e.expiresAt) {
			toDelete = append(toDelete, e)
		}
	}
	for _, e := range toDelete {
		c.removeEntry(e)
	}
	return len(toDelete)
}

func (c *Cache) cleanupLoop(ctx context.Context, interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CleanupExpired()
		}
	}
}

// evictOldest removes the least recently used entry.
// Must be called with lock held.
func (c *Cache) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	c.removeEntry(oldest.Value.(*entry))
}

// removeEntry removes an entry from the cache.
// Must be called with lock held.
func (c *Cache) removeEntry(e *entry) {
	c.order.Remove(e.element)
	delete(c.items, e.key)
}
