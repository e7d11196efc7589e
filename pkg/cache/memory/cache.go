// Package memory is a bounded in-process response cache. It serves as the
// session fallback when the persistent store cannot be opened.
package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/workyterm/workyterm/pkg/cache"
	"github.com/workyterm/workyterm/pkg/models"
)

// DefaultSize is used when New is given a non-positive size.
const DefaultSize = 512

// Cache is an LRU cache of models.CacheEntry with per-entry TTL.
type Cache struct {
	entries *lru.Cache
	ttl     time.Duration
	mu      sync.Mutex
	hits    atomic.Int64
	misses  atomic.Int64
	now     func() time.Time
}

var _ cache.Store = (*Cache)(nil)

// New creates a Cache holding at most size entries.
func New(size int, ttl time.Duration) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	entries, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries, ttl: ttl, now: time.Now}, nil
}

// Get returns a live entry. Expired entries are evicted and reported absent.
func (c *Cache) Get(_ context.Context, key models.CacheKey) (models.CacheEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	val, found := c.entries.Get(key)
	if !found {
		c.misses.Add(1)
		return models.CacheEntry{}, false, nil
	}
	e := val.(models.CacheEntry)
	if e.Expired(c.now()) {
		c.entries.Remove(key)
		c.misses.Add(1)
		return models.CacheEntry{}, false, nil
	}
	c.hits.Add(1)
	return e, true, nil
}

// Put stores an entry, replacing any previous value for its key.
func (c *Cache) Put(_ context.Context, e models.CacheEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = c.now()
	}
	if e.TTL == 0 {
		e.TTL = c.ttl
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(e.Key, e)
	return nil
}

// Clear removes all entries, or only expired ones.
func (c *Cache) Clear(_ context.Context, expiredOnly bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !expiredOnly {
		c.entries.Purge()
		return nil
	}
	now := c.now()
	for _, k := range c.entries.Keys() {
		if v, ok := c.entries.Peek(k); ok && v.(models.CacheEntry).Expired(now) {
			c.entries.Remove(k)
		}
	}
	return nil
}

// Stats reports entry counts and hit/miss counters.
func (c *Cache) Stats(_ context.Context) (models.CacheStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	s := models.CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
	for _, k := range c.entries.Keys() {
		v, ok := c.entries.Peek(k)
		if !ok {
			continue
		}
		e := v.(models.CacheEntry)
		s.Entries++
		s.Bytes += int64(len(e.Response))
		if e.Expired(now) {
			s.Expired++
		}
	}
	return s, nil
}

// Close is a no-op.
func (c *Cache) Close() error { return nil }
