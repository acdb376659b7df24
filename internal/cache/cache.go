package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

type CacheItem struct {
	Value     any
	ExpiresAt time.Time
}

// Cache is a TTL map. Expired entries are invisible to Get and removed by a
// background sweep until Close is called.
type Cache struct {
	mu    sync.RWMutex
	items map[string]CacheItem
	now   func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// New starts the cleanup loop; cleanupEvery <= 0 means hourly.
func New(cleanupEvery time.Duration) *Cache {
	if cleanupEvery <= 0 {
		cleanupEvery = time.Hour
	}
	c := &Cache{
		items: make(map[string]CacheItem),
		now:   time.Now,
		done:  make(chan struct{}),
	}

	go c.cleanupLoop(cleanupEvery)

	return c
}

func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = CacheItem{
		Value:     value,
		ExpiresAt: c.now().Add(ttl),
	}
}

func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	if !exists || c.now().After(item.ExpiresAt) {
		return nil, false
	}
	return item.Value, true
}

func (c *Cache) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Len counts stored items, expired ones included until the next sweep.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Key hashes the parts into a fixed-size key.
func Key(parts ...string) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, item := range c.items {
		if now.After(item.ExpiresAt) {
			delete(c.items, key)
		}
	}
}
