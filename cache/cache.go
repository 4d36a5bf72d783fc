// Package cache keeps recent scrape results in memory so repeated triggers
// for the same product can be answered without opening the page again.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/pricewatch/models"
)

const (
	cleanupInterval = 5 * time.Minute
	maxEntryAge     = time.Hour
)

type entry struct {
	result    models.ScrapeResult
	createdAt time.Time
}

// Cache maps product URLs to their latest result.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Cache holding at most maxEntries results. A background
// goroutine evicts entries older than an hour until Close is called.
func New(maxEntries int) *Cache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		done:       make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Key derives the cache key for a product URL. Surrounding whitespace and
// a trailing slash do not change the key.
func Key(url string) string {
	url = strings.TrimSuffix(strings.TrimSpace(url), "/")
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Get returns a copy of the result stored under key if it is younger than
// maxAgeMs milliseconds. maxAgeMs <= 0 disables the lookup.
func (c *Cache) Get(key string, maxAgeMs int) (*models.ScrapeResult, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if time.Since(e.createdAt) > time.Duration(maxAgeMs)*time.Millisecond {
		return nil, false
	}
	r := e.result
	return &r, true
}

// Set stores a copy of r under key. At capacity an arbitrary entry is
// evicted first.
func (c *Cache) Set(key string, r *models.ScrapeResult) {
	if r == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}
	c.store[key] = &entry{result: *r, createdAt: time.Now()}
}

// Len returns the number of cached results.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Close stops the cleanup goroutine.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			c.evictBefore(now.Add(-maxEntryAge))
		}
	}
}

func (c *Cache) evictBefore(cutoff time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
}
