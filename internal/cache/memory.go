package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/davidbz/tonepipe/internal/domain"
)

// DefaultTTL is the per-entry expiry applied when callers pass a
// non-positive TTL.
const DefaultTTL = 600 * time.Second

// MemoryCache is an in-process response cache with per-entry expiry.
// Expired entries are dropped lazily on Get and by a periodic sweep
// that bounds memory. Safe for concurrent use.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	stop    chan struct{}
	once    sync.Once
}

type memoryEntry struct {
	result    *domain.RewriteResult
	expiresAt time.Time
}

// NewMemoryCache creates a memory cache and starts its sweeper.
func NewMemoryCache(sweepInterval time.Duration) *MemoryCache {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}

	c := &MemoryCache{
		mu:      sync.RWMutex{},
		entries: make(map[string]memoryEntry),
		stop:    make(chan struct{}),
		once:    sync.Once{},
	}

	go c.sweep(sweepInterval)

	return c
}

// Get returns the cached result for a key, or domain.ErrCacheMiss. An
// entry past its expiry is never returned. The result is copied so
// callers can adjust response fields without mutating the cached value.
func (c *MemoryCache) Get(_ context.Context, key string) (*domain.RewriteResult, error) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return nil, domain.ErrCacheMiss
	}

	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have
		// replaced the entry.
		if current, ok := c.entries[key]; ok && time.Now().After(current.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, domain.ErrCacheMiss
	}

	result := *entry.result
	return &result, nil
}

// Set stores a result under a key with a per-entry TTL.
func (c *MemoryCache) Set(_ context.Context, key string, result *domain.RewriteResult, ttl time.Duration) error {
	if result == nil {
		return errors.New("result cannot be nil")
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	stored := *result

	c.mu.Lock()
	c.entries[key] = memoryEntry{
		result:    &stored,
		expiresAt: time.Now().Add(ttl),
	}
	c.mu.Unlock()

	return nil
}

// Len returns the current number of entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the background sweeper.
func (c *MemoryCache) Close() {
	c.once.Do(func() {
		close(c.stop)
	})
}

func (c *MemoryCache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, entry := range c.entries {
				if now.After(entry.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
