package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/mikey/phishguard/internal/core"
)

type memoryEntry struct {
	result    *core.RiskResult
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryCache is a bounded in-process LRU implementation of core.CacheRepository
type MemoryCache struct {
	entries  *lru.Cache[string, *memoryEntry]
	opts     Options
	logger   *zap.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(logger *zap.Logger, opts Options) (*MemoryCache, error) {
	entries, err := lru.New[string, *memoryEntry](opts.maxEntries())
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}

	cache := &MemoryCache{
		entries: entries,
		opts:    opts,
		logger:  logger,
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}

	if opts.CleanupFreq > 0 && opts.TTL > 0 {
		go runCleanupTask(opts.CleanupFreq, cache.stopCh, cache.Cleanup, logger)
	}

	return cache, nil
}

// Get returns a copy of the result stored under key
func (c *MemoryCache) Get(_ context.Context, key string) (*core.RiskResult, error) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, core.ErrCacheMiss
	}
	if entry.expired(c.now()) {
		c.entries.Remove(key)
		return nil, core.ErrCacheMiss
	}
	return entry.result.Clone(), nil
}

// Set stores a copy of result under key, evicting the least recently used
// entry when the cache is full
func (c *MemoryCache) Set(_ context.Context, key string, result *core.RiskResult) error {
	if result == nil {
		return fmt.Errorf("refusing to cache nil result for key %s", key)
	}
	evicted := c.entries.Add(key, &memoryEntry{
		result:    result.Clone(),
		expiresAt: c.opts.expiry(c.now()),
	})
	if evicted {
		c.logger.Debug("Evicted least recently used cache entry", zap.Int("size", c.entries.Len()))
	}
	return nil
}

// Delete removes a cache entry
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.entries.Remove(key)
	return nil
}

// Cleanup removes expired entries
func (c *MemoryCache) Cleanup(_ context.Context) error {
	now := c.now()
	expiredCount := 0

	for _, key := range c.entries.Keys() {
		entry, ok := c.entries.Peek(key)
		if ok && entry.expired(now) {
			c.entries.Remove(key)
			expiredCount++
		}
	}

	c.logger.Debug("Cleaned up expired cache entries", zap.Int("expired_count", expiredCount))
	return nil
}

// Len returns the number of stored entries
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}

// Stop stops the background cleanup task
func (c *MemoryCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}
