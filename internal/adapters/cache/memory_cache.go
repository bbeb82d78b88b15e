package cache

import (
	"context"
	"sync"
	"time"

	"github.com/mikey/submission-guard/internal/core"
	"go.uber.org/zap"
)

type entry struct {
	verdict   core.LLMVerdict
	expiresAt time.Time
}

// MemoryCache is an in-memory implementation of core.VerdictCache
type MemoryCache struct {
	entries     map[string]entry
	mu          sync.RWMutex
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
	now         func() time.Time
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(logger *zap.Logger, cleanupFreq time.Duration) *MemoryCache {
	cache := &MemoryCache{
		entries:     make(map[string]entry),
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
		now:         time.Now,
	}

	if cleanupFreq > 0 {
		go cache.startCleanupTask()
	}

	return cache
}

// Get retrieves a live verdict
func (c *MemoryCache) Get(_ context.Context, key string) (*core.LLMVerdict, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false
	}
	v := e.verdict
	return &v, true
}

// Set stores a verdict
func (c *MemoryCache) Set(_ context.Context, key string, verdict *core.LLMVerdict, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{verdict: *verdict, expiresAt: c.now().Add(ttl)}
}

// Cleanup removes expired entries
func (c *MemoryCache) Cleanup(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	expired := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			expired++
		}
	}

	c.logger.Debug("Cleaned up expired verdicts", zap.Int("expired_count", expired))
	return nil
}

// Len returns the number of stored entries, expired or not
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryCache) startCleanupTask() {
	runCleanup(c, c.cleanupFreq, c.stopCh, c.logger)
}

// Stop stops the background cleanup task
func (c *MemoryCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func runCleanup(c core.VerdictCache, freq time.Duration, stopCh <-chan struct{}, logger *zap.Logger) {
	ticker := time.NewTicker(freq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Cleanup(context.Background()); err != nil {
				logger.Error("Failed to clean up verdict cache", zap.Error(err))
			}
		case <-stopCh:
			return
		}
	}
}
