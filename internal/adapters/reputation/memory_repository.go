package reputation

import (
	"context"
	"sync"
	"time"

	"github.com/mikey/submission-guard/internal/core"
	"go.uber.org/zap"
)

// MemoryRepository is an in-memory implementation of core.ReputationRepository
type MemoryRepository struct {
	entries map[string]core.IPReputationEntry
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewMemoryRepository creates a new in-memory reputation repository
func NewMemoryRepository(logger *zap.Logger) *MemoryRepository {
	return &MemoryRepository{
		entries: make(map[string]core.IPReputationEntry),
		logger:  logger,
	}
}

// Get retrieves the entry for an address
func (r *MemoryRepository) Get(_ context.Context, ip string) (*core.IPReputationEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[ip]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &entry, nil
}

// Set stores a copy of entry
func (r *MemoryRepository) Set(_ context.Context, entry *core.IPReputationEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[entry.IP] = *entry
	return nil
}

// Delete removes an entry
func (r *MemoryRepository) Delete(_ context.Context, ip string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, ip)
	return nil
}

// Cleanup removes expired entries
func (r *MemoryRepository) Cleanup(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired int64
	for ip, entry := range r.entries {
		if entry.Expired(now) {
			delete(r.entries, ip)
			expired++
		}
	}

	r.logger.Debug("Cleaned up expired reputation entries", zap.Int64("expired_count", expired))
	return expired, nil
}

// Len returns the number of stored entries
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
