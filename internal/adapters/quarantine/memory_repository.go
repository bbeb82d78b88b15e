package quarantine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mikey/submission-guard/internal/core"
	"go.uber.org/zap"
)

// MemoryRepository is an in-memory implementation of core.QuarantineRepository
type MemoryRepository struct {
	records map[string]*core.QuarantineRecord
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewMemoryRepository creates a new in-memory quarantine repository
func NewMemoryRepository(logger *zap.Logger) *MemoryRepository {
	return &MemoryRepository{
		records: make(map[string]*core.QuarantineRecord),
		logger:  logger,
	}
}

func clone(r *core.QuarantineRecord) *core.QuarantineRecord {
	c := *r
	if r.ReviewedAt != nil {
		at := *r.ReviewedAt
		c.ReviewedAt = &at
	}
	return &c
}

// Save stores a record
func (r *MemoryRepository) Save(_ context.Context, record *core.QuarantineRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[record.ID] = clone(record)
	return nil
}

// Get retrieves a record by ID
func (r *MemoryRepository) Get(_ context.Context, id string) (*core.QuarantineRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return clone(record), nil
}

// List returns records matching filter, newest first
func (r *MemoryRepository) List(_ context.Context, filter core.QuarantineFilter) ([]*core.QuarantineRecord, error) {
	r.mu.RLock()
	matched := make([]*core.QuarantineRecord, 0, len(r.records))
	for _, record := range r.records {
		if matches(record, filter) {
			matched = append(matched, clone(record))
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	if filter.Offset >= len(matched) {
		return []*core.QuarantineRecord{}, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func matches(r *core.QuarantineRecord, f core.QuarantineFilter) bool {
	if f.Status != "" && r.ReviewStatus != f.Status {
		return false
	}
	if f.FormKey != "" && r.Submission.FormKey != f.FormKey {
		return false
	}
	if f.Outcome != "" && r.Decision.Outcome != f.Outcome {
		return false
	}
	return true
}

// UpdateStatus moves a pending record to status
func (r *MemoryRepository) UpdateStatus(_ context.Context, id string, status core.ReviewStatus, reviewer string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return core.ErrNotFound
	}
	if record.ReviewStatus != core.ReviewPending {
		return core.ErrAlreadyReviewed
	}
	record.ReviewStatus = status
	record.ReviewedBy = reviewer
	record.ReviewedAt = &at
	return nil
}
