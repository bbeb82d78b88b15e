package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryStore is an in-process window store
type MemoryStore struct {
	mu          sync.Mutex
	windows     map[string]*window
	logger      *zap.Logger
	cleanupFreq time.Duration
	now         func() time.Time
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewMemoryStore creates a new in-memory window store. A positive cleanupFreq
// starts a background eviction task.
func NewMemoryStore(logger *zap.Logger, cleanupFreq time.Duration) *MemoryStore {
	s := &MemoryStore{
		windows:     make(map[string]*window),
		logger:      logger,
		cleanupFreq: cleanupFreq,
		now:         time.Now,
		stopCh:      make(chan struct{}),
	}
	if cleanupFreq > 0 {
		go s.startCleanupTask()
	}
	return s
}

func windowKey(key string, start time.Time) string {
	return key + "@" + strconv.FormatInt(start.UnixNano(), 10)
}

// Increment adds one request to the window
func (s *MemoryStore) Increment(_ context.Context, key string, windowStart time.Time, d time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wk := windowKey(key, windowStart)
	w, ok := s.windows[wk]
	if !ok {
		w = &window{key: key, start: windowStart, duration: d}
		s.windows[wk] = w
	}
	w.count++
	return w.count, nil
}

// Count returns the current count of a window
func (s *MemoryStore) Count(_ context.Context, key string, windowStart time.Time, _ time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.windows[windowKey(key, windowStart)]; ok {
		return w.count, nil
	}
	return 0, nil
}

// Evict removes windows that can no longer influence a decision
func (s *MemoryStore) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for k, w := range s.windows {
		if w.expired(now) {
			delete(s.windows, k)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of live windows
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

func (s *MemoryStore) startCleanupTask() {
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n := s.Evict(s.now())
			if s.logger != nil {
				s.logger.Debug("Evicted expired rate limit windows", zap.Int("evicted_count", n))
			}
		case <-s.stopCh:
			return
		}
	}
}

// Stop stops the background eviction task
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}
