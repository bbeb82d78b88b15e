package reputation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mikey/submission-guard/internal/core"
	"github.com/mikey/submission-guard/internal/iplist"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"
)

const stripeCount = 64

// Config holds the reputation policy
type Config struct {
	LookupTimeout  time.Duration
	TTL            time.Duration
	Penalty        float64
	BlacklistAfter int
	SweepInterval  time.Duration
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		LookupTimeout:  50 * time.Millisecond,
		TTL:            24 * time.Hour,
		Penalty:        0.25,
		BlacklistAfter: 5,
		SweepInterval:  10 * time.Minute,
	}
}

// Validate checks the reputation policy
func (c Config) Validate() error {
	if c.LookupTimeout <= 0 {
		return &core.ConfigError{Key: "reputation.lookup_timeout", Reason: "must be positive"}
	}
	if c.TTL <= 0 {
		return &core.ConfigError{Key: "reputation.ttl", Reason: "must be positive"}
	}
	if c.Penalty <= 0 || c.Penalty >= 1 {
		return &core.ConfigError{Key: "reputation.penalty", Reason: "must be in (0, 1)"}
	}
	if c.BlacklistAfter <= 0 {
		return &core.ConfigError{Key: "reputation.blacklist_after", Reason: "must be positive"}
	}
	return nil
}

// LookupResult is the outcome of a bounded reputation lookup
type LookupResult struct {
	Entry    *core.IPReputationEntry
	Found    bool
	Allowed  bool
	Denied   bool
	Degraded bool
	Reason   string
}

// Store tracks decaying trust per source address on top of a repository
type Store struct {
	repo    core.ReputationRepository
	lists   *iplist.Checker
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
	stripes [stripeCount]sync.Mutex

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewStore creates a new reputation store. lists may be nil.
func NewStore(repo core.ReputationRepository, lists *iplist.Checker, cfg Config, logger *zap.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		repo:   repo,
		lists:  lists,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}, nil
}

// SetClock replaces the wall clock
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Store) stripe(ip string) *sync.Mutex {
	return &s.stripes[xxh3.HashString(ip)%stripeCount]
}

type getOutcome struct {
	entry *core.IPReputationEntry
	err   error
}

// get reads an entry under the lookup timeout even when the repository ignores ctx
func (s *Store) get(ctx context.Context, ip string) (*core.IPReputationEntry, error) {
	lctx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()

	ch := make(chan getOutcome, 1)
	go func() {
		entry, err := s.repo.Get(lctx, ip)
		ch <- getOutcome{entry: entry, err: err}
	}()

	select {
	case out := <-ch:
		return out.entry, out.err
	case <-lctx.Done():
		return nil, fmt.Errorf("reputation lookup timed out after %s: %w", s.cfg.LookupTimeout, lctx.Err())
	}
}

// Lookup returns the reputation of ip. It never fails: a slow or broken repository
// yields a neutral result marked degraded.
func (s *Store) Lookup(ctx context.Context, ip string) LookupResult {
	if s.lists.IsDenied(ip) {
		return LookupResult{Denied: true, Reason: "address on deny list"}
	}
	if s.lists.IsAllowed(ip) {
		return LookupResult{Allowed: true, Reason: "address on allow list"}
	}

	entry, err := s.get(ctx, ip)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return LookupResult{Reason: "no reputation history"}
		}
		s.logger.Warn("Reputation lookup degraded", zap.String("ip", ip), zap.Error(err))
		return LookupResult{Degraded: true, Reason: err.Error()}
	}

	if entry.Expired(s.now()) {
		go s.evict(ip)
		return LookupResult{Reason: "reputation expired"}
	}

	return LookupResult{Entry: entry, Found: true, Reason: fmt.Sprintf("%d recorded violations", entry.ViolationCount)}
}

func (s *Store) evict(ip string) {
	mu := s.stripe(ip)
	mu.Lock()
	defer mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.LookupTimeout*4)
	defer cancel()

	// the entry may have been refreshed since the lookup
	entry, err := s.repo.Get(ctx, ip)
	if err != nil || !entry.Expired(s.now()) {
		return
	}
	if err := s.repo.Delete(ctx, ip); err != nil {
		s.logger.Debug("Failed to evict expired reputation entry", zap.String("ip", ip), zap.Error(err))
	}
}

// Get returns the stored entry for administration, core.ErrNotFound when absent or expired
func (s *Store) Get(ctx context.Context, ip string) (*core.IPReputationEntry, error) {
	entry, err := s.repo.Get(ctx, ip)
	if err != nil {
		return nil, err
	}
	if entry.Expired(s.now()) {
		return nil, core.ErrNotFound
	}
	return entry, nil
}

// modify performs a read-modify-write of one entry under its stripe lock
func (s *Store) modify(ctx context.Context, ip string, fn func(entry *core.IPReputationEntry, now time.Time)) (*core.IPReputationEntry, error) {
	mu := s.stripe(ip)
	mu.Lock()
	defer mu.Unlock()

	now := s.now()
	entry, err := s.repo.Get(ctx, ip)
	switch {
	case errors.Is(err, core.ErrNotFound):
		entry = &core.IPReputationEntry{IP: ip}
	case err != nil:
		return nil, fmt.Errorf("failed to read reputation entry: %w", err)
	case entry.Expired(now):
		entry = &core.IPReputationEntry{IP: ip}
	}

	fn(entry, now)
	entry.LastSeenAt = now

	if err := s.repo.Set(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to store reputation entry: %w", err)
	}
	return entry, nil
}

// RecordViolation counts one more violation for ip and lowers its score
func (s *Store) RecordViolation(ctx context.Context, ip string) (*core.IPReputationEntry, error) {
	if ip == "" {
		return nil, errors.New("ip is required")
	}
	entry, err := s.modify(ctx, ip, func(e *core.IPReputationEntry, now time.Time) {
		permanent := e.Blacklisted && e.ExpiresAt.IsZero()
		e.ViolationCount++
		e.Score -= s.cfg.Penalty * (1 + e.Score)
		if e.ViolationCount >= s.cfg.BlacklistAfter {
			e.Blacklisted = true
		}
		if !permanent {
			e.ExpiresAt = now.Add(s.cfg.TTL)
		}
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Recorded IP violation",
		zap.String("ip", ip),
		zap.Int("violation_count", entry.ViolationCount),
		zap.Float64("score", entry.Score),
		zap.Bool("blacklisted", entry.Blacklisted))
	return entry, nil
}

// SetBlacklisted sets or clears the blacklist flag. Manual blacklisting does not expire.
func (s *Store) SetBlacklisted(ctx context.Context, ip string, blacklisted bool) (*core.IPReputationEntry, error) {
	entry, err := s.modify(ctx, ip, func(e *core.IPReputationEntry, now time.Time) {
		e.Blacklisted = blacklisted
		if blacklisted {
			e.ExpiresAt = time.Time{}
			return
		}
		e.ExpiresAt = now.Add(s.cfg.TTL)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Updated IP blacklist flag", zap.String("ip", ip), zap.Bool("blacklisted", blacklisted))
	return entry, nil
}

// Reset forgets everything known about ip
func (s *Store) Reset(ctx context.Context, ip string) error {
	mu := s.stripe(ip)
	mu.Lock()
	defer mu.Unlock()

	if err := s.repo.Delete(ctx, ip); err != nil {
		return fmt.Errorf("failed to reset reputation: %w", err)
	}
	s.logger.Info("Reset IP reputation", zap.String("ip", ip))
	return nil
}

// Sweep removes expired entries from the repository
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	return s.repo.Cleanup(ctx, s.now())
}

// Start runs the periodic sweep until Stop is called
func (s *Store) Start() {
	if s.cfg.SweepInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := s.Sweep(context.Background()); err != nil {
					s.logger.Error("Failed to sweep reputation entries", zap.Error(err))
				}
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop stops the periodic sweep
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}
