package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Scope selects which submission attributes form the limit key
type Scope string

const (
	ScopeIP        Scope = "ip"
	ScopeForm      Scope = "form"
	ScopeIPForm    Scope = "ip_form"
	ScopeAccessKey Scope = "access_key"
)

// Strategy selects the counting algorithm
type Strategy string

const (
	StrategyFixed   Strategy = "fixed"
	StrategySliding Strategy = "sliding"
)

// Rule is a limit applied to one scope
type Rule struct {
	Scope  Scope
	Limit  int64
	Window time.Duration
}

// Key builds the limit key for the rule from the submission attributes.
// An empty key means the rule does not apply.
func (r Rule) Key(ip, formKey, accessKey string) string {
	switch r.Scope {
	case ScopeIP:
		if ip == "" {
			return ""
		}
		return "ip:" + ip
	case ScopeForm:
		if formKey == "" {
			return ""
		}
		return "form:" + formKey
	case ScopeIPForm:
		if ip == "" {
			return ""
		}
		return "ip_form:" + ip + "|" + formKey
	case ScopeAccessKey:
		if accessKey == "" {
			return ""
		}
		return "access_key:" + accessKey
	}
	return ""
}

// Config holds the limiter settings
type Config struct {
	Strategy Strategy
	FailOpen bool
	Rules    []Rule
}

// DefaultConfig allows 10 submissions per IP and form every 15 minutes
func DefaultConfig() Config {
	return Config{
		Strategy: StrategyFixed,
		FailOpen: true,
		Rules: []Rule{
			{Scope: ScopeIPForm, Limit: 10, Window: 15 * time.Minute},
		},
	}
}

// ParseScope converts a configuration string into a Scope
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeIP:
		return ScopeIP, nil
	case ScopeForm:
		return ScopeForm, nil
	case ScopeIPForm:
		return ScopeIPForm, nil
	case ScopeAccessKey:
		return ScopeAccessKey, nil
	}
	return "", fmt.Errorf("unknown rate limit scope: %s", s)
}

// Validate checks the limiter settings
func (c Config) Validate() error {
	switch c.Strategy {
	case StrategyFixed, StrategySliding, "":
	default:
		return fmt.Errorf("unknown rate limit strategy: %s", c.Strategy)
	}
	for _, r := range c.Rules {
		if r.Limit <= 0 {
			return fmt.Errorf("rate limit for scope %s must be positive", r.Scope)
		}
		if r.Window <= 0 {
			return fmt.Errorf("rate limit window for scope %s must be positive", r.Scope)
		}
	}
	return nil
}

// Result is the outcome of a single Check
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
	Count      int64
	Limit      int64
	Key        string
	Degraded   bool
}

// Limiter counts requests per key and denies those above the configured limit
type Limiter struct {
	store  Store
	cfg    Config
	logger *zap.Logger
}

// NewLimiter creates a new limiter over store
func NewLimiter(store Store, cfg Config, logger *zap.Logger) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyFixed
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{store: store, cfg: cfg, logger: logger}, nil
}

// Rules returns the configured rules
func (l *Limiter) Rules() []Rule {
	return l.cfg.Rules
}

// FailOpen reports whether requests are allowed while the store is unavailable
func (l *Limiter) FailOpen() bool {
	return l.cfg.FailOpen
}

// RetryAfter returns the longest wait until every rule's current window ends
func (l *Limiter) RetryAfter(now time.Time) time.Duration {
	var longest time.Duration
	for _, r := range l.cfg.Rules {
		if wait := now.Truncate(r.Window).Add(r.Window).Sub(now); wait > longest {
			longest = wait
		}
	}
	return longest
}

// Allow applies every rule to the submission attributes and returns the first denial,
// or the result of the last applicable rule when all allow
func (l *Limiter) Allow(ctx context.Context, ip, formKey, accessKey string, now time.Time) Result {
	res := Result{Allowed: true}
	for _, rule := range l.cfg.Rules {
		key := rule.Key(ip, formKey, accessKey)
		if key == "" {
			continue
		}
		r := l.Check(ctx, key, rule, now)
		if !r.Allowed {
			return r
		}
		degraded := res.Degraded || r.Degraded
		res = r
		res.Degraded = degraded
	}
	return res
}

// Check counts one request against key under rule at time now
func (l *Limiter) Check(ctx context.Context, key string, rule Rule, now time.Time) Result {
	windowStart := now.Truncate(rule.Window)
	res := Result{Key: key, Limit: rule.Limit}

	count, err := l.store.Increment(ctx, key, windowStart, rule.Window)
	if err != nil {
		return l.storeFailure(key, rule, err)
	}

	effective := float64(count)
	if l.cfg.Strategy == StrategySliding {
		prev, err := l.store.Count(ctx, key, windowStart.Add(-rule.Window), rule.Window)
		if err != nil {
			return l.storeFailure(key, rule, err)
		}
		elapsed := now.Sub(windowStart)
		weight := 1 - float64(elapsed)/float64(rule.Window)
		effective += float64(prev) * weight
	}

	res.Count = count
	if effective > float64(rule.Limit) {
		res.Allowed = false
		res.RetryAfter = windowStart.Add(rule.Window).Sub(now)
		return res
	}
	res.Allowed = true
	return res
}

func (l *Limiter) storeFailure(key string, rule Rule, err error) Result {
	l.logger.Warn("Rate limit store unavailable",
		zap.String("key", key),
		zap.Bool("fail_open", l.cfg.FailOpen),
		zap.Error(err))
	if l.cfg.FailOpen {
		return Result{Allowed: true, Key: key, Limit: rule.Limit, Degraded: true}
	}
	return Result{Allowed: false, Key: key, Limit: rule.Limit, Degraded: true, RetryAfter: rule.Window}
}
