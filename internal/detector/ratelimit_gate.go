package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/mikey/submission-guard/internal/core"
	"github.com/mikey/submission-guard/internal/ratelimit"
)

// RateLimitGate rejects submissions above the configured request rate
type RateLimitGate struct {
	limiter *ratelimit.Limiter
}

// NewRateLimitGate creates a new rate limit gate
func NewRateLimitGate(limiter *ratelimit.Limiter) *RateLimitGate {
	return &RateLimitGate{limiter: limiter}
}

// Name returns the detector name
func (g *RateLimitGate) Name() string { return core.DetectorRateLimit }

// Evaluate counts the submission. The window is chosen by the submission's receive time.
func (g *RateLimitGate) Evaluate(ctx context.Context, sub *core.Submission) (core.SignalResult, error) {
	at := sub.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}
	res := g.limiter.Allow(ctx, sub.SourceIP, sub.FormKey, sub.AccessKey, at)

	switch {
	case !res.Allowed && res.Degraded:
		return core.SignalResult{
			Score:      1.0,
			HardRule:   true,
			Available:  true,
			Reason:     "rate limit store unavailable, failing closed",
			Triggers:   []string{res.Key},
			RetryAfter: res.RetryAfter,
		}, nil
	case !res.Allowed:
		return core.SignalResult{
			Score:      1.0,
			HardRule:   true,
			Available:  true,
			Reason:     fmt.Sprintf("rate limit exceeded: %d of %d, retry after %s", res.Count, res.Limit, res.RetryAfter.Round(time.Second)),
			Triggers:   []string{res.Key},
			RetryAfter: res.RetryAfter,
		}, nil
	case res.Degraded:
		return core.NeutralSignal(core.DetectorRateLimit, "unavailable: rate limit store unreachable, failing open", at), nil
	}

	return core.SignalResult{
		Score:     0,
		Available: true,
		Reason:    fmt.Sprintf("within rate limit: %d of %d", res.Count, res.Limit),
	}, nil
}

// Unavailable applies the limiter's store failure policy when the gate could not
// finish, for example because the store hung past the detector timeout
func (g *RateLimitGate) Unavailable(reason string) core.SignalResult {
	if g.limiter.FailOpen() {
		return core.NeutralSignal(core.DetectorRateLimit, reason+", failing open", time.Time{})
	}
	return core.SignalResult{
		Score:      1.0,
		HardRule:   true,
		Available:  true,
		Reason:     "rate limit store unavailable, failing closed: " + reason,
		RetryAfter: g.limiter.RetryAfter(time.Now()),
	}
}
