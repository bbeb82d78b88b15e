package detector

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikey/submission-guard/internal/core"
	"github.com/mikey/submission-guard/internal/reputation"
)

// ReputationLookup is the read side of the reputation store
type ReputationLookup interface {
	Lookup(ctx context.Context, ip string) reputation.LookupResult
}

// ReputationDetector turns the stored trust of the source address into a signal
type ReputationDetector struct {
	store ReputationLookup
}

// NewReputationDetector creates a new reputation detector
func NewReputationDetector(store ReputationLookup) *ReputationDetector {
	return &ReputationDetector{store: store}
}

// Name returns the detector name
func (d *ReputationDetector) Name() string { return core.DetectorReputation }

// Evaluate looks up the source address. Unknown addresses are neutral and a
// degraded lookup reports the detector unavailable.
func (d *ReputationDetector) Evaluate(ctx context.Context, sub *core.Submission) (core.SignalResult, error) {
	if sub.SourceIP == "" {
		return core.NeutralSignal(core.DetectorReputation, "no source address", sub.ReceivedAt), nil
	}

	res := d.store.Lookup(ctx, sub.SourceIP)
	switch {
	case res.Degraded:
		return core.SignalResult{}, errors.New(res.Reason)
	case res.Denied:
		return core.SignalResult{
			Score:       1.0,
			Available:   true,
			Blacklisted: true,
			Reason:      res.Reason,
			Triggers:    []string{"deny_list"},
		}, nil
	case res.Allowed:
		return core.SignalResult{Score: 0, Available: true, Reason: res.Reason}, nil
	case !res.Found:
		return core.NeutralSignal(core.DetectorReputation, res.Reason, sub.ReceivedAt), nil
	}

	entry := res.Entry
	result := core.SignalResult{
		Score:       -entry.Score,
		Available:   true,
		Blacklisted: entry.Blacklisted,
		Reason:      fmt.Sprintf("%d prior violations, reputation %.2f", entry.ViolationCount, entry.Score),
	}
	if entry.Blacklisted {
		result.Triggers = []string{"blacklisted"}
	}
	return result, nil
}
