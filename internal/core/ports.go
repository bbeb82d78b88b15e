package core

import (
	"context"
	"time"
)

// Detector evaluates a submission and produces one signal in the evidence trail
type Detector interface {
	// Name returns the detector name recorded in the evidence trail
	Name() string

	// Evaluate scores the submission. An error marks the detector unavailable.
	Evaluate(ctx context.Context, sub *Submission) (SignalResult, error)
}

// FailureHandler is implemented by detectors that decide their own result when
// they error, panic or time out. Other detectors become neutral.
type FailureHandler interface {
	Unavailable(reason string) SignalResult
}

// ReputationRepository persists IP reputation entries
type ReputationRepository interface {
	// Get retrieves the entry for an address, ErrNotFound when absent
	Get(ctx context.Context, ip string) (*IPReputationEntry, error)

	// Set stores an entry
	Set(ctx context.Context, entry *IPReputationEntry) error

	// Delete removes an entry
	Delete(ctx context.Context, ip string) error

	// Cleanup removes entries that expired before now
	Cleanup(ctx context.Context, now time.Time) (int64, error)
}

// QuarantineRepository persists quarantine records for human review
type QuarantineRepository interface {
	Save(ctx context.Context, record *QuarantineRecord) error
	Get(ctx context.Context, id string) (*QuarantineRecord, error)
	List(ctx context.Context, filter QuarantineFilter) ([]*QuarantineRecord, error)
	// UpdateStatus moves a pending record to status. It returns ErrAlreadyReviewed
	// when the record has left the pending state and ErrNotFound when it does not exist.
	UpdateStatus(ctx context.Context, id string, status ReviewStatus, reviewer string, at time.Time) error
}

// ViolationRecorder receives every non-accept outcome
type ViolationRecorder interface {
	RecordViolation(ctx context.Context, ip string) (*IPReputationEntry, error)
}

// FeedbackSink accepts labelled samples for later retraining
type FeedbackSink interface {
	Enqueue(sample TrainingSample) bool
}

// LLMClient defines the interface for interacting with LLM services
type LLMClient interface {
	// ScoreSubmission asks the model how likely the submission is spam
	ScoreSubmission(ctx context.Context, sub *Submission) (*LLMVerdict, error)
}

// VerdictCache remembers model verdicts for repeated submission text
type VerdictCache interface {
	// Get returns a live verdict for key
	Get(ctx context.Context, key string) (*LLMVerdict, bool)

	// Set stores a verdict for ttl
	Set(ctx context.Context, key string, verdict *LLMVerdict, ttl time.Duration)

	// Cleanup removes expired verdicts
	Cleanup(ctx context.Context) error
}

// Notifier delivers decision events to an alerting collaborator
type Notifier interface {
	Notify(ctx context.Context, event DecisionEvent) error
}

// DecisionObserver receives instrumentation callbacks from the engine
type DecisionObserver interface {
	ObserveDecision(decision *RiskDecision)
	ObserveUnavailable(detector string)
}
