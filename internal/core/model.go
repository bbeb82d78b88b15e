package core

import (
	"sort"
	"strings"
	"time"
)

// Outcome is the terminal result of evaluating a submission
type Outcome string

const (
	OutcomeAccept     Outcome = "accept"
	OutcomeQuarantine Outcome = "quarantine"
	OutcomeReject     Outcome = "reject"
)

// ParseOutcome converts a configuration string into an Outcome
func ParseOutcome(s string) (Outcome, bool) {
	switch Outcome(strings.ToLower(strings.TrimSpace(s))) {
	case OutcomeAccept:
		return OutcomeAccept, true
	case OutcomeQuarantine:
		return OutcomeQuarantine, true
	case OutcomeReject:
		return OutcomeReject, true
	}
	return "", false
}

// Severity orders outcomes from accept to reject
func (o Outcome) Severity() int {
	switch o {
	case OutcomeQuarantine:
		return 1
	case OutcomeReject:
		return 2
	}
	return 0
}

// ReviewStatus is the human review state of a quarantine record
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewDenied   ReviewStatus = "denied"
)

// Detector names used in the evidence trail
const (
	DetectorHoneypot   = "honeypot"
	DetectorRateLimit  = "rate_limit"
	DetectorContent    = "content"
	DetectorBehavioral = "behavioral"
	DetectorReputation = "reputation"
	DetectorML         = "ml"
	DetectorLLM        = "llm"
)

// BehavioralTelemetry is the client-reported interaction sample
type BehavioralTelemetry struct {
	InteractionDelay float64   `json:"interaction_delay"` // seconds before first interaction
	MouseMovements   int       `json:"mouse_movements"`
	MouseDistance    float64   `json:"mouse_distance"` // pixels
	Keystrokes       int       `json:"keystrokes"`
	TypingSpeed      float64   `json:"typing_speed"`  // words per minute
	TypingRhythm     []float64 `json:"typing_rhythm"` // keystroke intervals in milliseconds
	CopyPastes       int       `json:"copy_pastes"`
	TimeOnPage       float64   `json:"time_on_page"` // seconds
}

// Submission is a single inbound form submission. It is never mutated after construction.
type Submission struct {
	ID             string               `json:"id"`
	FormKey        string               `json:"form_key"`
	SourceIP       string               `json:"source_ip"`
	AccessKey      string               `json:"access_key,omitempty"`
	Fields         map[string]string    `json:"fields"`
	HoneypotValues map[string]string    `json:"honeypot_values,omitempty"`
	Telemetry      *BehavioralTelemetry `json:"telemetry,omitempty"`
	UserAgent      string               `json:"user_agent,omitempty"`
	ReceivedAt     time.Time            `json:"received_at"`
}

// Field returns a free-text field value or an empty string
func (s *Submission) Field(name string) string {
	if s.Fields == nil {
		return ""
	}
	return s.Fields[name]
}

// Text joins all free-text fields in key order so that analysis is deterministic
func (s *Submission) Text() string {
	keys := make([]string, 0, len(s.Fields))
	for k := range s.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		if s.Fields[k] == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(s.Fields[k])
	}
	return b.String()
}

// SignalResult is the output of a single detector for a single submission
type SignalResult struct {
	Detector    string        `json:"detector"`
	Score       float64       `json:"score"`
	HardRule    bool          `json:"hard_rule"`
	Available   bool          `json:"available"`
	Blacklisted bool          `json:"blacklisted,omitempty"`
	Reason      string        `json:"reason"`
	Triggers    []string      `json:"triggers,omitempty"`
	Version     string        `json:"version,omitempty"`
	RetryAfter  time.Duration `json:"retry_after,omitempty"`
	MinOutcome  Outcome       `json:"min_outcome,omitempty"`
	EvaluatedAt time.Time     `json:"evaluated_at"`
}

// NeutralSignal builds a result that is excluded from score combination
func NeutralSignal(detector, reason string, at time.Time) SignalResult {
	return SignalResult{
		Detector:    detector,
		Score:       0,
		Available:   false,
		Reason:      reason,
		EvaluatedAt: at,
	}
}

// RiskDecision is the aggregate verdict for a submission
type RiskDecision struct {
	ID            string         `json:"id"`
	SubmissionID  string         `json:"submission_id"`
	FormKey       string         `json:"form_key"`
	Outcome       Outcome        `json:"outcome"`
	CombinedScore float64        `json:"combined_score"`
	Signals       []SignalResult `json:"signals"`
	Degraded      bool           `json:"degraded"`
	ModelVersion  string         `json:"model_version,omitempty"`
	DecidedAt     time.Time      `json:"decided_at"`
	Latency       time.Duration  `json:"latency"`
}

// Signal returns the result produced by the named detector
func (d *RiskDecision) Signal(detector string) (SignalResult, bool) {
	for _, s := range d.Signals {
		if s.Detector == detector {
			return s, true
		}
	}
	return SignalResult{}, false
}

// HardGateTripped reports whether a hard gate short-circuited the decision
func (d *RiskDecision) HardGateTripped() bool {
	for _, s := range d.Signals {
		if s.HardRule {
			return true
		}
	}
	return false
}

// IPReputationEntry holds the decaying trust state of a source address.
// Score is 0 for a neutral address and approaches -1 as violations accumulate.
type IPReputationEntry struct {
	IP             string    `json:"ip"`
	Score          float64   `json:"score"`
	ViolationCount int       `json:"violation_count"`
	Blacklisted    bool      `json:"blacklisted"`
	LastSeenAt     time.Time `json:"last_seen_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Expired reports whether the entry should be treated as absent
func (e *IPReputationEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// QuarantineRecord is persisted for every non-accept outcome
type QuarantineRecord struct {
	ID           string       `json:"id"`
	Submission   Submission   `json:"submission"`
	Decision     RiskDecision `json:"decision"`
	ReviewStatus ReviewStatus `json:"review_status"`
	ReviewedBy   string       `json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time   `json:"reviewed_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// QuarantineFilter narrows a quarantine listing
type QuarantineFilter struct {
	Status  ReviewStatus
	FormKey string
	Outcome Outcome
	Limit   int
	Offset  int
}

// Training sample sources
const (
	SampleSourceHoneypot = "honeypot"
	SampleSourceReview   = "review"
	SampleSourceSeed     = "seed"
)

// TrainingSample is a labelled example for the classifier
type TrainingSample struct {
	Text   string `json:"text"`
	Spam   bool   `json:"spam"`
	Source string `json:"source,omitempty"`
}

// LLMVerdict is the structured response of a language model scorer
type LLMVerdict struct {
	Score       float64
	Confidence  float64
	Explanation string
	Model       string
}

// DecisionEvent is the anonymised payload sent to alerting collaborators
type DecisionEvent struct {
	DecisionID    string         `json:"decision_id"`
	FormKey       string         `json:"form_key"`
	Outcome       Outcome        `json:"outcome"`
	CombinedScore float64        `json:"combined_score"`
	SourceIP      string         `json:"-"`
	Signals       []SignalResult `json:"signals"`
	DecidedAt     time.Time      `json:"decided_at"`
}

// Stats are aggregate counters exposed to the admin surface
type Stats struct {
	Total               int64            `json:"total"`
	Accepted            int64            `json:"accepted"`
	Quarantined         int64            `json:"quarantined"`
	Rejected            int64            `json:"rejected"`
	Degraded            int64            `json:"degraded"`
	HardGateTrips       map[string]int64 `json:"hard_gate_trips"`
	DetectorUnavailable map[string]int64 `json:"detector_unavailable"`
}
