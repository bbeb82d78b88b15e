package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// EngineConfig holds the combination policy of the decision engine
type EngineConfig struct {
	AcceptThreshold    float64
	RejectThreshold    float64
	BlacklistFloor     float64
	DetectorTimeout    time.Duration
	SideEffectTimeout  time.Duration
	Weights            map[string]float64
	UnavailableOutcome Outcome
	DisabledForms      []string
	NotifyOnReject     bool
	NotifyOnQuarantine bool
}

// DefaultEngineConfig returns the production defaults
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		AcceptThreshold:    0.6,
		RejectThreshold:    0.8,
		BlacklistFloor:     0.8,
		DetectorTimeout:    250 * time.Millisecond,
		SideEffectTimeout:  500 * time.Millisecond,
		UnavailableOutcome: OutcomeAccept,
		Weights: map[string]float64{
			DetectorContent:    1.0,
			DetectorBehavioral: 0.8,
			DetectorReputation: 0.6,
			DetectorML:         1.0,
			DetectorLLM:        0.8,
		},
		NotifyOnReject:     true,
		NotifyOnQuarantine: true,
	}
}

// Validate checks the configuration for errors that must stop startup
func (c EngineConfig) Validate() error {
	if c.AcceptThreshold <= 0 || c.AcceptThreshold > 1 {
		return &ConfigError{Key: "engine.accept_threshold", Reason: "must be in (0, 1]"}
	}
	if c.RejectThreshold <= 0 || c.RejectThreshold > 1 {
		return &ConfigError{Key: "engine.reject_threshold", Reason: "must be in (0, 1]"}
	}
	if c.AcceptThreshold > c.RejectThreshold {
		return &ConfigError{Key: "engine.accept_threshold", Reason: "must not exceed engine.reject_threshold"}
	}
	if c.BlacklistFloor < 0 || c.BlacklistFloor > 1 {
		return &ConfigError{Key: "engine.blacklist_floor", Reason: "must be in [0, 1]"}
	}
	if c.DetectorTimeout <= 0 {
		return &ConfigError{Key: "engine.detector_timeout", Reason: "must be positive"}
	}
	if _, ok := ParseOutcome(string(c.UnavailableOutcome)); !ok {
		return &ConfigError{Key: "engine.unavailable_outcome", Reason: fmt.Sprintf("unknown outcome %q", c.UnavailableOutcome)}
	}
	for name, w := range c.Weights {
		if w < 0 || math.IsNaN(w) {
			return &ConfigError{Key: "engine.weights." + name, Reason: "must be non-negative"}
		}
	}
	return nil
}

// EngineOption configures optional collaborators of the engine
type EngineOption func(*DecisionEngine)

// WithQuarantine persists non-accept outcomes to repo
func WithQuarantine(repo QuarantineRepository) EngineOption {
	return func(e *DecisionEngine) { e.quarantine = repo }
}

// WithViolationRecorder reports non-accept outcomes to the reputation store
func WithViolationRecorder(r ViolationRecorder) EngineOption {
	return func(e *DecisionEngine) { e.violations = r }
}

// WithFeedback sends honeypot-confirmed spam to the training queue
func WithFeedback(sink FeedbackSink) EngineOption {
	return func(e *DecisionEngine) { e.feedback = sink }
}

// WithNotifier sends decision events to an alerting collaborator
func WithNotifier(n Notifier) EngineOption {
	return func(e *DecisionEngine) { e.notifier = n }
}

// WithObserver installs an instrumentation observer
func WithObserver(o DecisionObserver) EngineOption {
	return func(e *DecisionEngine) { e.observer = o }
}

// WithClock replaces the wall clock
func WithClock(now func() time.Time) EngineOption {
	return func(e *DecisionEngine) { e.now = now }
}

// WithIDGenerator replaces the decision ID generator
func WithIDGenerator(gen func() string) EngineOption {
	return func(e *DecisionEngine) { e.newID = gen }
}

// DecisionEngine orchestrates hard gates and scorers into a RiskDecision
type DecisionEngine struct {
	cfg      EngineConfig
	gates    []Detector
	scorers  []Detector
	logger   *zap.Logger
	disabled map[string]struct{}

	quarantine QuarantineRepository
	violations ViolationRecorder
	feedback   FeedbackSink
	notifier   Notifier
	observer   DecisionObserver
	now        func() time.Time
	newID      func() string

	total       atomic.Int64
	accepted    atomic.Int64
	quarantined atomic.Int64
	rejected    atomic.Int64
	degraded    atomic.Int64

	countersMu  sync.Mutex
	gateTrips   map[string]int64
	unavailable map[string]int64
}

// NewDecisionEngine creates a decision engine. Gates run sequentially and may
// short-circuit; scorers run concurrently.
func NewDecisionEngine(
	cfg EngineConfig,
	gates []Detector,
	scorers []Detector,
	logger *zap.Logger,
	opts ...EngineOption,
) (*DecisionEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	disabled := make(map[string]struct{}, len(cfg.DisabledForms))
	for _, f := range cfg.DisabledForms {
		disabled[f] = struct{}{}
	}

	e := &DecisionEngine{
		cfg:         cfg,
		gates:       gates,
		scorers:     scorers,
		logger:      logger,
		disabled:    disabled,
		now:         time.Now,
		newID:       uuid.NewString,
		gateTrips:   make(map[string]int64),
		unavailable: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the active engine configuration
func (e *DecisionEngine) Config() EngineConfig {
	return e.cfg
}

// Evaluate runs the submission through the detector pipeline and returns the decision.
// Once the hard gates have passed the evaluation no longer observes caller cancellation.
func (e *DecisionEngine) Evaluate(ctx context.Context, sub *Submission) (*RiskDecision, error) {
	if sub == nil {
		return nil, errors.New("submission is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := e.now()
	decision := &RiskDecision{
		ID:           e.newID(),
		SubmissionID: sub.ID,
		FormKey:      sub.FormKey,
		Signals:      make([]SignalResult, 0, len(e.gates)+len(e.scorers)),
	}

	if _, off := e.disabled[sub.FormKey]; off {
		decision.Outcome = OutcomeAccept
		e.finish(ctx, sub, decision, start)
		return decision, nil
	}

	for _, gate := range e.gates {
		res := e.run(ctx, gate, sub)
		decision.Signals = append(decision.Signals, res)
		if !res.Available {
			decision.Degraded = true
		}
		if res.HardRule {
			decision.Outcome = OutcomeReject
			decision.CombinedScore = 1.0
			e.countGateTrip(res.Detector)
			e.finish(ctx, sub, decision, start)
			return decision, nil
		}
	}

	results := e.score(context.WithoutCancel(ctx), sub)
	decision.Signals = append(decision.Signals, results...)

	combined, available, blacklisted := e.combine(results)
	if !available {
		decision.Degraded = true
		decision.Outcome = e.cfg.UnavailableOutcome
		e.logger.Warn("All scoring detectors unavailable, applying default outcome",
			zap.String("submission_id", sub.ID),
			zap.String("outcome", string(decision.Outcome)))
	} else {
		if blacklisted && combined < e.cfg.BlacklistFloor {
			combined = e.cfg.BlacklistFloor
		}
		decision.CombinedScore = combined
		decision.Outcome = e.classify(combined)
		if floor := outcomeFloor(results); floor.Severity() > decision.Outcome.Severity() {
			decision.Outcome = floor
			decision.CombinedScore = math.Max(combined, e.threshold(floor))
		}
	}

	e.finish(ctx, sub, decision, start)
	return decision, nil
}

type detectorOutcome struct {
	result SignalResult
	err    error
}

// run evaluates one detector under the per-detector timeout
func (e *DecisionEngine) run(ctx context.Context, d Detector, sub *Submission) SignalResult {
	name := d.Name()
	dctx, cancel := context.WithTimeout(ctx, e.cfg.DetectorTimeout)
	defer cancel()

	ch := make(chan detectorOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- detectorOutcome{err: fmt.Errorf("detector panicked: %v", r)}
			}
		}()
		res, err := d.Evaluate(dctx, sub)
		ch <- detectorOutcome{result: res, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			e.logger.Warn("Detector unavailable",
				zap.String("detector", name),
				zap.String("submission_id", sub.ID),
				zap.Error(out.err))
			e.countUnavailable(name)
			return e.unavailableResult(d, "unavailable: "+out.err.Error())
		}
		res := out.result
		res.Detector = name
		res.Score = clamp01(res.Score)
		if res.EvaluatedAt.IsZero() {
			res.EvaluatedAt = e.now()
		}
		return res
	case <-dctx.Done():
		e.logger.Warn("Detector timed out",
			zap.String("detector", name),
			zap.String("submission_id", sub.ID),
			zap.Duration("timeout", e.cfg.DetectorTimeout))
		e.countUnavailable(name)
		return e.unavailableResult(d, fmt.Sprintf("unavailable: timed out after %s", e.cfg.DetectorTimeout))
	}
}

// unavailableResult is the result recorded for a detector that did not complete
func (e *DecisionEngine) unavailableResult(d Detector, reason string) SignalResult {
	h, ok := d.(FailureHandler)
	if !ok {
		return NeutralSignal(d.Name(), reason, e.now())
	}
	res := h.Unavailable(reason)
	res.Detector = d.Name()
	res.Score = clamp01(res.Score)
	res.EvaluatedAt = e.now()
	return res
}

// score runs every scorer concurrently and keeps pipeline order in the result
func (e *DecisionEngine) score(ctx context.Context, sub *Submission) []SignalResult {
	results := make([]SignalResult, len(e.scorers))
	var g errgroup.Group
	for i, d := range e.scorers {
		g.Go(func() error {
			results[i] = e.run(ctx, d, sub)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// combine computes the weighted average of available signals
func (e *DecisionEngine) combine(results []SignalResult) (score float64, available bool, blacklisted bool) {
	var sum, weights float64
	for _, r := range results {
		if r.Blacklisted {
			blacklisted = true
		}
		if !r.Available {
			continue
		}
		w := e.weight(r.Detector)
		if w <= 0 {
			continue
		}
		sum += w * r.Score
		weights += w
	}
	if weights == 0 {
		return 0, false, blacklisted
	}
	return clamp01(sum / weights), true, blacklisted
}

func (e *DecisionEngine) weight(detector string) float64 {
	if w, ok := e.cfg.Weights[detector]; ok {
		return w
	}
	return 1.0
}

// outcomeFloor returns the most severe minimum outcome demanded by an available signal
func outcomeFloor(results []SignalResult) Outcome {
	floor := OutcomeAccept
	for _, r := range results {
		if r.Available && r.MinOutcome.Severity() > floor.Severity() {
			floor = r.MinOutcome
		}
	}
	return floor
}

// threshold returns the lowest combined score classified as o
func (e *DecisionEngine) threshold(o Outcome) float64 {
	switch o {
	case OutcomeReject:
		return e.cfg.RejectThreshold
	case OutcomeQuarantine:
		return e.cfg.AcceptThreshold
	}
	return 0
}

func (e *DecisionEngine) classify(score float64) Outcome {
	switch {
	case score < e.cfg.AcceptThreshold:
		return OutcomeAccept
	case score < e.cfg.RejectThreshold:
		return OutcomeQuarantine
	default:
		return OutcomeReject
	}
}

// finish stamps the decision, updates counters and performs the outbound side effects
func (e *DecisionEngine) finish(ctx context.Context, sub *Submission, decision *RiskDecision, start time.Time) {
	decision.DecidedAt = e.now()
	decision.Latency = decision.DecidedAt.Sub(start)
	if ml, ok := decision.Signal(DetectorML); ok && ml.Available {
		decision.ModelVersion = ml.Version
	}

	e.countOutcome(decision)
	if e.observer != nil {
		e.observer.ObserveDecision(decision)
	}

	fields := []zap.Field{
		zap.String("decision_id", decision.ID),
		zap.String("submission_id", sub.ID),
		zap.String("form_key", sub.FormKey),
		zap.String("outcome", string(decision.Outcome)),
		zap.Float64("combined_score", decision.CombinedScore),
		zap.Bool("degraded", decision.Degraded),
		zap.Duration("latency", decision.Latency),
	}
	if decision.Outcome == OutcomeAccept {
		e.logger.Debug("Submission accepted", fields...)
		return
	}
	e.logger.Info("Submission flagged", fields...)

	sideCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.sideEffectTimeout())
	defer cancel()

	if e.violations != nil && sub.SourceIP != "" {
		if _, err := e.violations.RecordViolation(sideCtx, sub.SourceIP); err != nil {
			e.logger.Error("Failed to record IP violation", zap.String("ip", sub.SourceIP), zap.Error(err))
		}
	}

	if e.quarantine != nil {
		record := &QuarantineRecord{
			ID:           e.newID(),
			Submission:   *sub,
			Decision:     *decision,
			ReviewStatus: ReviewPending,
			CreatedAt:    decision.DecidedAt,
		}
		if err := e.quarantine.Save(sideCtx, record); err != nil {
			e.logger.Error("Failed to save quarantine record", zap.String("decision_id", decision.ID), zap.Error(err))
		}
	}

	if e.feedback != nil {
		if hp, ok := decision.Signal(DetectorHoneypot); ok && hp.HardRule {
			if text := sub.Text(); text != "" {
				e.feedback.Enqueue(TrainingSample{Text: text, Spam: true, Source: SampleSourceHoneypot})
			}
		}
	}

	if e.notifier != nil && e.shouldNotify(decision.Outcome) {
		event := DecisionEvent{
			DecisionID:    decision.ID,
			FormKey:       decision.FormKey,
			Outcome:       decision.Outcome,
			CombinedScore: decision.CombinedScore,
			SourceIP:      sub.SourceIP,
			Signals:       append([]SignalResult(nil), decision.Signals...),
			DecidedAt:     decision.DecidedAt,
		}
		go func() {
			nctx, ncancel := context.WithTimeout(context.Background(), e.sideEffectTimeout()*4)
			defer ncancel()
			if err := e.notifier.Notify(nctx, event); err != nil {
				e.logger.Warn("Failed to send decision notification", zap.String("decision_id", event.DecisionID), zap.Error(err))
			}
		}()
	}
}

func (e *DecisionEngine) shouldNotify(o Outcome) bool {
	switch o {
	case OutcomeReject:
		return e.cfg.NotifyOnReject
	case OutcomeQuarantine:
		return e.cfg.NotifyOnQuarantine
	}
	return false
}

func (e *DecisionEngine) sideEffectTimeout() time.Duration {
	if e.cfg.SideEffectTimeout > 0 {
		return e.cfg.SideEffectTimeout
	}
	return 500 * time.Millisecond
}

func (e *DecisionEngine) countOutcome(d *RiskDecision) {
	e.total.Add(1)
	switch d.Outcome {
	case OutcomeAccept:
		e.accepted.Add(1)
	case OutcomeQuarantine:
		e.quarantined.Add(1)
	case OutcomeReject:
		e.rejected.Add(1)
	}
	if d.Degraded {
		e.degraded.Add(1)
	}
}

func (e *DecisionEngine) countGateTrip(detector string) {
	e.countersMu.Lock()
	e.gateTrips[detector]++
	e.countersMu.Unlock()
}

func (e *DecisionEngine) countUnavailable(detector string) {
	e.countersMu.Lock()
	e.unavailable[detector]++
	e.countersMu.Unlock()
	if e.observer != nil {
		e.observer.ObserveUnavailable(detector)
	}
}

// Stats returns a snapshot of the aggregate counters
func (e *DecisionEngine) Stats() Stats {
	s := Stats{
		Total:               e.total.Load(),
		Accepted:            e.accepted.Load(),
		Quarantined:         e.quarantined.Load(),
		Rejected:            e.rejected.Load(),
		Degraded:            e.degraded.Load(),
		HardGateTrips:       make(map[string]int64),
		DetectorUnavailable: make(map[string]int64),
	}
	e.countersMu.Lock()
	defer e.countersMu.Unlock()
	for k, v := range e.gateTrips {
		s.HardGateTrips[k] = v
	}
	for k, v := range e.unavailable {
		s.DetectorUnavailable[k] = v
	}
	return s
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
