package factory

import (
	"github.com/mikey/submission-guard/internal/config"
	"github.com/mikey/submission-guard/internal/core"
	"github.com/mikey/submission-guard/internal/detector"
	"github.com/mikey/submission-guard/internal/ml"
	"github.com/mikey/submission-guard/internal/ratelimit"
	"github.com/mikey/submission-guard/internal/reputation"
	"github.com/mikey/submission-guard/internal/utils"
	"go.uber.org/zap"
)

// DetectorFactory assembles the detector pipeline and the decision engine
type DetectorFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewDetectorFactory creates a new detector factory
func NewDetectorFactory(cfg *config.Config, logger *zap.Logger) *DetectorFactory {
	return &DetectorFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateGates returns the hard gates in evaluation order: honeypot, then rate limit
func (f *DetectorFactory) CreateGates(limiter *ratelimit.Limiter) []core.Detector {
	return []core.Detector{
		detector.NewHoneypot(f.cfg.GetHoneypotFields()),
		detector.NewRateLimitGate(limiter),
	}
}

// CreateScorers returns the concurrent scorers. classifier and llm may be nil,
// in which case their detectors are left out of the pipeline.
func (f *DetectorFactory) CreateScorers(
	lex *detector.Lexicon,
	textProcessor *utils.TextProcessor,
	store *reputation.Store,
	classifier *ml.Classifier,
	llm core.LLMClient,
) ([]core.Detector, error) {
	contentCfg := f.cfg.GetContent()
	rules, err := f.cfg.GetCustomRules()
	if err != nil {
		return nil, err
	}
	contentCfg.CustomRules = rules
	content, err := detector.NewContentAnalyzer(lex, contentCfg, textProcessor)
	if err != nil {
		return nil, err
	}
	if len(rules) > 0 {
		f.logger.Info("Compiled custom content rules", zap.Int("rules", len(rules)))
	}

	scorers := []core.Detector{
		content,
		detector.NewBehavioralAnalyzer(f.cfg.GetBehavioral()),
		detector.NewReputationDetector(store),
	}
	if classifier != nil && f.cfg.GetML().Enabled {
		scorers = append(scorers, detector.NewClassifierDetector(classifier))
	}
	if llm != nil {
		scorers = append(scorers, detector.NewLLMDetector(llm, f.cfg.GetLLM().MinConfidence))
	}

	names := make([]string, 0, len(scorers))
	for _, s := range scorers {
		names = append(names, s.Name())
	}
	f.logger.Info("Detector pipeline assembled", zap.Strings("scorers", names))
	return scorers, nil
}

// EngineCollaborators are the optional side-effect targets of the engine
type EngineCollaborators struct {
	Quarantine core.QuarantineRepository
	Violations core.ViolationRecorder
	Feedback   core.FeedbackSink
	Notifier   core.Notifier
	Observer   core.DecisionObserver
}

// CreateEngine creates the decision engine over the given pipeline
func (f *DetectorFactory) CreateEngine(gates, scorers []core.Detector, c EngineCollaborators) (*core.DecisionEngine, error) {
	var opts []core.EngineOption
	if c.Quarantine != nil {
		opts = append(opts, core.WithQuarantine(c.Quarantine))
	}
	if c.Violations != nil {
		opts = append(opts, core.WithViolationRecorder(c.Violations))
	}
	if c.Feedback != nil {
		opts = append(opts, core.WithFeedback(c.Feedback))
	}
	if c.Notifier != nil {
		opts = append(opts, core.WithNotifier(c.Notifier))
	}
	if c.Observer != nil {
		opts = append(opts, core.WithObserver(c.Observer))
	}
	return core.NewDecisionEngine(f.cfg.GetEngine(), gates, scorers, f.logger, opts...)
}
