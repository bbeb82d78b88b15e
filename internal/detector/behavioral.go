package detector

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/mikey/submission-guard/internal/core"
)

// BehavioralConfig holds the thresholds of the telemetry rules. Durations are in
// seconds, typing speed in words per minute.
type BehavioralConfig struct {
	MinInteractionDelay  float64
	NoMouseMinKeystrokes int
	MinRhythmSamples     int
	MinRhythmVariation   float64
	MaxTypingSpeed       float64
	MaxCopyPasteRatio    float64
	MinTimeOnPage        float64
	MaxCharsPerSecond    float64
	MessageField         string
}

// DefaultBehavioralConfig returns the production defaults
func DefaultBehavioralConfig() BehavioralConfig {
	return BehavioralConfig{
		MinInteractionDelay:  0.5,
		NoMouseMinKeystrokes: 10,
		MinRhythmSamples:     5,
		MinRhythmVariation:   0.1,
		MaxTypingSpeed:       200,
		MaxCopyPasteRatio:    0.5,
		MinTimeOnPage:        3,
		MaxCharsPerSecond:    15,
		MessageField:         "message",
	}
}

type behaviorRule struct {
	name  string
	score float64
	check func(cfg BehavioralConfig, t *core.BehavioralTelemetry, sub *core.Submission) bool
}

var behaviorRules = []behaviorRule{
	{"immediate_interaction", 0.6, func(cfg BehavioralConfig, t *core.BehavioralTelemetry, _ *core.Submission) bool {
		return t.InteractionDelay < cfg.MinInteractionDelay
	}},
	{"no_mouse_movement", 0.5, func(cfg BehavioralConfig, t *core.BehavioralTelemetry, _ *core.Submission) bool {
		return t.MouseMovements == 0 && t.Keystrokes >= cfg.NoMouseMinKeystrokes
	}},
	{"regular_typing_rhythm", 0.8, func(cfg BehavioralConfig, t *core.BehavioralTelemetry, _ *core.Submission) bool {
		if len(t.TypingRhythm) < cfg.MinRhythmSamples {
			return false
		}
		return variationCoefficient(t.TypingRhythm) < cfg.MinRhythmVariation
	}},
	{"inhuman_typing_speed", 0.8, func(cfg BehavioralConfig, t *core.BehavioralTelemetry, _ *core.Submission) bool {
		return t.TypingSpeed > cfg.MaxTypingSpeed
	}},
	{"excessive_copy_paste", 0.4, func(cfg BehavioralConfig, t *core.BehavioralTelemetry, _ *core.Submission) bool {
		if t.CopyPastes == 0 {
			return false
		}
		interactions := t.MouseMovements + t.Keystrokes
		if interactions == 0 {
			return true
		}
		return float64(t.CopyPastes)/float64(interactions) > cfg.MaxCopyPasteRatio
	}},
	{"insufficient_time", 0.7, func(cfg BehavioralConfig, t *core.BehavioralTelemetry, sub *core.Submission) bool {
		return t.TimeOnPage < minTimeOnPage(cfg, sub)
	}},
}

func minTimeOnPage(cfg BehavioralConfig, sub *core.Submission) float64 {
	floor := cfg.MinTimeOnPage
	if cfg.MaxCharsPerSecond > 0 {
		if need := float64(len([]rune(sub.Field(cfg.MessageField)))) / cfg.MaxCharsPerSecond; need > floor {
			floor = need
		}
	}
	return floor
}

// BehavioralAnalyzer scores client interaction telemetry
type BehavioralAnalyzer struct {
	cfg BehavioralConfig
}

// NewBehavioralAnalyzer creates a new behavioral analyzer
func NewBehavioralAnalyzer(cfg BehavioralConfig) *BehavioralAnalyzer {
	return &BehavioralAnalyzer{cfg: cfg}
}

// Name returns the detector name
func (b *BehavioralAnalyzer) Name() string { return core.DetectorBehavioral }

// Evaluate applies every rule and combines the fired rule scores by noisy-OR.
// Missing telemetry is neutral.
func (b *BehavioralAnalyzer) Evaluate(_ context.Context, sub *core.Submission) (core.SignalResult, error) {
	if sub.Telemetry == nil {
		return core.NeutralSignal(core.DetectorBehavioral, "no telemetry", sub.ReceivedAt), nil
	}

	var triggers []string
	keep := 1.0
	for _, rule := range behaviorRules {
		if rule.check(b.cfg, sub.Telemetry, sub) {
			triggers = append(triggers, rule.name)
			keep *= 1 - rule.score
		}
	}

	score := 1 - keep
	reason := "human-like interaction"
	if len(triggers) > 0 {
		reason = fmt.Sprintf("behavioral anomalies: %s", strings.Join(triggers, ", "))
	}
	return core.SignalResult{Score: score, Available: true, Reason: reason, Triggers: triggers}, nil
}

// variationCoefficient returns the standard deviation divided by the mean
func variationCoefficient(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if mean == 0 {
		return 0
	}
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq/float64(len(values))) / mean
}
