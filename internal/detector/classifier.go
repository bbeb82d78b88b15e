package detector

import (
	"context"
	"fmt"

	"github.com/mikey/submission-guard/internal/core"
)

// TextScorer scores text against a trained model. ok is false while untrained.
type TextScorer interface {
	Score(text string) (probability float64, version string, ok bool)
}

// ClassifierDetector scores submissions with the active ML model snapshot
type ClassifierDetector struct {
	scorer TextScorer
}

// NewClassifierDetector creates a new ML detector
func NewClassifierDetector(scorer TextScorer) *ClassifierDetector {
	return &ClassifierDetector{scorer: scorer}
}

// Name returns the detector name
func (d *ClassifierDetector) Name() string { return core.DetectorML }

// Evaluate returns the spam probability of the submission text
func (d *ClassifierDetector) Evaluate(ctx context.Context, sub *core.Submission) (core.SignalResult, error) {
	text := sub.Text()
	if text == "" {
		return core.NeutralSignal(core.DetectorML, "no text to classify", sub.ReceivedAt), nil
	}

	p, version, ok := d.scorer.Score(text)
	if !ok {
		return core.NeutralSignal(core.DetectorML, "model untrained", sub.ReceivedAt), nil
	}
	if err := ctx.Err(); err != nil {
		return core.SignalResult{}, err
	}
	return core.SignalResult{
		Score:     p,
		Available: true,
		Reason:    fmt.Sprintf("spam probability %.2f", p),
		Version:   version,
	}, nil
}
