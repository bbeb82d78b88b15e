package detector

import (
	"context"
	"fmt"

	"github.com/mikey/submission-guard/internal/core"
)

// LLMDetector asks a language model for a second opinion
type LLMDetector struct {
	client        core.LLMClient
	minConfidence float64
}

// NewLLMDetector creates a new LLM detector. Verdicts below minConfidence are neutral.
func NewLLMDetector(client core.LLMClient, minConfidence float64) *LLMDetector {
	return &LLMDetector{client: client, minConfidence: minConfidence}
}

// Name returns the detector name
func (d *LLMDetector) Name() string { return core.DetectorLLM }

// Evaluate calls the model. Errors surface so the engine treats the model as unavailable.
func (d *LLMDetector) Evaluate(ctx context.Context, sub *core.Submission) (core.SignalResult, error) {
	if sub.Text() == "" {
		return core.NeutralSignal(core.DetectorLLM, "no text to analyze", sub.ReceivedAt), nil
	}

	verdict, err := d.client.ScoreSubmission(ctx, sub)
	if err != nil {
		return core.SignalResult{}, fmt.Errorf("failed to score submission: %w", err)
	}
	if verdict.Confidence < d.minConfidence {
		return core.NeutralSignal(core.DetectorLLM,
			fmt.Sprintf("low confidence %.2f from %s", verdict.Confidence, verdict.Model), sub.ReceivedAt), nil
	}

	return core.SignalResult{
		Score:     verdict.Score,
		Available: true,
		Reason:    verdict.Explanation,
		Version:   verdict.Model,
	}, nil
}
