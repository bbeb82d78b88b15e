package ports

import (
	"context"

	"github.com/mikey/submission-guard/internal/core"
)

// Intake defines the interface for a submission intake surface
type Intake interface {
	// Start starts accepting submissions and blocks until stopped
	Start() error

	// Stop stops the intake
	Stop() error
}

// BackgroundTask is a long running job owned by the process lifecycle
type BackgroundTask interface {
	// Run blocks until ctx is cancelled
	Run(ctx context.Context)
}

// Evaluator produces a decision for a single submission
type Evaluator interface {
	Evaluate(ctx context.Context, sub *core.Submission) (*core.RiskDecision, error)
}
