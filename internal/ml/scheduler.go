package ml

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler retrains the classifier on a cron schedule
type Scheduler struct {
	Cron    *cron.Cron
	trainer *Trainer
	logger  *zap.Logger
}

// NewScheduler registers a retraining job for spec, a standard five-field cron expression
func NewScheduler(trainer *Trainer, spec string, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		Cron:    cron.New(),
		trainer: trainer,
		logger:  logger,
	}
	if _, err := s.Cron.AddFunc(spec, s.retrain); err != nil {
		return nil, fmt.Errorf("failed to schedule retraining %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) retrain() {
	snapshot, err := s.trainer.Retrain(context.Background())
	switch {
	case errors.Is(err, ErrInsufficientTrainingData):
		s.logger.Info("Skipped scheduled retraining", zap.Error(err))
	case err != nil:
		s.logger.Error("Scheduled retraining failed", zap.Error(err))
	default:
		s.logger.Info("Scheduled retraining completed",
			zap.String("version", snapshot.Version),
			zap.Int("sample_count", snapshot.SampleCount))
	}
}

// Start starts the cron scheduler
func (s *Scheduler) Start() {
	s.Cron.Start()
}

// Stop stops the scheduler and waits for a running job
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
}
