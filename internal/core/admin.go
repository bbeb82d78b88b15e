package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ModelInfo describes the active classifier and its training corpus
type ModelInfo struct {
	Trained      bool      `json:"trained"`
	Version      string    `json:"version,omitempty"`
	TrainedAt    time.Time `json:"trained_at,omitempty"`
	SampleCount  int       `json:"sample_count"`
	CorpusSize   int       `json:"corpus_size"`
	SpamSamples  int       `json:"spam_samples"`
	HamSamples   int       `json:"ham_samples"`
	PendingQueue int       `json:"pending_queue"`
	DroppedQueue int64     `json:"dropped_queue"`
	LastError    string    `json:"last_error,omitempty"`
	MinSamples   int       `json:"min_training_samples"`
}

// ModelTrainer rebuilds the classifier from the training corpus
type ModelTrainer interface {
	RetrainModel(ctx context.Context) (ModelInfo, error)
	ModelInfo() ModelInfo
}

// ReputationAdmin is the administrative side of the reputation store
type ReputationAdmin interface {
	Get(ctx context.Context, ip string) (*IPReputationEntry, error)
	SetBlacklisted(ctx context.Context, ip string, blacklisted bool) (*IPReputationEntry, error)
	Reset(ctx context.Context, ip string) error
}

// StatsSource provides aggregate decision counters
type StatsSource interface {
	Stats() Stats
}

// AdminStats is the statistics view of the admin surface
type AdminStats struct {
	Decisions Stats     `json:"decisions"`
	Model     ModelInfo `json:"model"`
}

// AdminService implements review, retraining and reputation administration
type AdminService struct {
	quarantine QuarantineRepository
	feedback   FeedbackSink
	trainer    ModelTrainer
	reputation ReputationAdmin
	stats      StatsSource
	logger     *zap.Logger
	now        func() time.Time
}

// NewAdminService creates a new admin service. trainer and reputation may be nil.
func NewAdminService(
	quarantine QuarantineRepository,
	feedback FeedbackSink,
	trainer ModelTrainer,
	reputation ReputationAdmin,
	stats StatsSource,
	logger *zap.Logger,
) *AdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminService{
		quarantine: quarantine,
		feedback:   feedback,
		trainer:    trainer,
		reputation: reputation,
		stats:      stats,
		logger:     logger,
		now:        time.Now,
	}
}

// Stats returns decision counters and model information
func (s *AdminService) Stats() AdminStats {
	var out AdminStats
	if s.stats != nil {
		out.Decisions = s.stats.Stats()
	}
	if s.trainer != nil {
		out.Model = s.trainer.ModelInfo()
	}
	return out
}

// ListQuarantine returns quarantine records matching filter, newest first
func (s *AdminService) ListQuarantine(ctx context.Context, filter QuarantineFilter) ([]*QuarantineRecord, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	records, err := s.quarantine.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list quarantine: %w", err)
	}
	return records, nil
}

// GetQuarantine returns a single quarantine record
func (s *AdminService) GetQuarantine(ctx context.Context, id string) (*QuarantineRecord, error) {
	return s.quarantine.Get(ctx, id)
}

// Review approves or denies a pending quarantine record. Approved submissions
// become ham training samples and denied ones spam samples.
func (s *AdminService) Review(ctx context.Context, id string, approve bool, reviewer string) (*QuarantineRecord, error) {
	reviewer = strings.TrimSpace(reviewer)
	if reviewer == "" {
		return nil, errors.New("reviewer is required")
	}

	status := ReviewDenied
	if approve {
		status = ReviewApproved
	}
	if err := s.quarantine.UpdateStatus(ctx, id, status, reviewer, s.now()); err != nil {
		return nil, err
	}

	record, err := s.quarantine.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload quarantine record: %w", err)
	}

	if s.feedback != nil {
		sample := TrainingSample{Text: record.Submission.Text(), Spam: !approve, Source: SampleSourceReview}
		if !s.feedback.Enqueue(sample) {
			s.logger.Warn("Training queue rejected review sample", zap.String("quarantine_id", id))
		}
	}

	s.logger.Info("Quarantine record reviewed",
		zap.String("quarantine_id", id),
		zap.String("status", string(status)),
		zap.String("reviewer", reviewer))
	return record, nil
}

// Retrain rebuilds the classifier now
func (s *AdminService) Retrain(ctx context.Context) (ModelInfo, error) {
	if s.trainer == nil {
		return ModelInfo{}, ErrUnsupported
	}
	return s.trainer.RetrainModel(ctx)
}

// ModelInfo describes the active classifier
func (s *AdminService) ModelInfo() (ModelInfo, error) {
	if s.trainer == nil {
		return ModelInfo{}, ErrUnsupported
	}
	return s.trainer.ModelInfo(), nil
}

// Reputation returns the stored reputation of ip
func (s *AdminService) Reputation(ctx context.Context, ip string) (*IPReputationEntry, error) {
	if s.reputation == nil {
		return nil, ErrUnsupported
	}
	return s.reputation.Get(ctx, ip)
}

// SetBlacklisted sets or clears the manual blacklist flag of ip
func (s *AdminService) SetBlacklisted(ctx context.Context, ip string, blacklisted bool) (*IPReputationEntry, error) {
	if s.reputation == nil {
		return nil, ErrUnsupported
	}
	return s.reputation.SetBlacklisted(ctx, ip, blacklisted)
}

// ResetReputation forgets everything known about ip
func (s *AdminService) ResetReputation(ctx context.Context, ip string) error {
	if s.reputation == nil {
		return ErrUnsupported
	}
	return s.reputation.Reset(ctx, ip)
}
