package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mikey/submission-guard/internal/core"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// TrainerConfig holds the retraining settings
type TrainerConfig struct {
	MinSamples       int
	MinWordFrequency int
	QueueSize        int
	MaxCorpus        int
	CorpusPath       string
}

// DefaultTrainerConfig returns the production defaults
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		MinSamples:       20,
		MinWordFrequency: 2,
		QueueSize:        1024,
		MaxCorpus:        50000,
	}
}

// TrainerStats describes the training corpus
type TrainerStats struct {
	CorpusSize    int       `json:"corpus_size"`
	SpamSamples   int       `json:"spam_samples"`
	HamSamples    int       `json:"ham_samples"`
	Pending       int       `json:"pending"`
	Dropped       int64     `json:"dropped"`
	LastTrainedAt time.Time `json:"last_trained_at,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

// Trainer collects labelled samples off the request path and retrains the classifier
type Trainer struct {
	classifier *Classifier
	cfg        TrainerConfig
	logger     *zap.Logger
	queue      chan core.TrainingSample
	now        func() time.Time

	mu          sync.Mutex
	corpus      []core.TrainingSample
	dropped     int64
	lastTrained time.Time
	lastErr     error
	onRetrain   func(*Snapshot)

	trainMu sync.Mutex
}

// NewTrainer creates a trainer. A configured corpus file is loaded when present.
func NewTrainer(classifier *Classifier, cfg TrainerConfig, logger *zap.Logger) (*Trainer, error) {
	if cfg.MinSamples <= 0 {
		return nil, &core.ConfigError{Key: "ml.min_training_samples", Reason: "must be positive"}
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultTrainerConfig().QueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &Trainer{
		classifier: classifier,
		cfg:        cfg,
		logger:     logger,
		queue:      make(chan core.TrainingSample, cfg.QueueSize),
		now:        time.Now,
	}

	if cfg.CorpusPath != "" {
		samples, err := LoadSamples(cfg.CorpusPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			t.corpus = samples
			logger.Info("Loaded training corpus", zap.Int("samples", len(samples)))
		}
	}
	return t, nil
}

// Enqueue offers a sample to the training queue without blocking.
// It returns false when the queue is full and the sample was dropped.
func (t *Trainer) Enqueue(sample core.TrainingSample) bool {
	if strings.TrimSpace(sample.Text) == "" {
		return false
	}
	select {
	case t.queue <- sample:
		return true
	default:
		t.mu.Lock()
		t.dropped++
		t.mu.Unlock()
		return false
	}
}

// Add appends samples straight to the corpus
func (t *Trainer) Add(samples ...core.TrainingSample) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.corpus = append(t.corpus, samples...)
	t.trim()
}

// trim keeps the corpus within MaxCorpus by dropping the oldest samples. Caller holds mu.
func (t *Trainer) trim() {
	if t.cfg.MaxCorpus > 0 && len(t.corpus) > t.cfg.MaxCorpus {
		t.corpus = append([]core.TrainingSample(nil), t.corpus[len(t.corpus)-t.cfg.MaxCorpus:]...)
	}
}

// drain moves every queued sample into the corpus
func (t *Trainer) drain() int {
	moved := 0
	t.mu.Lock()
	defer t.mu.Unlock()
	for {
		select {
		case s := <-t.queue:
			t.corpus = append(t.corpus, s)
			moved++
		default:
			t.trim()
			return moved
		}
	}
}

// Run drains the queue into the corpus until ctx is cancelled
func (t *Trainer) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			t.drain()
			return
		case <-ticker.C:
			if n := t.drain(); n > 0 {
				t.logger.Debug("Collected training samples", zap.Int("count", n))
			}
		}
	}
}

// Retrain trains a new snapshot from the corpus and activates it. Concurrent calls are serialised.
func (t *Trainer) Retrain(ctx context.Context) (*Snapshot, error) {
	t.trainMu.Lock()
	defer t.trainMu.Unlock()

	t.drain()
	t.mu.Lock()
	samples := append([]core.TrainingSample(nil), t.corpus...)
	t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snapshot, err := Train(samples, TrainOptions{
		MinSamples:       t.cfg.MinSamples,
		MinWordFrequency: t.cfg.MinWordFrequency,
		Now:              t.now(),
	})
	if err != nil {
		t.setResult(time.Time{}, err)
		return nil, err
	}

	if err := t.classifier.Swap(snapshot); err != nil {
		t.setResult(time.Time{}, err)
		return nil, fmt.Errorf("failed to activate model snapshot: %w", err)
	}

	if t.cfg.CorpusPath != "" {
		if err := SaveSamples(t.cfg.CorpusPath, samples); err != nil {
			t.logger.Warn("Failed to persist training corpus", zap.Error(err))
		}
	}

	t.setResult(snapshot.TrainedAt, nil)
	if t.onRetrain != nil {
		t.onRetrain(snapshot)
	}
	return snapshot, nil
}

// OnRetrain registers fn to be called after every successful retraining.
// It must be set before the trainer is shared.
func (t *Trainer) OnRetrain(fn func(*Snapshot)) {
	t.onRetrain = fn
}

func (t *Trainer) setResult(at time.Time, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastErr = err
	if err == nil {
		t.lastTrained = at
	}
}

// Stats returns a description of the corpus and the last training run
func (t *Trainer) Stats() TrainerStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := TrainerStats{
		CorpusSize:    len(t.corpus),
		Pending:       len(t.queue),
		Dropped:       t.dropped,
		LastTrainedAt: t.lastTrained,
	}
	for _, sample := range t.corpus {
		if sample.Spam {
			s.SpamSamples++
		} else {
			s.HamSamples++
		}
	}
	if t.lastErr != nil {
		s.LastError = t.lastErr.Error()
	}
	return s
}

// LoadSamples reads labelled samples from a YAML or JSON file
func LoadSamples(path string) ([]core.TrainingSample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read training samples: %w", err)
	}

	var samples []core.TrainingSample
	if strings.HasSuffix(path, ".json") {
		err = json.Unmarshal(data, &samples)
	} else {
		err = yaml.Unmarshal(data, &samples)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode training samples: %w", err)
	}
	return samples, nil
}

// SaveSamples writes samples as JSON
func SaveSamples(path string, samples []core.TrainingSample) error {
	data, err := json.Marshal(samples)
	if err != nil {
		return fmt.Errorf("failed to encode training samples: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write training samples: %w", err)
	}
	return nil
}

// ModelInfo describes the active snapshot and the corpus
func (t *Trainer) ModelInfo() core.ModelInfo {
	stats := t.Stats()
	info := core.ModelInfo{
		CorpusSize:   stats.CorpusSize,
		SpamSamples:  stats.SpamSamples,
		HamSamples:   stats.HamSamples,
		PendingQueue: stats.Pending,
		DroppedQueue: stats.Dropped,
		LastError:    stats.LastError,
		MinSamples:   t.cfg.MinSamples,
	}
	if snapshot := t.classifier.Active(); snapshot != nil {
		info.Trained = true
		info.Version = snapshot.Version
		info.TrainedAt = snapshot.TrainedAt
		info.SampleCount = snapshot.SampleCount
	}
	return info
}

// RetrainModel retrains and reports the resulting model
func (t *Trainer) RetrainModel(ctx context.Context) (core.ModelInfo, error) {
	if _, err := t.Retrain(ctx); err != nil {
		return t.ModelInfo(), err
	}
	return t.ModelInfo(), nil
}
