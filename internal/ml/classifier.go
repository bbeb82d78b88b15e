package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"go.uber.org/zap"
)

// Classifier scores text against the active model snapshot. Swapping the snapshot
// never affects a Score call that already loaded the previous one.
type Classifier struct {
	current   atomic.Pointer[Snapshot]
	modelPath string
	logger    *zap.Logger
}

// NewClassifier creates a classifier. When modelPath names an existing snapshot it is loaded,
// unless it was fitted on fewer than minSamples samples (or fewer than the minimum recorded
// in the snapshot itself), in which case the classifier starts untrained.
func NewClassifier(modelPath string, minSamples int, logger *zap.Logger) (*Classifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Classifier{modelPath: modelPath, logger: logger}
	if modelPath == "" {
		return c, nil
	}

	snapshot, err := LoadSnapshot(modelPath)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("No model snapshot found, classifier starts untrained", zap.String("path", modelPath))
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	if snapshot.MinTrainingSamples > minSamples {
		minSamples = snapshot.MinTrainingSamples
	}
	if snapshot.SampleCount < minSamples {
		logger.Warn("Ignoring under-trained model snapshot, classifier starts untrained",
			zap.String("path", modelPath),
			zap.String("version", snapshot.Version),
			zap.Int("sample_count", snapshot.SampleCount),
			zap.Int("min_training_samples", minSamples))
		return c, nil
	}
	c.current.Store(snapshot)
	logger.Info("Loaded model snapshot",
		zap.String("version", snapshot.Version),
		zap.Int("sample_count", snapshot.SampleCount))
	return c, nil
}

// Active returns the active snapshot or nil when untrained
func (c *Classifier) Active() *Snapshot {
	return c.current.Load()
}

// Score returns the spam probability and the version of the snapshot that produced it.
// ok is false while the classifier is untrained.
func (c *Classifier) Score(text string) (probability float64, version string, ok bool) {
	snapshot := c.current.Load()
	if snapshot == nil {
		return 0, "", false
	}
	return snapshot.Probability(text), snapshot.Version, true
}

// Swap installs snapshot as the active model and persists it when a model path is configured
func (c *Classifier) Swap(snapshot *Snapshot) error {
	if snapshot == nil || snapshot.Model == nil {
		return errors.New("snapshot has no model")
	}
	previous := c.current.Swap(snapshot)

	prevVersion := ""
	if previous != nil {
		prevVersion = previous.Version
	}
	c.logger.Info("Activated model snapshot",
		zap.String("version", snapshot.Version),
		zap.String("previous_version", prevVersion),
		zap.Int("sample_count", snapshot.SampleCount))

	if c.modelPath == "" {
		return nil
	}
	if err := SaveSnapshot(c.modelPath, snapshot); err != nil {
		return err
	}
	return nil
}

// LoadSnapshot reads a snapshot from a JSON file
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model snapshot: %w", err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode model snapshot: %w", err)
	}
	if snapshot.Model == nil || snapshot.Model.SpamDocs == 0 || snapshot.Model.HamDocs == 0 {
		return nil, fmt.Errorf("model snapshot %s is incomplete", path)
	}
	return &snapshot, nil
}

// SaveSnapshot writes a snapshot atomically through a temporary file
func SaveSnapshot(path string, snapshot *Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode model snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write model snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to install model snapshot: %w", err)
	}
	return nil
}
