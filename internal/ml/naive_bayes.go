package ml

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mikey/submission-guard/internal/core"
)

// ErrInsufficientTrainingData is returned when a corpus is too small to train on
var ErrInsufficientTrainingData = errors.New("insufficient training data")

// TrainOptions controls naive Bayes training
type TrainOptions struct {
	MinSamples       int
	MinWordFrequency int
	Now              time.Time
}

// Model holds the naive Bayes parameters
type Model struct {
	SpamDocs   int            `json:"spam_docs"`
	HamDocs    int            `json:"ham_docs"`
	SpamCounts map[string]int `json:"spam_counts"`
	HamCounts  map[string]int `json:"ham_counts"`
	TotalSpam  int            `json:"total_spam"`
	TotalHam   int            `json:"total_ham"`
}

// Snapshot is an immutable trained model. It is never modified after Train returns.
type Snapshot struct {
	Version            string    `json:"version"`
	TrainedAt          time.Time `json:"trained_at"`
	SampleCount        int       `json:"sample_count"`
	SpamSamples        int       `json:"spam_samples"`
	HamSamples         int       `json:"ham_samples"`
	MinTrainingSamples int       `json:"min_training_samples"`
	VocabularySize     int       `json:"vocabulary_size"`
	Model              *Model    `json:"model"`
}

// Train fits a naive Bayes model on samples. Both classes must be present.
func Train(samples []core.TrainingSample, opts TrainOptions) (*Snapshot, error) {
	if opts.MinSamples < 2 {
		opts.MinSamples = 2
	}
	if opts.MinWordFrequency <= 0 {
		opts.MinWordFrequency = 2
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	if len(samples) < opts.MinSamples {
		return nil, fmt.Errorf("%w: have %d samples, need %d", ErrInsufficientTrainingData, len(samples), opts.MinSamples)
	}

	m := &Model{
		SpamCounts: make(map[string]int),
		HamCounts:  make(map[string]int),
	}
	for _, s := range samples {
		features := Features(s.Text)
		if s.Spam {
			m.SpamDocs++
		} else {
			m.HamDocs++
		}
		for f, n := range features {
			if s.Spam {
				m.SpamCounts[f] += n
			} else {
				m.HamCounts[f] += n
			}
		}
	}
	if m.SpamDocs == 0 || m.HamDocs == 0 {
		return nil, fmt.Errorf("%w: need both spam and ham samples (spam=%d ham=%d)", ErrInsufficientTrainingData, m.SpamDocs, m.HamDocs)
	}

	m.prune(opts.MinWordFrequency)

	return &Snapshot{
		Version:            fmt.Sprintf("nb-%s-%d", opts.Now.UTC().Format("20060102T150405"), len(samples)),
		TrainedAt:          opts.Now,
		SampleCount:        len(samples),
		SpamSamples:        m.SpamDocs,
		HamSamples:         m.HamDocs,
		MinTrainingSamples: opts.MinSamples,
		VocabularySize:     m.vocabulary(),
		Model:              m,
	}, nil
}

// prune drops features seen fewer than minFreq times and recomputes the totals
func (m *Model) prune(minFreq int) {
	seen := make(map[string]int)
	for f, n := range m.SpamCounts {
		seen[f] += n
	}
	for f, n := range m.HamCounts {
		seen[f] += n
	}
	for f, n := range seen {
		if n < minFreq {
			delete(m.SpamCounts, f)
			delete(m.HamCounts, f)
		}
	}

	m.TotalSpam, m.TotalHam = 0, 0
	for _, n := range m.SpamCounts {
		m.TotalSpam += n
	}
	for _, n := range m.HamCounts {
		m.TotalHam += n
	}
}

func (m *Model) vocabulary() int {
	vocab := len(m.SpamCounts)
	for f := range m.HamCounts {
		if _, ok := m.SpamCounts[f]; !ok {
			vocab++
		}
	}
	return vocab
}

// Probability returns the posterior probability that text is spam
func (s *Snapshot) Probability(text string) float64 {
	m := s.Model
	total := float64(m.SpamDocs + m.HamDocs)
	logSpam := math.Log(float64(m.SpamDocs) / total)
	logHam := math.Log(float64(m.HamDocs) / total)

	vocab := float64(s.VocabularySize)
	for f, n := range Features(text) {
		sc, inSpam := m.SpamCounts[f]
		hc, inHam := m.HamCounts[f]
		if !inSpam && !inHam {
			continue
		}
		// Laplace smoothing
		pSpam := float64(sc+1) / (float64(m.TotalSpam) + vocab)
		pHam := float64(hc+1) / (float64(m.TotalHam) + vocab)
		logSpam += float64(n) * math.Log(pSpam)
		logHam += float64(n) * math.Log(pHam)
	}

	maxLog := math.Max(logSpam, logHam)
	spam := math.Exp(logSpam - maxLog)
	ham := math.Exp(logHam - maxLog)
	return spam / (spam + ham)
}
