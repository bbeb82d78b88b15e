package ml

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mikey/submission-guard/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func corpus() []core.TrainingSample {
	spam := []string{
		"WIN a FREE casino bonus now!!! click here http://spam.example",
		"Cheap viagra, limited time offer, buy now and save 90%",
		"Congratulations winner! claim your lottery cash prize today",
		"URGENT: free money waiting, click here to claim $500",
		"Hot casino deals, guaranteed jackpot, act now!!!",
		"Make money fast with this free offer, click here",
	}
	ham := []string{
		"Hi, I would like to ask about the opening hours of your office",
		"Could you send me the invoice for last month's order please",
		"Thanks for the quick reply, the meeting on Tuesday works for me",
		"I have a question about the delivery of my order to Berlin",
		"Please update the billing address on my account",
		"The documentation link on your website seems to be broken",
	}
	var samples []core.TrainingSample
	for _, s := range spam {
		samples = append(samples, core.TrainingSample{Text: s, Spam: true, Source: core.SampleSourceSeed})
	}
	for _, h := range ham {
		samples = append(samples, core.TrainingSample{Text: h, Spam: false, Source: core.SampleSourceSeed})
	}
	return samples
}

func TestFeatures(t *testing.T) {
	f := Features("The FREE offer!!! Click here: https://x.example and the free prize")
	assert.Equal(t, 2, f["free"])
	assert.NotContains(t, f, "the")
	assert.Equal(t, 1, f[patternPrefix+"excessive_exclamation"])
	assert.Equal(t, 1, f[patternPrefix+"urls"])
	assert.Equal(t, 2, f[patternPrefix+"free_offers"])
}

func TestFeatures_TopWordsOnly(t *testing.T) {
	text := ""
	for i := 0; i < 150; i++ {
		text += fmt.Sprintf("word%c%c ", 'a'+i/26, 'a'+i%26)
	}
	assert.LessOrEqual(t, len(Features(text)), maxWords)
}

func TestTrain_Separates(t *testing.T) {
	snapshot, err := Train(corpus(), TrainOptions{MinSamples: 10, MinWordFrequency: 1, Now: time.Unix(1_700_000_000, 0)})
	require.NoError(t, err)

	assert.Equal(t, 12, snapshot.SampleCount)
	assert.Equal(t, 6, snapshot.SpamSamples)
	assert.Equal(t, "nb-20231114T221320-12", snapshot.Version)

	spam := snapshot.Probability("free casino money, click here now!!!")
	ham := snapshot.Probability("could you update my order delivery address please")
	assert.Greater(t, spam, 0.5)
	assert.Less(t, ham, 0.5)
}

func TestTrain_InsufficientData(t *testing.T) {
	_, err := Train(corpus()[:3], TrainOptions{MinSamples: 10})
	assert.ErrorIs(t, err, ErrInsufficientTrainingData)

	_, err = Train(corpus()[:6], TrainOptions{MinSamples: 2})
	assert.ErrorIs(t, err, ErrInsufficientTrainingData, "a single class cannot be trained")
}

func TestClassifier_UntrainedAndSwap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models", "model.json")
	c, err := NewClassifier(path, 10, zap.NewNop())
	require.NoError(t, err)

	_, _, ok := c.Score("anything")
	assert.False(t, ok)

	snapshot, err := Train(corpus(), TrainOptions{MinSamples: 10, MinWordFrequency: 1})
	require.NoError(t, err)
	require.NoError(t, c.Swap(snapshot))

	p, version, ok := c.Score("free casino money")
	assert.True(t, ok)
	assert.Equal(t, snapshot.Version, version)
	assert.Greater(t, p, 0.5)

	reloaded, err := NewClassifier(path, 10, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, reloaded.Active())
	assert.Equal(t, snapshot.Version, reloaded.Active().Version)
}

func TestClassifier_IgnoresUndertrainedSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	snapshot, err := Train(corpus()[4:8], TrainOptions{MinSamples: 2, MinWordFrequency: 1})
	require.NoError(t, err)
	require.Equal(t, 4, snapshot.SampleCount)
	require.NoError(t, SaveSnapshot(path, snapshot))

	c, err := NewClassifier(path, 20, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, c.Active())
	_, _, ok := c.Score("free casino money")
	assert.False(t, ok)

	snapshot.MinTrainingSamples = 5
	require.NoError(t, SaveSnapshot(path, snapshot))
	c, err = NewClassifier(path, 0, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, c.Active(), "the minimum recorded in the snapshot applies too")

	snapshot.MinTrainingSamples = 2
	require.NoError(t, SaveSnapshot(path, snapshot))
	c, err = NewClassifier(path, 4, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, c.Active())
	assert.Equal(t, snapshot.Version, c.Active().Version)
}

func TestClassifier_InFlightScoringKeepsSnapshot(t *testing.T) {
	c, err := NewClassifier("", 0, zap.NewNop())
	require.NoError(t, err)

	first, err := Train(corpus(), TrainOptions{MinSamples: 10, MinWordFrequency: 1, Now: time.Unix(1, 0)})
	require.NoError(t, err)
	second, err := Train(corpus(), TrainOptions{MinSamples: 10, MinWordFrequency: 1, Now: time.Unix(2, 0)})
	require.NoError(t, err)
	require.NoError(t, c.Swap(first))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, version, ok := c.Score("free money")
			assert.True(t, ok)
			assert.Contains(t, []string{first.Version, second.Version}, version)
		}()
		go func() {
			defer wg.Done()
			_ = c.Swap(second)
		}()
	}
	wg.Wait()
	assert.Equal(t, second.Version, c.Active().Version)
}

func TestTrainer_QueueAndRetrain(t *testing.T) {
	c, err := NewClassifier("", 0, zap.NewNop())
	require.NoError(t, err)
	cfg := DefaultTrainerConfig()
	cfg.MinSamples = 10
	cfg.MinWordFrequency = 1
	cfg.QueueSize = 4
	cfg.CorpusPath = filepath.Join(t.TempDir(), "corpus.json")

	trainer, err := NewTrainer(c, cfg, zap.NewNop())
	require.NoError(t, err)

	_, err = trainer.Retrain(context.Background())
	assert.ErrorIs(t, err, ErrInsufficientTrainingData)
	assert.NotEmpty(t, trainer.Stats().LastError)

	samples := corpus()
	trainer.Add(samples[:8]...)
	for _, s := range samples[8:] {
		assert.True(t, trainer.Enqueue(s))
	}
	assert.False(t, trainer.Enqueue(core.TrainingSample{Text: "overflow", Spam: true}))
	assert.False(t, trainer.Enqueue(core.TrainingSample{Text: "   "}))

	snapshot, err := trainer.Retrain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, snapshot.SampleCount)
	assert.Equal(t, snapshot.Version, c.Active().Version)

	stats := trainer.Stats()
	assert.Equal(t, 12, stats.CorpusSize)
	assert.Equal(t, int64(1), stats.Dropped)
	assert.Empty(t, stats.LastError)

	saved, err := LoadSamples(cfg.CorpusPath)
	require.NoError(t, err)
	assert.Len(t, saved, 12)
}

func TestTrainer_ModelInfo(t *testing.T) {
	c, err := NewClassifier("", 0, zap.NewNop())
	require.NoError(t, err)
	trainer, err := NewTrainer(c, TrainerConfig{MinSamples: 10, MinWordFrequency: 1}, zap.NewNop())
	require.NoError(t, err)

	info := trainer.ModelInfo()
	assert.False(t, info.Trained)
	assert.Equal(t, 10, info.MinSamples)

	info, err = trainer.RetrainModel(context.Background())
	assert.ErrorIs(t, err, ErrInsufficientTrainingData)
	assert.False(t, info.Trained)
	assert.NotEmpty(t, info.LastError)

	trainer.Add(corpus()...)
	info, err = trainer.RetrainModel(context.Background())
	require.NoError(t, err)
	assert.True(t, info.Trained)
	assert.Equal(t, c.Active().Version, info.Version)
	assert.Equal(t, 12, info.SampleCount)
	assert.Equal(t, 6, info.SpamSamples)
	assert.Equal(t, 6, info.HamSamples)
	assert.Empty(t, info.LastError)
}

func TestTrainer_MaxCorpus(t *testing.T) {
	c, _ := NewClassifier("", 0, zap.NewNop())
	trainer, err := NewTrainer(c, TrainerConfig{MinSamples: 1, MaxCorpus: 5}, zap.NewNop())
	require.NoError(t, err)

	trainer.Add(corpus()...)
	assert.Equal(t, 5, trainer.Stats().CorpusSize)
}

func TestScheduler(t *testing.T) {
	c, _ := NewClassifier("", 0, zap.NewNop())
	trainer, err := NewTrainer(c, DefaultTrainerConfig(), zap.NewNop())
	require.NoError(t, err)

	s, err := NewScheduler(trainer, "0 3 * * *", zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, s.Cron.Entries(), 1)
	s.Start()
	s.Stop()

	_, err = NewScheduler(trainer, "not a schedule", zap.NewNop())
	assert.Error(t, err)
}
