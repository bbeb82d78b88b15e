package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/mikey/submission-guard/internal/adapters/quarantine"
	repadapters "github.com/mikey/submission-guard/internal/adapters/reputation"
	"github.com/mikey/submission-guard/internal/core"
	"github.com/mikey/submission-guard/internal/ml"
	"github.com/mikey/submission-guard/internal/reputation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type adminFixture struct {
	admin      *core.AdminService
	quarantine *quarantine.MemoryRepository
	trainer    *ml.Trainer
	classifier *ml.Classifier
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	logger := zap.NewNop()

	classifier, err := ml.NewClassifier("", 0, logger)
	require.NoError(t, err)
	trainer, err := ml.NewTrainer(classifier, ml.TrainerConfig{MinSamples: 4, MinWordFrequency: 1, QueueSize: 16}, logger)
	require.NoError(t, err)
	repStore, err := reputation.NewStore(repadapters.NewMemoryRepository(logger), nil, reputation.DefaultConfig(), logger)
	require.NoError(t, err)

	f := &adminFixture{
		quarantine: quarantine.NewMemoryRepository(logger),
		trainer:    trainer,
		classifier: classifier,
	}
	engine, err := core.NewDecisionEngine(core.DefaultEngineConfig(), nil, nil, logger)
	require.NoError(t, err)
	f.admin = core.NewAdminService(f.quarantine, trainer, trainer, repStore, engine, logger)
	return f
}

func (f *adminFixture) seed(t *testing.T, id, message string) {
	t.Helper()
	require.NoError(t, f.quarantine.Save(context.Background(), &core.QuarantineRecord{
		ID: id,
		Submission: core.Submission{
			ID:      "sub-" + id,
			FormKey: "contact",
			Fields:  map[string]string{"message": message},
		},
		Decision:     core.RiskDecision{ID: "dec-" + id, Outcome: core.OutcomeQuarantine, CombinedScore: 0.7},
		ReviewStatus: core.ReviewPending,
		CreatedAt:    time.Now(),
	}))
}

func TestAdmin_ReviewFeedsTrainer(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	f.seed(t, "q1", "claim your free casino bonus, click here now")
	f.seed(t, "q2", "free lottery jackpot waiting, act now and claim")
	f.seed(t, "q3", "could you call me back about my invoice please")
	f.seed(t, "q4", "thanks, the meeting on tuesday works for me")

	_, err := f.admin.Review(ctx, "q1", false, "")
	assert.Error(t, err)

	rec, err := f.admin.Review(ctx, "q1", false, "alice")
	require.NoError(t, err)
	assert.Equal(t, core.ReviewDenied, rec.ReviewStatus)
	assert.Equal(t, "alice", rec.ReviewedBy)
	require.NotNil(t, rec.ReviewedAt)

	_, err = f.admin.Review(ctx, "q1", true, "bob")
	assert.ErrorIs(t, err, core.ErrAlreadyReviewed)
	_, err = f.admin.Review(ctx, "missing", true, "bob")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.admin.Review(ctx, "q2", false, "alice")
	require.NoError(t, err)
	_, err = f.admin.Review(ctx, "q3", true, "alice")
	require.NoError(t, err)
	_, err = f.admin.Review(ctx, "q4", true, "alice")
	require.NoError(t, err)

	assert.Equal(t, 4, f.admin.Stats().Model.PendingQueue)

	info, err := f.admin.Retrain(ctx)
	require.NoError(t, err)
	assert.True(t, info.Trained)
	assert.Equal(t, 2, info.SpamSamples)
	assert.Equal(t, 2, info.HamSamples)
	assert.Equal(t, 0, info.PendingQueue)

	p, version, ok := f.classifier.Score("free casino jackpot, claim now")
	require.True(t, ok)
	assert.Equal(t, info.Version, version)
	assert.Greater(t, p, 0.5)
}

func TestAdmin_ListQuarantine(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		f.seed(t, id, "message "+id)
	}
	_, err := f.admin.Review(ctx, "b", true, "alice")
	require.NoError(t, err)

	pending, err := f.admin.ListQuarantine(ctx, core.QuarantineFilter{Status: core.ReviewPending, Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	rec, err := f.admin.GetQuarantine(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, core.ReviewApproved, rec.ReviewStatus)
}

func TestAdmin_Reputation(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	_, err := f.admin.Reputation(ctx, "192.0.2.9")
	assert.ErrorIs(t, err, core.ErrNotFound)

	entry, err := f.admin.SetBlacklisted(ctx, "192.0.2.9", true)
	require.NoError(t, err)
	assert.True(t, entry.Blacklisted)
	assert.True(t, entry.ExpiresAt.IsZero())

	entry, err = f.admin.Reputation(ctx, "192.0.2.9")
	require.NoError(t, err)
	assert.True(t, entry.Blacklisted)

	require.NoError(t, f.admin.ResetReputation(ctx, "192.0.2.9"))
	_, err = f.admin.Reputation(ctx, "192.0.2.9")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestAdmin_WithoutOptionalCollaborators(t *testing.T) {
	admin := core.NewAdminService(quarantine.NewMemoryRepository(nil), nil, nil, nil, nil, nil)
	ctx := context.Background()

	_, err := admin.Retrain(ctx)
	assert.ErrorIs(t, err, core.ErrUnsupported)
	_, err = admin.ModelInfo()
	assert.ErrorIs(t, err, core.ErrUnsupported)
	_, err = admin.Reputation(ctx, "192.0.2.1")
	assert.ErrorIs(t, err, core.ErrUnsupported)
	assert.ErrorIs(t, admin.ResetReputation(ctx, "192.0.2.1"), core.ErrUnsupported)

	stats := admin.Stats()
	assert.Zero(t, stats.Decisions.Total)
	assert.False(t, stats.Model.Trained)
}
