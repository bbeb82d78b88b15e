package quarantine

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mikey/submission-guard/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRecord(id, form string, outcome core.Outcome, created time.Time) *core.QuarantineRecord {
	sub := core.Submission{
		ID:         "sub-" + id,
		FormKey:    form,
		SourceIP:   "198.51.100.7",
		Fields:     map[string]string{"message": "cheap pills " + id},
		ReceivedAt: created,
	}
	return &core.QuarantineRecord{
		ID:         id,
		Submission: sub,
		Decision: core.RiskDecision{
			ID:            "dec-" + id,
			SubmissionID:  sub.ID,
			FormKey:       form,
			Outcome:       outcome,
			CombinedScore: 0.7,
			Signals: []core.SignalResult{
				{Detector: core.DetectorContent, Score: 0.7, Available: true, Reason: "content markers"},
			},
			DecidedAt: created,
		},
		ReviewStatus: core.ReviewPending,
		CreatedAt:    created,
	}
}

func exerciseRepository(t *testing.T, repo core.QuarantineRepository) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		outcome := core.OutcomeQuarantine
		if i%2 == 1 {
			outcome = core.OutcomeReject
		}
		form := "contact"
		if i == 4 {
			form = "newsletter"
		}
		require.NoError(t, repo.Save(ctx, newRecord(fmt.Sprintf("q%d", i), form, outcome, base.Add(time.Duration(i)*time.Minute))))
	}

	got, err := repo.Get(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeReject, got.Decision.Outcome)
	assert.Equal(t, "cheap pills q1", got.Submission.Field("message"))
	assert.Len(t, got.Decision.Signals, 1)
	assert.True(t, base.Add(time.Minute).Equal(got.CreatedAt))
	assert.Nil(t, got.ReviewedAt)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	all, err := repo.List(ctx, core.QuarantineFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "q4", all[0].ID, "newest first")

	page, err := repo.List(ctx, core.QuarantineFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "q3", page[0].ID)

	rejects, err := repo.List(ctx, core.QuarantineFilter{Outcome: core.OutcomeReject, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, rejects, 2)

	contact, err := repo.List(ctx, core.QuarantineFilter{FormKey: "contact", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, contact, 4)

	reviewedAt := base.Add(time.Hour)
	require.NoError(t, repo.UpdateStatus(ctx, "q2", core.ReviewApproved, "alice", reviewedAt))
	assert.ErrorIs(t, repo.UpdateStatus(ctx, "q2", core.ReviewDenied, "bob", reviewedAt), core.ErrAlreadyReviewed)
	assert.ErrorIs(t, repo.UpdateStatus(ctx, "missing", core.ReviewDenied, "bob", reviewedAt), core.ErrNotFound)

	got, err = repo.Get(ctx, "q2")
	require.NoError(t, err)
	assert.Equal(t, core.ReviewApproved, got.ReviewStatus)
	assert.Equal(t, "alice", got.ReviewedBy)
	require.NotNil(t, got.ReviewedAt)
	assert.True(t, reviewedAt.Equal(*got.ReviewedAt))

	pending, err := repo.List(ctx, core.QuarantineFilter{Status: core.ReviewPending, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, pending, 4)
}

func TestMemoryRepository(t *testing.T) {
	exerciseRepository(t, NewMemoryRepository(zap.NewNop()))
}

func TestSQLiteRepository(t *testing.T) {
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "quarantine.db"), zap.NewNop())
	require.NoError(t, err)
	defer repo.Stop()

	exerciseRepository(t, repo)
}

func TestBuildListQuery(t *testing.T) {
	query, args := buildListQuery(core.QuarantineFilter{Status: core.ReviewPending, FormKey: "contact", Limit: 20, Offset: 40})
	assert.Equal(t, selectColumns+" WHERE review_status = ? AND form_key = ? ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?", query)
	assert.Equal(t, []any{"pending", "contact", 20, 40}, args)

	_, args = buildListQuery(core.QuarantineFilter{})
	assert.Equal(t, []any{50, 0}, args)
}

func TestMySQLRepository_UpdateStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewMySQLRepositoryWithDB(db, zap.NewNop())
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE quarantine_records").
		WithArgs("approved", "alice", at.UnixMilli(), "q1", "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateStatus(context.Background(), "q1", core.ReviewApproved, "alice", at))

	mock.ExpectExec("UPDATE quarantine_records").
		WithArgs("denied", "bob", at.UnixMilli(), "q1", "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT review_status FROM quarantine_records WHERE id = ?`)).
		WithArgs("q1").
		WillReturnRows(sqlmock.NewRows([]string{"review_status"}).AddRow("approved"))
	assert.ErrorIs(t, repo.UpdateStatus(context.Background(), "q1", core.ReviewDenied, "bob", at), core.ErrAlreadyReviewed)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLRepository_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewMySQLRepositoryWithDB(db, zap.NewNop())
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "review_status", "reviewed_by", "reviewed_at", "created_at", "submission", "decision"}).
		AddRow("q9", "pending", "", int64(0), created.UnixMilli(),
			`{"id":"s9","form_key":"contact","fields":{"message":"hi"}}`,
			`{"id":"d9","outcome":"quarantine","combined_score":0.65}`)
	mock.ExpectQuery(regexp.QuoteMeta(selectColumns + ` WHERE id = ?`)).WithArgs("q9").WillReturnRows(rows)

	record, err := repo.Get(context.Background(), "q9")
	require.NoError(t, err)
	assert.Equal(t, "contact", record.Submission.FormKey)
	assert.Equal(t, core.OutcomeQuarantine, record.Decision.Outcome)
	assert.Equal(t, 0.65, record.Decision.CombinedScore)
	assert.True(t, created.Equal(record.CreatedAt))

	assert.NoError(t, mock.ExpectationsWereMet())
}
