package cache

import (
	"context"
	"errors"
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

type fakeClient struct {
	calls   int
	verdict *core.LLMVerdict
	err     error
}

func (f *fakeClient) ScoreSubmission(context.Context, *core.Submission) (*core.LLMVerdict, error) {
	f.calls++
	return f.verdict, f.err
}

func submission(form, message string) *core.Submission {
	return &core.Submission{FormKey: form, Fields: map[string]string{"message": message}}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(zap.NewNop(), 0)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	c.Set(ctx, "k", &core.LLMVerdict{Score: 0.9, Confidence: 0.8, Model: "m"}, time.Minute)
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, 0.9, got.Score)

	got.Score = 0
	again, _ := c.Get(ctx, "k")
	assert.Equal(t, 0.9, again.Score, "callers receive copies")

	now = now.Add(time.Minute)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
	require.NoError(t, c.Cleanup(ctx))
	assert.Equal(t, 0, c.Len())
	c.Stop()
	c.Stop()
}

func TestSQLiteCache(t *testing.T) {
	c, err := NewSQLiteCache(filepath.Join(t.TempDir(), "verdicts.db"), zap.NewNop(), 0)
	require.NoError(t, err)
	defer c.Stop()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Set(ctx, "k", &core.LLMVerdict{Score: 0.2, Confidence: 0.7, Explanation: "looks fine", Model: "m1"}, time.Hour)
	c.Set(ctx, "k", &core.LLMVerdict{Score: 0.95, Confidence: 0.9, Explanation: "casino spam", Model: "m2"}, time.Hour)

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, core.LLMVerdict{Score: 0.95, Confidence: 0.9, Explanation: "casino spam", Model: "m2"}, *got)

	now = now.Add(2 * time.Hour)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
	require.NoError(t, c.Cleanup(ctx))
}

func TestMySQLCache_Queries(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	c := NewMySQLCacheWithDB(db, zap.NewNop(), time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("ON DUPLICATE KEY UPDATE")).
		WithArgs("k", 0.8, 0.6, "spam", "m", now.Add(time.Hour).UnixMilli()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT score, confidence, explanation, model")).
		WithArgs("k", now.UnixMilli()).
		WillReturnRows(sqlmock.NewRows([]string{"score", "confidence", "explanation", "model"}).AddRow(0.8, 0.6, "spam", "m"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT score")).
		WithArgs("missing", now.UnixMilli()).
		WillReturnRows(sqlmock.NewRows([]string{"score", "confidence", "explanation", "model"}))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM llm_verdicts")).
		WithArgs(now.UnixMilli()).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectClose()

	c.Set(ctx, "k", &core.LLMVerdict{Score: 0.8, Confidence: 0.6, Explanation: "spam", Model: "m"}, time.Hour)
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "m", got.Model)
	_, ok = c.Get(ctx, "missing")
	assert.False(t, ok)
	require.NoError(t, c.Cleanup(ctx))
	c.Stop()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKey(t *testing.T) {
	a := Key(submission("contact", "Hello   World"))
	assert.Len(t, a, 16)
	assert.Equal(t, a, Key(submission("contact", "hello world")))
	assert.NotEqual(t, a, Key(submission("newsletter", "hello world")))
	assert.NotEqual(t, a, Key(submission("contact", "hello there")))
}

func TestCachingClient(t *testing.T) {
	inner := &fakeClient{verdict: &core.LLMVerdict{Score: 0.9, Confidence: 0.9, Model: "m"}}
	store := NewMemoryCache(zap.NewNop(), 0)
	client := NewCachingClient(inner, store, time.Hour, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, err := client.ScoreSubmission(ctx, submission("contact", "free casino money"))
		require.NoError(t, err)
		assert.Equal(t, 0.9, v.Score)
	}
	assert.Equal(t, 1, inner.calls)

	_, err := client.ScoreSubmission(ctx, submission("contact", "something else"))
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
	assert.NoError(t, client.Close())
}

func TestCachingClient_ErrorsNotCached(t *testing.T) {
	inner := &fakeClient{err: errors.New("throttled")}
	store := NewMemoryCache(zap.NewNop(), 0)
	client := NewCachingClient(inner, store, time.Hour, zap.NewNop())
	ctx := context.Background()

	_, err := client.ScoreSubmission(ctx, submission("contact", "hi"))
	assert.Error(t, err)
	assert.Equal(t, 0, store.Len())

	inner.err = nil
	inner.verdict = &core.LLMVerdict{Score: 0.1, Confidence: 0.9}
	v, err := client.ScoreSubmission(ctx, submission("contact", "hi"))
	require.NoError(t, err)
	assert.Equal(t, 0.1, v.Score)
	assert.Equal(t, 2, inner.calls)
}
