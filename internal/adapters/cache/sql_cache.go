package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mikey/submission-guard/internal/core"
	"go.uber.org/zap"
)

// sqlCache holds the queries shared by the SQLite and MySQL caches. Timestamps
// are stored as unix milliseconds so both dialects compare them the same way.
type sqlCache struct {
	db          *sql.DB
	logger      *zap.Logger
	upsert      string
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
	now         func() time.Time
}

func newSQLCache(db *sql.DB, upsert string, logger *zap.Logger, cleanupFreq time.Duration) *sqlCache {
	return &sqlCache{
		db:          db,
		logger:      logger,
		upsert:      upsert,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
		now:         time.Now,
	}
}

func (c *sqlCache) start() {
	if c.cleanupFreq > 0 {
		go runCleanup(c, c.cleanupFreq, c.stopCh, c.logger)
	}
}

// Get retrieves a live verdict
func (c *sqlCache) Get(ctx context.Context, key string) (*core.LLMVerdict, bool) {
	var v core.LLMVerdict
	err := c.db.QueryRowContext(ctx, `
		SELECT score, confidence, explanation, model
		FROM llm_verdicts
		WHERE cache_key = ? AND expires_at > ?`, key, c.now().UnixMilli()).
		Scan(&v.Score, &v.Confidence, &v.Explanation, &v.Model)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.logger.Error("Failed to query verdict cache", zap.Error(err))
		}
		return nil, false
	}
	return &v, true
}

// Set stores a verdict
func (c *sqlCache) Set(ctx context.Context, key string, verdict *core.LLMVerdict, ttl time.Duration) {
	_, err := c.db.ExecContext(ctx, c.upsert,
		key, verdict.Score, verdict.Confidence, verdict.Explanation, verdict.Model, c.now().Add(ttl).UnixMilli())
	if err != nil {
		c.logger.Error("Failed to store verdict", zap.Error(err))
	}
}

// Cleanup removes expired verdicts
func (c *sqlCache) Cleanup(ctx context.Context) error {
	result, err := c.db.ExecContext(ctx, `DELETE FROM llm_verdicts WHERE expires_at <= ?`, c.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to clean up expired verdicts: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		c.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
	} else {
		c.logger.Debug("Cleaned up expired verdicts", zap.Int64("expired_count", rowsAffected))
	}
	return nil
}

// Stop stops the background cleanup task and closes the database connection
func (c *sqlCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close verdict cache database", zap.Error(err))
		}
	})
}
