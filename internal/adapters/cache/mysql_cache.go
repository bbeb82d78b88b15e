package cache

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

const mysqlUpsert = `
	INSERT INTO llm_verdicts (cache_key, score, confidence, explanation, model, expires_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		score = VALUES(score),
		confidence = VALUES(confidence),
		explanation = VALUES(explanation),
		model = VALUES(model),
		expires_at = VALUES(expires_at)`

// MySQLCache is a MySQL implementation of core.VerdictCache
type MySQLCache struct {
	*sqlCache
}

// NewMySQLCache connects to dsn and creates the schema
func NewMySQLCache(dsn string, logger *zap.Logger, cleanupFreq time.Duration) (*MySQLCache, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS llm_verdicts (
			cache_key CHAR(16) PRIMARY KEY,
			score DOUBLE NOT NULL,
			confidence DOUBLE NOT NULL,
			explanation TEXT NOT NULL,
			model VARCHAR(255) NOT NULL,
			expires_at BIGINT NOT NULL,
			INDEX idx_expires_at (expires_at)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	c := NewMySQLCacheWithDB(db, logger, cleanupFreq)
	c.start()
	return c, nil
}

// NewMySQLCacheWithDB wraps an existing connection pool whose schema is already in place.
// The cleanup task is not started.
func NewMySQLCacheWithDB(db *sql.DB, logger *zap.Logger, cleanupFreq time.Duration) *MySQLCache {
	return &MySQLCache{newSQLCache(db, mysqlUpsert, logger, cleanupFreq)}
}
