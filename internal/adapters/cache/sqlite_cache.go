package cache

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const sqliteUpsert = `
	INSERT INTO llm_verdicts (cache_key, score, confidence, explanation, model, expires_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(cache_key) DO UPDATE SET
		score = excluded.score,
		confidence = excluded.confidence,
		explanation = excluded.explanation,
		model = excluded.model,
		expires_at = excluded.expires_at`

// SQLiteCache is a SQLite implementation of core.VerdictCache
type SQLiteCache struct {
	*sqlCache
}

// NewSQLiteCache opens the database at dbPath and creates the schema
func NewSQLiteCache(dbPath string, logger *zap.Logger, cleanupFreq time.Duration) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS llm_verdicts (
			cache_key TEXT PRIMARY KEY,
			score REAL NOT NULL,
			confidence REAL NOT NULL,
			explanation TEXT NOT NULL,
			model TEXT NOT NULL,
			expires_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_llm_verdicts_expires_at ON llm_verdicts(expires_at)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	c := &SQLiteCache{newSQLCache(db, sqliteUpsert, logger, cleanupFreq)}
	c.start()
	return c, nil
}
