package reputation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mikey/submission-guard/internal/core"
	"go.uber.org/zap"
)

// SQLiteRepository is a SQLite implementation of core.ReputationRepository
type SQLiteRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteRepository opens the database at dbPath and creates the schema
func NewSQLiteRepository(dbPath string, logger *zap.Logger) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS ip_reputation (
			ip TEXT PRIMARY KEY,
			score REAL NOT NULL,
			violation_count INTEGER NOT NULL,
			blacklisted BOOLEAN NOT NULL,
			last_seen_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_ip_reputation_expires_at ON ip_reputation(expires_at)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &SQLiteRepository{db: db, logger: logger}, nil
}

// Get retrieves the entry for an address
func (r *SQLiteRepository) Get(ctx context.Context, ip string) (*core.IPReputationEntry, error) {
	return queryEntry(ctx, r.db, ip)
}

// Set stores an entry
func (r *SQLiteRepository) Set(ctx context.Context, entry *core.IPReputationEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ip_reputation (ip, score, violation_count, blacklisted, last_seen_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(ip) DO UPDATE SET
			score = excluded.score,
			violation_count = excluded.violation_count,
			blacklisted = excluded.blacklisted,
			last_seen_at = excluded.last_seen_at,
			expires_at = excluded.expires_at
	`, entry.IP, entry.Score, entry.ViolationCount, entry.Blacklisted, toMillis(entry.LastSeenAt), toMillis(entry.ExpiresAt))
	if err != nil {
		return fmt.Errorf("failed to upsert reputation entry: %w", err)
	}
	return nil
}

// Delete removes an entry
func (r *SQLiteRepository) Delete(ctx context.Context, ip string) error {
	return deleteEntry(ctx, r.db, ip)
}

// Cleanup removes expired entries
func (r *SQLiteRepository) Cleanup(ctx context.Context, now time.Time) (int64, error) {
	n, err := cleanupEntries(ctx, r.db, now)
	if err != nil {
		return 0, err
	}
	r.logger.Debug("Cleaned up expired reputation entries", zap.Int64("expired_count", n))
	return n, nil
}

// Stop closes the database connection
func (r *SQLiteRepository) Stop() {
	if err := r.db.Close(); err != nil {
		r.logger.Error("Failed to close SQLite database", zap.Error(err))
	}
}
