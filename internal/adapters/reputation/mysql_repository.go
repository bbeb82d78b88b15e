package reputation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/mikey/submission-guard/internal/core"
	"go.uber.org/zap"
)

// MySQLRepository is a MySQL implementation of core.ReputationRepository
type MySQLRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMySQLRepository connects to dsn and creates the schema
func NewMySQLRepository(dsn string, logger *zap.Logger) (*MySQLRepository, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS ip_reputation (
			ip VARCHAR(64) PRIMARY KEY,
			score DOUBLE NOT NULL,
			violation_count INT NOT NULL,
			blacklisted BOOLEAN NOT NULL,
			last_seen_at BIGINT NOT NULL,
			expires_at BIGINT NOT NULL,
			INDEX idx_expires_at (expires_at)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return NewMySQLRepositoryWithDB(db, logger), nil
}

// NewMySQLRepositoryWithDB wraps an existing connection pool whose schema is already in place
func NewMySQLRepositoryWithDB(db *sql.DB, logger *zap.Logger) *MySQLRepository {
	return &MySQLRepository{db: db, logger: logger}
}

// Get retrieves the entry for an address
func (r *MySQLRepository) Get(ctx context.Context, ip string) (*core.IPReputationEntry, error) {
	return queryEntry(ctx, r.db, ip)
}

// Set stores an entry
func (r *MySQLRepository) Set(ctx context.Context, entry *core.IPReputationEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ip_reputation (ip, score, violation_count, blacklisted, last_seen_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			score = VALUES(score),
			violation_count = VALUES(violation_count),
			blacklisted = VALUES(blacklisted),
			last_seen_at = VALUES(last_seen_at),
			expires_at = VALUES(expires_at)
	`, entry.IP, entry.Score, entry.ViolationCount, entry.Blacklisted, toMillis(entry.LastSeenAt), toMillis(entry.ExpiresAt))
	if err != nil {
		return fmt.Errorf("failed to upsert reputation entry: %w", err)
	}
	return nil
}

// Delete removes an entry
func (r *MySQLRepository) Delete(ctx context.Context, ip string) error {
	return deleteEntry(ctx, r.db, ip)
}

// Cleanup removes expired entries
func (r *MySQLRepository) Cleanup(ctx context.Context, now time.Time) (int64, error) {
	n, err := cleanupEntries(ctx, r.db, now)
	if err != nil {
		return 0, err
	}
	r.logger.Debug("Cleaned up expired reputation entries", zap.Int64("expired_count", n))
	return n, nil
}

// Stop closes the database connection
func (r *MySQLRepository) Stop() {
	if err := r.db.Close(); err != nil {
		r.logger.Error("Failed to close MySQL database", zap.Error(err))
	}
}
