package quarantine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mikey/submission-guard/internal/core"
	"go.uber.org/zap"
)

// SQLiteRepository is a SQLite implementation of core.QuarantineRepository
type SQLiteRepository struct {
	sqlRepository
}

// NewSQLiteRepository opens the database at dbPath and creates the schema
func NewSQLiteRepository(dbPath string, logger *zap.Logger) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS quarantine_records (
			id TEXT PRIMARY KEY,
			form_key TEXT NOT NULL,
			outcome TEXT NOT NULL,
			combined_score REAL NOT NULL,
			review_status TEXT NOT NULL,
			reviewed_by TEXT NOT NULL DEFAULT '',
			reviewed_at INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			submission TEXT NOT NULL,
			decision TEXT NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_quarantine_status_created ON quarantine_records(review_status, created_at)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &SQLiteRepository{sqlRepository{db: db, logger: logger}}, nil
}

// Save stores a record
func (r *SQLiteRepository) Save(ctx context.Context, record *core.QuarantineRecord) error {
	return r.save(ctx, record)
}

// Get retrieves a record by ID
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*core.QuarantineRecord, error) {
	return r.get(ctx, id)
}

// List returns records matching filter, newest first
func (r *SQLiteRepository) List(ctx context.Context, filter core.QuarantineFilter) ([]*core.QuarantineRecord, error) {
	return r.list(ctx, filter)
}

// UpdateStatus moves a pending record to status
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, status core.ReviewStatus, reviewer string, at time.Time) error {
	return r.updateStatus(ctx, id, status, reviewer, at)
}

// Stop closes the database connection
func (r *SQLiteRepository) Stop() {
	if err := r.db.Close(); err != nil {
		r.logger.Error("Failed to close SQLite database", zap.Error(err))
	}
}
