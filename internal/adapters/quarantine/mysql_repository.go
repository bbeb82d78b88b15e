package quarantine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/mikey/submission-guard/internal/core"
	"go.uber.org/zap"
)

// MySQLRepository is a MySQL implementation of core.QuarantineRepository
type MySQLRepository struct {
	sqlRepository
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
		CREATE TABLE IF NOT EXISTS quarantine_records (
			id VARCHAR(64) PRIMARY KEY,
			form_key VARCHAR(255) NOT NULL,
			outcome VARCHAR(16) NOT NULL,
			combined_score DOUBLE NOT NULL,
			review_status VARCHAR(16) NOT NULL,
			reviewed_by VARCHAR(255) NOT NULL DEFAULT '',
			reviewed_at BIGINT NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL,
			submission MEDIUMTEXT NOT NULL,
			decision MEDIUMTEXT NOT NULL,
			INDEX idx_status_created (review_status, created_at)
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
	return &MySQLRepository{sqlRepository{db: db, logger: logger}}
}

// Save stores a record
func (r *MySQLRepository) Save(ctx context.Context, record *core.QuarantineRecord) error {
	return r.save(ctx, record)
}

// Get retrieves a record by ID
func (r *MySQLRepository) Get(ctx context.Context, id string) (*core.QuarantineRecord, error) {
	return r.get(ctx, id)
}

// List returns records matching filter, newest first
func (r *MySQLRepository) List(ctx context.Context, filter core.QuarantineFilter) ([]*core.QuarantineRecord, error) {
	return r.list(ctx, filter)
}

// UpdateStatus moves a pending record to status
func (r *MySQLRepository) UpdateStatus(ctx context.Context, id string, status core.ReviewStatus, reviewer string, at time.Time) error {
	return r.updateStatus(ctx, id, status, reviewer, at)
}

// Stop closes the database connection
func (r *MySQLRepository) Stop() {
	if err := r.db.Close(); err != nil {
		r.logger.Error("Failed to close MySQL database", zap.Error(err))
	}
}
