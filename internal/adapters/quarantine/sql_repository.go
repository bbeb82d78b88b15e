package quarantine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mikey/submission-guard/internal/core"
	"go.uber.org/zap"
)

const selectColumns = `SELECT id, review_status, reviewed_by, reviewed_at, created_at, submission, decision FROM quarantine_records`

// sqlRepository holds the queries shared by the SQLite and MySQL repositories
type sqlRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func (r *sqlRepository) save(ctx context.Context, record *core.QuarantineRecord) error {
	submission, err := json.Marshal(record.Submission)
	if err != nil {
		return fmt.Errorf("failed to encode submission: %w", err)
	}
	decision, err := json.Marshal(record.Decision)
	if err != nil {
		return fmt.Errorf("failed to encode decision: %w", err)
	}

	var reviewedAt int64
	if record.ReviewedAt != nil {
		reviewedAt = record.ReviewedAt.UnixMilli()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO quarantine_records
			(id, form_key, outcome, combined_score, review_status, reviewed_by, reviewed_at, created_at, submission, decision)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.Submission.FormKey,
		string(record.Decision.Outcome),
		record.Decision.CombinedScore,
		string(record.ReviewStatus),
		record.ReviewedBy,
		reviewedAt,
		record.CreatedAt.UnixMilli(),
		string(submission),
		string(decision),
	)
	if err != nil {
		return fmt.Errorf("failed to insert quarantine record: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*core.QuarantineRecord, error) {
	var (
		record     core.QuarantineRecord
		status     string
		reviewedAt int64
		createdAt  int64
		submission string
		decision   string
	)
	if err := row.Scan(&record.ID, &status, &record.ReviewedBy, &reviewedAt, &createdAt, &submission, &decision); err != nil {
		return nil, err
	}
	record.ReviewStatus = core.ReviewStatus(status)
	record.CreatedAt = time.UnixMilli(createdAt).UTC()
	if reviewedAt != 0 {
		at := time.UnixMilli(reviewedAt).UTC()
		record.ReviewedAt = &at
	}
	if err := json.Unmarshal([]byte(submission), &record.Submission); err != nil {
		return nil, fmt.Errorf("failed to decode submission: %w", err)
	}
	if err := json.Unmarshal([]byte(decision), &record.Decision); err != nil {
		return nil, fmt.Errorf("failed to decode decision: %w", err)
	}
	return &record, nil
}

func (r *sqlRepository) get(ctx context.Context, id string) (*core.QuarantineRecord, error) {
	record, err := scanRecord(r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query quarantine record: %w", err)
	}
	return record, nil
}

// buildListQuery renders the filtered listing query and its arguments
func buildListQuery(filter core.QuarantineFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "review_status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.FormKey != "" {
		where = append(where, "form_key = ?")
		args = append(args, filter.FormKey)
	}
	if filter.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, string(filter.Outcome))
	}

	query := selectColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	return query, args
}

func (r *sqlRepository) list(ctx context.Context, filter core.QuarantineFilter) ([]*core.QuarantineRecord, error) {
	query, args := buildListQuery(filter)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list quarantine records: %w", err)
	}
	defer rows.Close()

	records := []*core.QuarantineRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quarantine record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quarantine records: %w", err)
	}
	return records, nil
}

func (r *sqlRepository) updateStatus(ctx context.Context, id string, status core.ReviewStatus, reviewer string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE quarantine_records
		SET review_status = ?, reviewed_by = ?, reviewed_at = ?
		WHERE id = ? AND review_status = ?`,
		string(status), reviewer, at.UnixMilli(), id, string(core.ReviewPending))
	if err != nil {
		return fmt.Errorf("failed to update quarantine record: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var current string
	err = r.db.QueryRowContext(ctx, `SELECT review_status FROM quarantine_records WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to query quarantine record: %w", err)
	}
	return core.ErrAlreadyReviewed
}
