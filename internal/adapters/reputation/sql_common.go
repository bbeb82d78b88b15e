package reputation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mikey/submission-guard/internal/core"
)

const selectEntry = `
	SELECT ip, score, violation_count, blacklisted, last_seen_at, expires_at
	FROM ip_reputation
	WHERE ip = ?`

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func queryEntry(ctx context.Context, db *sql.DB, ip string) (*core.IPReputationEntry, error) {
	var (
		entry     core.IPReputationEntry
		lastSeen  int64
		expiresAt int64
	)
	err := db.QueryRowContext(ctx, selectEntry, ip).
		Scan(&entry.IP, &entry.Score, &entry.ViolationCount, &entry.Blacklisted, &lastSeen, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query reputation: %w", err)
	}
	entry.LastSeenAt = fromMillis(lastSeen)
	entry.ExpiresAt = fromMillis(expiresAt)
	return &entry, nil
}

func deleteEntry(ctx context.Context, db *sql.DB, ip string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM ip_reputation WHERE ip = ?`, ip); err != nil {
		return fmt.Errorf("failed to delete reputation entry: %w", err)
	}
	return nil
}

func cleanupEntries(ctx context.Context, db *sql.DB, now time.Time) (int64, error) {
	result, err := db.ExecContext(ctx, `
		DELETE FROM ip_reputation
		WHERE expires_at > 0 AND expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up expired entries: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected during cleanup: %w", err)
	}
	return n, nil
}
