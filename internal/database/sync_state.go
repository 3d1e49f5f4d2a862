package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vitalsync/internal/models"
)

// LastSync returns the last successful sync time for a category, or
// the zero time when the category has never synced.
func (db *DB) LastSync(ctx context.Context, category models.SampleCategory) (time.Time, error) {
	var t time.Time
	err := db.db.QueryRowContext(ctx,
		`SELECT last_sync_at FROM sync_state WHERE category = ?`, string(category),
	).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read sync state: %w", err)
	}
	return t, nil
}

// SetLastSync records a successful sync for a category.
func (db *DB) SetLastSync(ctx context.Context, category models.SampleCategory, t time.Time) error {
	query := `INSERT INTO sync_state (category, last_sync_at) VALUES (?, ?)
              ON CONFLICT(category) DO UPDATE SET last_sync_at = excluded.last_sync_at`
	if _, err := db.db.ExecContext(ctx, query, string(category), t); err != nil {
		return fmt.Errorf("failed to write sync state: %w", err)
	}
	return nil
}
