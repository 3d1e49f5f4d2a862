package database

import (
	"context"
	"encoding/json"
	"fmt"

	"vitalsync/internal/models"
)

// SaveOperation inserts a freshly enqueued operation.
func (db *DB) SaveOperation(ctx context.Context, op *models.Operation) error {
	payload, err := encodePayload(op.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	query := `INSERT INTO operations (id, type, payload, priority, status, attempts, last_error, last_attempt_at, next_retry_at, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = db.db.ExecContext(ctx, query,
		op.ID,
		string(op.Type),
		payload,
		int(op.Priority),
		string(op.Status),
		op.Attempts,
		op.LastError,
		op.LastAttemptAt,
		op.NextRetryAt,
		op.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save operation: %w", err)
	}
	return nil
}

// UpdateOperation rewrites the mutable fields of a persisted operation.
func (db *DB) UpdateOperation(ctx context.Context, op *models.Operation) error {
	query := `UPDATE operations
              SET status = ?, attempts = ?, last_error = ?, last_attempt_at = ?, next_retry_at = ?
              WHERE id = ?`
	res, err := db.db.ExecContext(ctx, query,
		string(op.Status),
		op.Attempts,
		op.LastError,
		op.LastAttemptAt,
		op.NextRetryAt,
		op.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update operation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("operation %s not found", op.ID)
	}
	return nil
}

// DeleteOperation removes an operation, typically after completion.
func (db *DB) DeleteOperation(ctx context.Context, id string) error {
	if _, err := db.db.ExecContext(ctx, `DELETE FROM operations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete operation: %w", err)
	}
	return nil
}

// LoadOperations returns every persisted operation ordered by
// creation time, oldest first. Called once at startup to repopulate
// the in-memory queue.
func (db *DB) LoadOperations(ctx context.Context) ([]models.Operation, error) {
	query := `SELECT id, type, payload, priority, status, attempts, last_error, last_attempt_at, next_retry_at, created_at
              FROM operations ORDER BY created_at ASC`
	rows, err := db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load operations: %w", err)
	}
	defer rows.Close()

	var ops []models.Operation
	for rows.Next() {
		var (
			op      models.Operation
			opType  string
			payload string
			status  string
		)
		err := rows.Scan(
			&op.ID, &opType, &payload, &op.Priority, &status, &op.Attempts,
			&op.LastError, &op.LastAttemptAt, &op.NextRetryAt, &op.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		op.Type = models.OperationType(opType)
		op.Status = models.OperationStatus(status)
		if err := json.Unmarshal([]byte(payload), &op.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload for %s: %w", op.ID, err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

func encodePayload(payload map[string]interface{}) (string, error) {
	if payload == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
