package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitalsync/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOperationCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	op := models.NewOperation(models.OpHealthUpload, models.PriorityHigh, map[string]interface{}{
		"records": []interface{}{map[string]interface{}{"type": "steps", "value": 1200.0}},
	})

	// Save
	require.NoError(t, db.SaveOperation(ctx, op))

	// Load
	ops, err := db.LoadOperations(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, op.ID, ops[0].ID)
	assert.Equal(t, models.OpHealthUpload, ops[0].Type)
	assert.Equal(t, models.PriorityHigh, ops[0].Priority)
	assert.Equal(t, models.StatusPending, ops[0].Status)
	assert.NotEmpty(t, ops[0].Payload)

	// Update
	errMsg := "upstream timeout"
	now := time.Now()
	next := now.Add(time.Minute)
	op.Attempts = 1
	op.LastError = &errMsg
	op.LastAttemptAt = &now
	op.NextRetryAt = &next
	require.NoError(t, db.UpdateOperation(ctx, op))

	ops, err = db.LoadOperations(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, 1, ops[0].Attempts)
	require.NotNil(t, ops[0].LastError)
	assert.Equal(t, errMsg, *ops[0].LastError)
	require.NotNil(t, ops[0].NextRetryAt)

	// Delete
	require.NoError(t, db.DeleteOperation(ctx, op.ID))
	ops, err = db.LoadOperations(ctx)
	require.NoError(t, err)
	assert.Len(t, ops, 0)
}

func TestUpdateMissingOperation(t *testing.T) {
	db := setupTestDB(t)
	op := models.NewOperation(models.OpProfileUpdate, models.PriorityNormal, nil)
	err := db.UpdateOperation(context.Background(), op)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadOperationsOrder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		op := models.NewOperation(models.OpSyncData, models.PriorityNormal, nil)
		op.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, db.SaveOperation(ctx, op))
	}

	ops, err := db.LoadOperations(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.True(t, ops[0].CreatedAt.Before(ops[1].CreatedAt))
	assert.True(t, ops[1].CreatedAt.Before(ops[2].CreatedAt))
}

func TestSyncState(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// Never synced: zero time, no error.
	last, err := db.LastSync(ctx, models.CategorySteps)
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	now := time.Now().Truncate(time.Second)
	require.NoError(t, db.SetLastSync(ctx, models.CategorySteps, now))

	last, err = db.LastSync(ctx, models.CategorySteps)
	require.NoError(t, err)
	assert.WithinDuration(t, now, last, time.Second)

	// Upsert overwrites.
	later := now.Add(time.Hour)
	require.NoError(t, db.SetLastSync(ctx, models.CategorySteps, later))
	last, err = db.LastSync(ctx, models.CategorySteps)
	require.NoError(t, err)
	assert.WithinDuration(t, later, last, time.Second)

	// Categories are independent.
	last, err = db.LastSync(ctx, models.CategorySleep)
	require.NoError(t, err)
	assert.True(t, last.IsZero())
}
