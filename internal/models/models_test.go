package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOperation(t *testing.T) {
	op := NewOperation(OpHealthUpload, PriorityHigh, map[string]interface{}{"records": 3})

	require.NotEmpty(t, op.ID)
	assert.Equal(t, StatusPending, op.Status)
	assert.Equal(t, 0, op.Attempts)
	assert.False(t, op.CreatedAt.IsZero())

	other := NewOperation(OpHealthUpload, PriorityHigh, nil)
	assert.NotEqual(t, op.ID, other.ID)
}

func TestOperationDue(t *testing.T) {
	now := time.Now()
	op := NewOperation(OpProfileUpdate, PriorityNormal, nil)
	assert.True(t, op.Due(now))

	future := now.Add(time.Minute)
	op.NextRetryAt = &future
	assert.False(t, op.Due(now))
	assert.True(t, op.Due(future))
}

func TestPayloadSize(t *testing.T) {
	op := NewOperation(OpProfileUpdate, PriorityNormal, nil)
	assert.Equal(t, 0, op.PayloadSize())

	op.Payload = map[string]interface{}{"name": "test"}
	assert.Greater(t, op.PayloadSize(), 0)
}

func TestProgressFraction(t *testing.T) {
	tests := []struct {
		name     string
		progress SyncProgress
		want     float64
	}{
		{"empty", SyncProgress{}, 0},
		{"half", SyncProgress{TotalOperations: 10, CompletedOperations: 5}, 0.5},
		{"full", SyncProgress{TotalOperations: 4, CompletedOperations: 4}, 1},
		{"over", SyncProgress{TotalOperations: 2, CompletedOperations: 5}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.progress.Fraction(), 1e-9)
		})
	}
}

func TestMetricUnitsCoverAllTypes(t *testing.T) {
	for _, mt := range []MetricType{
		MetricSteps, MetricHeartRate, MetricSleepDuration, MetricSleepCore,
		MetricSleepREM, MetricSleepDeep, MetricSleepLight,
		MetricActiveEnergy, MetricExerciseMinutes,
	} {
		assert.NotEmpty(t, MetricUnits[mt], "unit missing for %s", mt)
	}
}
