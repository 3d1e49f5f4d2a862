package repository

import (
	"context"
	"sync"
	"time"

	"vitalsync/internal/models"
)

// MemorySyncStateRepository keeps last-sync markers in process memory.
// Used as the failover fallback and in tests.
type MemorySyncStateRepository struct {
	markers sync.Map
}

func NewMemorySyncStateRepository() *MemorySyncStateRepository {
	return &MemorySyncStateRepository{}
}

func (r *MemorySyncStateRepository) LastSync(_ context.Context, category models.SampleCategory) (time.Time, error) {
	val, ok := r.markers.Load(category)
	if !ok {
		return time.Time{}, nil
	}
	return val.(time.Time), nil
}

func (r *MemorySyncStateRepository) SetLastSync(_ context.Context, category models.SampleCategory, t time.Time) error {
	r.markers.Store(category, t)
	return nil
}
