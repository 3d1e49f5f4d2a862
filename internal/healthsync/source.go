package healthsync

import (
	"context"
	"time"

	"vitalsync/internal/models"
)

// DataSource is the device health store capability. Implementations
// bridge to the platform API; the core never touches it directly.
type DataSource interface {
	IsAvailable() bool
	RequestAuthorization(ctx context.Context) error
	FetchSamples(ctx context.Context, category models.SampleCategory, r models.DateRange) ([]models.RawSample, error)
	FetchWorkouts(ctx context.Context, r models.DateRange) ([]models.RawWorkout, error)
}

// StateStore persists the last successful sync time per category.
// The sqlite store and the repository cache both satisfy it.
type StateStore interface {
	LastSync(ctx context.Context, category models.SampleCategory) (time.Time, error)
	SetLastSync(ctx context.Context, category models.SampleCategory, t time.Time) error
}
