package repository

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"vitalsync/internal/healthsync"
	"vitalsync/internal/models"
)

const recoveryInterval = time.Minute

// FailoverSyncStateRepository serves reads from a primary store and
// degrades to a fallback when the primary errors. The primary is
// re-probed after a cooldown so a recovered Redis comes back without
// a restart.
type FailoverSyncStateRepository struct {
	primary   healthsync.StateStore
	fallback  healthsync.StateStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverSyncStateRepository(primary, fallback healthsync.StateStore, logger *zerolog.Logger) *FailoverSyncStateRepository {
	return &FailoverSyncStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverSyncStateRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary sync-state repository failed, falling back")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverSyncStateRepository) shouldRetryPrimary() bool {
	return time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverSyncStateRepository) LastSync(ctx context.Context, category models.SampleCategory) (time.Time, error) {
	if !r.isDown.Load() {
		t, err := r.primary.LastSync(ctx, category)
		if err == nil {
			return t, nil
		}
		r.markDown(err)
	} else if r.shouldRetryPrimary() {
		t, err := r.primary.LastSync(ctx, category)
		if err == nil {
			r.isDown.Store(false)
			return t, nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.LastSync(ctx, category)
}

func (r *FailoverSyncStateRepository) SetLastSync(ctx context.Context, category models.SampleCategory, t time.Time) error {
	if !r.isDown.Load() {
		err := r.primary.SetLastSync(ctx, category, t)
		if err == nil {
			// keep the fallback warm so a later failover does not
			// lose the marker
			_ = r.fallback.SetLastSync(ctx, category, t)
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.SetLastSync(ctx, category, t)
}
