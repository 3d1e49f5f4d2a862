package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"vitalsync/internal/healthsync"
)

// Syncer is the sync entry point the scheduler drives.
type Syncer interface {
	FullSync(ctx context.Context) error
}

// Scheduler triggers periodic full sync cycles. An overlapping tick
// is skipped, not queued: the orchestrator is single-flight and the
// next tick will pick up whatever the running cycle missed.
type Scheduler struct {
	cron   *cron.Cron
	syncer Syncer
	logger zerolog.Logger
}

func New(syncer Syncer, logger *zerolog.Logger) *Scheduler {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "scheduler").Logger()
	}
	return &Scheduler{
		cron:   cron.New(),
		syncer: syncer,
		logger: log,
	}
}

// Schedule registers a cron expression for periodic full syncs.
func (s *Scheduler) Schedule(ctx context.Context, spec string) error {
	_, err := s.cron.AddFunc(spec, func() { s.runOnce(ctx) })
	if err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", spec, err)
	}
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	s.logger.Info().Msg("scheduled sync starting")
	if err := s.syncer.FullSync(ctx); err != nil {
		if errors.Is(err, healthsync.ErrSyncInProgress) {
			s.logger.Info().Msg("sync already running, tick skipped")
			return
		}
		s.logger.Error().Err(err).Msg("scheduled sync failed")
		return
	}
	s.logger.Info().Msg("scheduled sync finished")
}

// Start launches the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron loop and waits for a running job to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
