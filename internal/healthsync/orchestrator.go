package healthsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vitalsync/internal/events"
	"vitalsync/internal/metrics"
	"vitalsync/internal/models"
)

// State is the sync orchestrator's externally visible state.
type State string

const (
	StateIdle           State = "idle"
	StateSyncing        State = "syncing"
	StatePartialSuccess State = "partial_success"
	StateFailed         State = "failed"
)

// ErrSyncInProgress is returned when a cycle is requested while one
// is already running.
var ErrSyncInProgress = errors.New("sync already in progress")

// ErrAllCategoriesFailed is returned when no category succeeded.
var ErrAllCategoriesFailed = errors.New("sync failed for all categories")

const defaultLookback = 30 * 24 * time.Hour

// OrchestratorOptions wires the orchestrator's collaborators.
type OrchestratorOptions struct {
	Source     DataSource
	Uploader   *Uploader
	States     StateStore
	Bus        *events.Bus
	Logger     *zerolog.Logger
	SourceName string
	Lookback   time.Duration
	Categories []models.SampleCategory
}

// Orchestrator drives full and incremental sync cycles across metric
// categories, reporting progress and aggregating per-category errors
// instead of aborting the whole cycle.
type Orchestrator struct {
	source     DataSource
	converter  *Converter
	uploader   *Uploader
	states     StateStore
	bus        *events.Bus
	logger     zerolog.Logger
	lookback   time.Duration
	categories []models.SampleCategory

	progress Progress
	now      func() time.Time

	mu      sync.Mutex
	state   State
	syncing bool
	errs    []models.SyncError
	records []models.MetricRecord
}

func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "healthsync").Logger()
	}
	lookback := opts.Lookback
	if lookback <= 0 {
		lookback = defaultLookback
	}
	categories := opts.Categories
	if len(categories) == 0 {
		categories = models.AllCategories
	}
	return &Orchestrator{
		source:     opts.Source,
		converter:  NewConverter(opts.SourceName),
		uploader:   opts.Uploader,
		states:     opts.States,
		bus:        opts.Bus,
		logger:     log,
		lookback:   lookback,
		categories: categories,
		now:        time.Now,
		state:      StateIdle,
	}
}

// FullSync runs one cycle across every enabled category, pulling
// samples since each category's last successful sync.
func (o *Orchestrator) FullSync(ctx context.Context) error {
	return o.run(ctx, o.categories, nil)
}

// SyncDateRange backfills an explicit window across every enabled
// category. Last-sync markers are left untouched so the next
// incremental cycle is unaffected.
func (o *Orchestrator) SyncDateRange(ctx context.Context, from, to time.Time) error {
	r := models.DateRange{From: from, To: to}
	return o.run(ctx, o.categories, &r)
}

// Category-specific entry points let callers sync a subset without
// running the full cycle.

func (o *Orchestrator) SyncSteps(ctx context.Context) error {
	return o.run(ctx, []models.SampleCategory{models.CategorySteps}, nil)
}

func (o *Orchestrator) SyncHeartRate(ctx context.Context) error {
	return o.run(ctx, []models.SampleCategory{models.CategoryHeartRate}, nil)
}

func (o *Orchestrator) SyncSleep(ctx context.Context) error {
	return o.run(ctx, []models.SampleCategory{models.CategorySleep}, nil)
}

func (o *Orchestrator) SyncWorkouts(ctx context.Context) error {
	return o.run(ctx, []models.SampleCategory{models.CategoryWorkouts}, nil)
}

func (o *Orchestrator) run(ctx context.Context, categories []models.SampleCategory, fixed *models.DateRange) error {
	if err := o.begin(); err != nil {
		return err
	}
	started := o.now()
	o.bus.Publish(&events.Event{Type: events.EventSyncStarted})

	if !o.source.IsAvailable() {
		o.finish(StateFailed, started, 0)
		return fmt.Errorf("health data source unavailable")
	}
	if err := o.source.RequestAuthorization(ctx); err != nil {
		o.finish(StateFailed, started, 0)
		return fmt.Errorf("health data authorization: %w", err)
	}

	var succeeded, failed, uploadedTotal int
	for _, category := range categories {
		uploaded, err := o.syncCategory(ctx, category, fixed)
		uploadedTotal += uploaded
		if err != nil {
			failed++
			o.appendErrors(models.SyncError{
				DataType:  string(category),
				Message:   err.Error(),
				Timestamp: o.now(),
			})
			o.logger.Error().Str("category", string(category)).Err(err).Msg("category sync failed")
			continue
		}
		succeeded++
	}

	state := StateIdle
	switch {
	case failed > 0 && succeeded == 0:
		state = StateFailed
	case failed > 0 || o.errorCount() > 0:
		state = StatePartialSuccess
	}
	o.finish(state, started, uploadedTotal)

	if state == StateFailed {
		return ErrAllCategoriesFailed
	}
	return nil
}

// syncCategory fetches, converts and uploads one category. The
// last-sync marker moves only when every batch was acknowledged, so
// an incomplete upload is re-fetched next cycle (at-least-once).
func (o *Orchestrator) syncCategory(ctx context.Context, category models.SampleCategory, fixed *models.DateRange) (int, error) {
	r, incremental, err := o.rangeFor(ctx, category, fixed)
	if err != nil {
		return 0, err
	}

	records, err := o.fetchConvert(ctx, category, r)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		o.logger.Debug().Str("category", string(category)).Msg("no samples in range")
		if incremental {
			o.markSynced(ctx, category, r.To)
		}
		return 0, nil
	}

	o.retainRecords(records)
	o.progress.AddTotal(o.uploader.Batches(len(records)))
	uploaded, chunkErrs := o.uploader.Upload(ctx, category, records, &o.progress)
	o.appendErrors(chunkErrs...)
	o.publishProgress()

	if uploaded == 0 {
		return 0, fmt.Errorf("all batches failed")
	}
	if incremental && len(chunkErrs) == 0 {
		o.markSynced(ctx, category, r.To)
	}
	return uploaded, nil
}

func (o *Orchestrator) rangeFor(ctx context.Context, category models.SampleCategory, fixed *models.DateRange) (models.DateRange, bool, error) {
	if fixed != nil {
		return *fixed, false, nil
	}
	last, err := o.states.LastSync(ctx, category)
	if err != nil {
		return models.DateRange{}, false, fmt.Errorf("read last sync: %w", err)
	}
	now := o.now()
	from := last
	if from.IsZero() {
		from = now.Add(-o.lookback)
	}
	return models.DateRange{From: from, To: now}, true, nil
}

func (o *Orchestrator) fetchConvert(ctx context.Context, category models.SampleCategory, r models.DateRange) ([]models.MetricRecord, error) {
	if category == models.CategoryWorkouts {
		workouts, err := o.source.FetchWorkouts(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("fetch workouts: %w", err)
		}
		return o.converter.ConvertWorkouts(workouts), nil
	}

	samples, err := o.source.FetchSamples(ctx, category, r)
	if err != nil {
		return nil, fmt.Errorf("fetch samples: %w", err)
	}
	return o.converter.Convert(category, samples, r)
}

func (o *Orchestrator) markSynced(ctx context.Context, category models.SampleCategory, t time.Time) {
	if err := o.states.SetLastSync(ctx, category, t); err != nil {
		o.logger.Error().Str("category", string(category)).Err(err).Msg("persist last sync failed")
	}
}

func (o *Orchestrator) begin() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.syncing {
		return ErrSyncInProgress
	}
	o.syncing = true
	o.state = StateSyncing
	o.errs = nil
	o.records = nil
	o.progress.Reset()
	return nil
}

func (o *Orchestrator) finish(state State, started time.Time, uploaded int) {
	o.mu.Lock()
	o.syncing = false
	o.state = state
	errCount := len(o.errs)
	o.mu.Unlock()

	metrics.IncSyncCycle(string(state))
	_ = o.bus.PublishJSON(events.EventSyncFinished, events.SyncFinishedPayload{
		State:     string(state),
		Errors:    errCount,
		Uploaded:  uploaded,
		DurationS: int64(o.now().Sub(started).Seconds()),
	})
}

func (o *Orchestrator) errorCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.errs)
}

func (o *Orchestrator) retainRecords(records []models.MetricRecord) {
	o.mu.Lock()
	o.records = append(o.records, records...)
	o.mu.Unlock()
}

func (o *Orchestrator) appendErrors(errs ...models.SyncError) {
	if len(errs) == 0 {
		return
	}
	o.mu.Lock()
	o.errs = append(o.errs, errs...)
	o.mu.Unlock()
}

func (o *Orchestrator) publishProgress() {
	snapshot := o.progress.Snapshot()
	_ = o.bus.PublishJSON(events.EventSyncProgress, events.ProgressPayload{
		Total:     snapshot.TotalOperations,
		Completed: snapshot.CompletedOperations,
		Fraction:  snapshot.Fraction(),
	})
}

// State returns the current orchestrator state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Errors returns the sync errors accumulated by the last cycle.
func (o *Orchestrator) Errors() []models.SyncError {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.SyncError(nil), o.errs...)
}

// Progress returns the progress of the current or last cycle.
func (o *Orchestrator) Progress() models.SyncProgress {
	return o.progress.Snapshot()
}

// LastRecords returns the canonical records produced by the last
// cycle, for diagnostic reports.
func (o *Orchestrator) LastRecords() []models.MetricRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.MetricRecord(nil), o.records...)
}
