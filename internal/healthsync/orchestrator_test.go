package healthsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitalsync/internal/events"
	"vitalsync/internal/models"
	"vitalsync/internal/queue"
)

type fakeSource struct {
	available bool
	authErr   error
	samples   map[models.SampleCategory][]models.RawSample
	workouts  []models.RawWorkout
	fetchErr  map[models.SampleCategory]error

	mu     sync.Mutex
	ranges map[models.SampleCategory]models.DateRange
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		available: true,
		samples:   make(map[models.SampleCategory][]models.RawSample),
		fetchErr:  make(map[models.SampleCategory]error),
		ranges:    make(map[models.SampleCategory]models.DateRange),
	}
}

func (s *fakeSource) IsAvailable() bool { return s.available }

func (s *fakeSource) RequestAuthorization(context.Context) error { return s.authErr }

func (s *fakeSource) FetchSamples(_ context.Context, category models.SampleCategory, r models.DateRange) ([]models.RawSample, error) {
	s.mu.Lock()
	s.ranges[category] = r
	s.mu.Unlock()
	if err := s.fetchErr[category]; err != nil {
		return nil, err
	}
	return s.samples[category], nil
}

func (s *fakeSource) FetchWorkouts(_ context.Context, r models.DateRange) ([]models.RawWorkout, error) {
	s.mu.Lock()
	s.ranges[models.CategoryWorkouts] = r
	s.mu.Unlock()
	if err := s.fetchErr[models.CategoryWorkouts]; err != nil {
		return nil, err
	}
	return s.workouts, nil
}

func (s *fakeSource) rangeFor(category models.SampleCategory) models.DateRange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ranges[category]
}

type memStateStore struct {
	mu   sync.Mutex
	last map[models.SampleCategory]time.Time
}

func newMemStateStore() *memStateStore {
	return &memStateStore{last: make(map[models.SampleCategory]time.Time)}
}

func (s *memStateStore) LastSync(_ context.Context, category models.SampleCategory) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[category], nil
}

func (s *memStateStore) SetLastSync(_ context.Context, category models.SampleCategory, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[category] = t
	return nil
}

type orchestratorEnv struct {
	orchestrator *Orchestrator
	source       *fakeSource
	states       *memStateStore
	api          *fakeAPI
	bus          *events.Bus
	now          time.Time
}

func newOrchestratorEnv(t *testing.T, categories ...models.SampleCategory) *orchestratorEnv {
	t.Helper()
	env := &orchestratorEnv{
		source: newFakeSource(),
		states: newMemStateStore(),
		api:    &fakeAPI{},
		bus:    events.NewBus(),
		now:    time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC),
	}
	uploader, _ := newTestUploader(env.api, 100, 3)
	env.orchestrator = NewOrchestrator(OrchestratorOptions{
		Source:     env.source,
		Uploader:   uploader,
		States:     env.states,
		Bus:        env.bus,
		SourceName: "device",
		Categories: categories,
	})
	env.orchestrator.now = func() time.Time { return env.now }
	return env
}

func TestFullSyncHappyPath(t *testing.T) {
	env := newOrchestratorEnv(t)
	env.source.samples[models.CategorySteps] = []models.RawSample{{Value: 5000}}
	env.source.samples[models.CategoryHeartRate] = []models.RawSample{{Value: 70, Start: env.now.Add(-time.Hour)}}
	env.source.workouts = []models.RawWorkout{
		{Type: "running", Start: env.now.Add(-2 * time.Hour), End: env.now.Add(-time.Hour), ActiveEnergy: 300},
	}

	err := env.orchestrator.FullSync(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StateIdle, env.orchestrator.State())
	assert.Empty(t, env.orchestrator.Errors())
	for _, category := range models.AllCategories {
		last, _ := env.states.LastSync(context.Background(), category)
		assert.Equal(t, env.now, last, category)
	}
}

func TestFullSyncUsesLookbackOnFirstRun(t *testing.T) {
	env := newOrchestratorEnv(t, models.CategorySteps)

	require.NoError(t, env.orchestrator.FullSync(context.Background()))

	r := env.source.rangeFor(models.CategorySteps)
	assert.Equal(t, env.now.Add(-30*24*time.Hour), r.From)
	assert.Equal(t, env.now, r.To)
}

func TestFullSyncResumesFromLastSync(t *testing.T) {
	env := newOrchestratorEnv(t, models.CategorySteps)
	marker := env.now.Add(-6 * time.Hour)
	require.NoError(t, env.states.SetLastSync(context.Background(), models.CategorySteps, marker))

	require.NoError(t, env.orchestrator.FullSync(context.Background()))

	r := env.source.rangeFor(models.CategorySteps)
	assert.Equal(t, marker, r.From)
	assert.Equal(t, env.now, r.To)
}

func TestFullSyncPartialSuccess(t *testing.T) {
	env := newOrchestratorEnv(t, models.CategorySteps, models.CategoryHeartRate)
	env.source.samples[models.CategorySteps] = []models.RawSample{{Value: 100}}
	env.source.fetchErr[models.CategoryHeartRate] = errors.New("sensor offline")

	err := env.orchestrator.FullSync(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StatePartialSuccess, env.orchestrator.State())
	errs := env.orchestrator.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, string(models.CategoryHeartRate), errs[0].DataType)

	stepsLast, _ := env.states.LastSync(context.Background(), models.CategorySteps)
	assert.Equal(t, env.now, stepsLast)
	hrLast, _ := env.states.LastSync(context.Background(), models.CategoryHeartRate)
	assert.True(t, hrLast.IsZero())
}

func TestFullSyncAllCategoriesFailed(t *testing.T) {
	env := newOrchestratorEnv(t, models.CategorySteps)
	env.source.fetchErr[models.CategorySteps] = errors.New("sensor offline")

	err := env.orchestrator.FullSync(context.Background())

	assert.ErrorIs(t, err, ErrAllCategoriesFailed)
	assert.Equal(t, StateFailed, env.orchestrator.State())
}

func TestFullSyncSourceUnavailable(t *testing.T) {
	env := newOrchestratorEnv(t)
	env.source.available = false

	err := env.orchestrator.FullSync(context.Background())

	assert.Error(t, err)
	assert.Equal(t, StateFailed, env.orchestrator.State())
	assert.Empty(t, env.api.calls)
}

func TestFullSyncAuthorizationDenied(t *testing.T) {
	env := newOrchestratorEnv(t)
	env.source.authErr = errors.New("denied")

	err := env.orchestrator.FullSync(context.Background())

	assert.Error(t, err)
	assert.Equal(t, StateFailed, env.orchestrator.State())
}

func TestFullSyncKeepsMarkerOnPartialUpload(t *testing.T) {
	env := newOrchestratorEnv(t, models.CategoryHeartRate)
	samples := make([]models.RawSample, 150)
	for i := range samples {
		samples[i] = models.RawSample{Value: 60, Start: env.now.Add(-time.Duration(i) * time.Minute)}
	}
	env.source.samples[models.CategoryHeartRate] = samples
	boom := &queue.TransientNetworkError{Err: errors.New("boom")}
	// first chunk succeeds, second exhausts its attempts
	env.api.replies = []error{nil, boom, boom, boom}

	err := env.orchestrator.FullSync(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StatePartialSuccess, env.orchestrator.State())
	assert.NotEmpty(t, env.orchestrator.Errors())

	last, _ := env.states.LastSync(context.Background(), models.CategoryHeartRate)
	assert.True(t, last.IsZero(), "marker must not advance past unacknowledged batches")
}

func TestFullSyncEmptyCategoryAdvancesMarker(t *testing.T) {
	env := newOrchestratorEnv(t, models.CategorySteps)

	require.NoError(t, env.orchestrator.FullSync(context.Background()))

	last, _ := env.states.LastSync(context.Background(), models.CategorySteps)
	assert.Equal(t, env.now, last)
	assert.Empty(t, env.api.calls)
}

func TestFullSyncRetainsRecordsForReports(t *testing.T) {
	env := newOrchestratorEnv(t, models.CategorySteps, models.CategoryHeartRate)
	env.source.samples[models.CategorySteps] = []models.RawSample{{Value: 5000}}
	env.source.samples[models.CategoryHeartRate] = []models.RawSample{
		{Value: 60, Start: env.now.Add(-time.Hour)},
		{Value: 72, Start: env.now.Add(-30 * time.Minute)},
	}

	require.NoError(t, env.orchestrator.FullSync(context.Background()))
	require.Len(t, env.orchestrator.LastRecords(), 3)

	// The retained set belongs to the last cycle only.
	env.source.samples[models.CategoryHeartRate] = nil
	require.NoError(t, env.orchestrator.FullSync(context.Background()))
	records := env.orchestrator.LastRecords()
	require.Len(t, records, 1)
	assert.Equal(t, models.MetricSteps, records[0].Type)
}

func TestSyncDateRangeLeavesMarkersAlone(t *testing.T) {
	env := newOrchestratorEnv(t, models.CategorySteps)
	env.source.samples[models.CategorySteps] = []models.RawSample{{Value: 100}}
	from := env.now.Add(-90 * 24 * time.Hour)
	to := env.now.Add(-60 * 24 * time.Hour)

	require.NoError(t, env.orchestrator.SyncDateRange(context.Background(), from, to))

	r := env.source.rangeFor(models.CategorySteps)
	assert.Equal(t, from, r.From)
	assert.Equal(t, to, r.To)
	last, _ := env.states.LastSync(context.Background(), models.CategorySteps)
	assert.True(t, last.IsZero())
}

func TestSyncSingleCategory(t *testing.T) {
	env := newOrchestratorEnv(t)
	env.source.samples[models.CategorySteps] = []models.RawSample{{Value: 100}}

	require.NoError(t, env.orchestrator.SyncSteps(context.Background()))

	assert.Len(t, env.api.calls, 1)
	last, _ := env.states.LastSync(context.Background(), models.CategorySteps)
	assert.Equal(t, env.now, last)
	hrLast, _ := env.states.LastSync(context.Background(), models.CategoryHeartRate)
	assert.True(t, hrLast.IsZero())
}

func TestFullSyncSingleFlight(t *testing.T) {
	env := newOrchestratorEnv(t, models.CategorySteps)
	started := make(chan struct{})
	release := make(chan struct{})
	env.bus.Subscribe(events.EventSyncStarted, func(*events.Event) {
		close(started)
		<-release
	})

	done := make(chan error, 1)
	go func() { done <- env.orchestrator.FullSync(context.Background()) }()
	<-started

	assert.ErrorIs(t, env.orchestrator.FullSync(context.Background()), ErrSyncInProgress)
	assert.Equal(t, StateSyncing, env.orchestrator.State())

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateIdle, env.orchestrator.State())
}

func TestFullSyncPublishesLifecycleEvents(t *testing.T) {
	env := newOrchestratorEnv(t, models.CategorySteps)
	env.source.samples[models.CategorySteps] = []models.RawSample{{Value: 100}}

	var types []string
	for _, eventType := range []string{events.EventSyncStarted, events.EventSyncProgress, events.EventSyncFinished} {
		eventType := eventType
		env.bus.Subscribe(eventType, func(*events.Event) { types = append(types, eventType) })
	}

	require.NoError(t, env.orchestrator.FullSync(context.Background()))

	assert.Equal(t, []string{events.EventSyncStarted, events.EventSyncProgress, events.EventSyncFinished}, types)
}
