package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vitalsync/internal/events"
	"vitalsync/internal/metrics"
	"vitalsync/internal/models"
	"vitalsync/internal/network"
)

// Status is the externally visible state of the queue manager.
type Status string

const (
	StatusIdle              Status = "idle"
	StatusProcessing        Status = "processing"
	StatusWaitingForNetwork Status = "waiting_for_network"
)

// PersistenceAdapter is the durable store for queued operations.
// Implementations must fail loudly rather than silently drop data.
type PersistenceAdapter interface {
	SaveOperation(ctx context.Context, op *models.Operation) error
	UpdateOperation(ctx context.Context, op *models.Operation) error
	DeleteOperation(ctx context.Context, id string) error
	LoadOperations(ctx context.Context) ([]models.Operation, error)
}

// TokenRefresher is invoked when a handler reports an authentication
// failure.
type TokenRefresher interface {
	RefreshToken(ctx context.Context) error
}

// ManagerOptions wires the manager's collaborators. Everything is
// injected at construction; the manager owns no ambient state.
type ManagerOptions struct {
	Store    PersistenceAdapter
	Registry *Registry
	Network  network.Monitor
	Auth     TokenRefresher
	Policy   RetryPolicy
	Bus      *events.Bus
	Logger   *zerolog.Logger

	// DisableAutoProcess stops Enqueue from triggering a processing
	// cycle when the manager is idle and the network is available.
	// Off by default: an enqueue on an idle, online manager processes
	// immediately.
	DisableAutoProcess bool
}

// Manager owns the pending and permanently-failed operation sets.
// All access to those sets and to the persistence adapter goes
// through a single mutex; Process is additionally single-flight.
type Manager struct {
	store    PersistenceAdapter
	registry *Registry
	network  network.Monitor
	auth     TokenRefresher
	policy   RetryPolicy
	bus      *events.Bus
	logger   zerolog.Logger

	autoProcess bool
	now         func() time.Time

	mu             sync.Mutex
	pending        []*models.Operation
	failed         map[string]*models.Operation
	completedTotal int
	processing     bool
	status         Status
	progress       models.SyncProgress
	diagnostics    []string
}

func NewManager(opts ManagerOptions) *Manager {
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = DefaultRetryPolicy()
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "queue").Logger()
	}

	m := &Manager{
		store:       opts.Store,
		registry:    opts.Registry,
		network:     opts.Network,
		auth:        opts.Auth,
		policy:      opts.Policy,
		bus:         opts.Bus,
		logger:      logger,
		autoProcess: !opts.DisableAutoProcess,
		now:         time.Now,
		failed:      make(map[string]*models.Operation),
		status:      StatusIdle,
	}

	// Transition to "available" is the only automatic re-entry point;
	// it goes through the same single-flight guard as everyone else.
	if opts.Network != nil {
		opts.Network.OnChange(func(connected bool) {
			if connected {
				m.Process(context.Background())
				return
			}
			m.markOffline()
		})
	}

	return m
}

// Restore repopulates the in-memory sets from persistence. Must run
// once at startup before the first Process call so no enqueued work
// is lost across restarts.
func (m *Manager) Restore(ctx context.Context) error {
	ops, err := m.store.LoadOperations(ctx)
	if err != nil {
		return fmt.Errorf("restore queue: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range ops {
		op := ops[i]
		switch op.Status {
		case models.StatusPending:
			m.pending = append(m.pending, &op)
		case models.StatusFailed:
			m.failed[op.ID] = &op
		}
	}
	metrics.SetQueueDepth(len(m.pending))
	m.logger.Info().Int("pending", len(m.pending)).Int("failed", len(m.failed)).Msg("queue restored")
	return nil
}

// Enqueue appends an operation to the pending set and persists it.
// Safe for concurrent callers. When the manager is idle and the
// network is available, a processing cycle is triggered.
func (m *Manager) Enqueue(ctx context.Context, op *models.Operation) error {
	if op == nil {
		return fmt.Errorf("nil operation")
	}

	m.mu.Lock()
	op.Status = models.StatusPending
	m.pending = append(m.pending, op)
	saveErr := m.store.SaveOperation(ctx, op)
	if saveErr != nil {
		// The operation stays in memory and is retried next cycle;
		// the caller still learns the store is unhealthy.
		m.diagnostics = append(m.diagnostics, fmt.Sprintf("save %s: %v", op.ID, saveErr))
	}
	idle := m.status == StatusIdle && !m.processing
	metrics.SetQueueDepth(len(m.pending))
	m.mu.Unlock()

	if saveErr != nil {
		return &PersistenceError{Err: saveErr}
	}

	if m.autoProcess && idle && m.network != nil && m.network.IsConnected() {
		go m.Process(context.Background())
	}
	return nil
}

// Process drains the pending set in priority order. Single-flight: a
// second call while one cycle runs is a no-op. Without network the
// manager parks in StatusWaitingForNetwork and does nothing.
func (m *Manager) Process(ctx context.Context) {
	m.mu.Lock()
	if m.processing {
		m.mu.Unlock()
		return
	}
	if m.network != nil && !m.network.IsConnected() {
		changed := m.setStatusLocked(StatusWaitingForNetwork)
		m.mu.Unlock()
		m.publishStatus(changed)
		return
	}
	m.processing = true
	changed := m.setStatusLocked(StatusProcessing)
	snapshot := m.orderedLocked(true)
	m.progress = models.SyncProgress{TotalOperations: len(snapshot)}
	m.mu.Unlock()
	m.publishStatus(changed)

	defer func() {
		m.mu.Lock()
		m.processing = false
		var backToIdle bool
		if m.status == StatusProcessing {
			backToIdle = m.setStatusLocked(StatusIdle)
		}
		metrics.SetQueueDepth(len(m.pending))
		m.mu.Unlock()
		m.publishStatus(backToIdle)
	}()

	for _, op := range snapshot {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Mid-cycle network loss: remaining operations stay pending.
		if m.network != nil && !m.network.IsConnected() {
			m.mu.Lock()
			changed := m.setStatusLocked(StatusWaitingForNetwork)
			m.mu.Unlock()
			m.publishStatus(changed)
			return
		}

		if halt := m.dispatchOne(ctx, op); halt {
			return
		}
	}
}

// dispatchOne runs a single operation through its handler and applies
// the error taxonomy. Returns true when the cycle must halt (auth).
func (m *Manager) dispatchOne(ctx context.Context, op *models.Operation) bool {
	handler, ok := m.registry.Lookup(op.Type)

	var err error
	if !ok {
		err = &ValidationError{Err: fmt.Errorf("no handler registered for type %s", op.Type)}
	} else {
		err = handler.Handle(ctx, op)
	}

	if err == nil {
		m.complete(ctx, op)
		return false
	}

	kind := Classify(err)
	metrics.IncFailed(string(op.Type), kind.String())
	m.logger.Warn().
		Str("operation", op.ID).
		Str("type", string(op.Type)).
		Str("kind", kind.String()).
		Err(err).
		Msg("dispatch failed")

	switch kind {
	case KindAuth:
		// Operation left untouched, no attempt increment; the cycle
		// halts until credentials are refreshed.
		m.bus.Publish(&events.Event{Type: events.EventTokenRefreshNeeded})
		if m.auth != nil {
			go func() {
				if refreshErr := m.auth.RefreshToken(context.Background()); refreshErr != nil {
					m.logger.Error().Err(refreshErr).Msg("token refresh failed")
				}
			}()
		}
		return true
	case KindRateLimit:
		m.reschedule(ctx, op, RetryAfter(err), err)
	case KindCorrupted, KindValidation:
		m.abandon(ctx, op, err)
	case KindPersistence:
		m.mu.Lock()
		m.diagnostics = append(m.diagnostics, fmt.Sprintf("dispatch %s: %v", op.ID, err))
		m.mu.Unlock()
	default:
		m.retryOrAbandon(ctx, op, err)
	}
	return false
}

func (m *Manager) complete(ctx context.Context, op *models.Operation) {
	m.mu.Lock()
	op.Status = models.StatusCompleted
	m.removeFromPendingLocked(op.ID)
	m.completedTotal++
	m.progress.CompletedOperations++
	progress := m.progress
	if err := m.store.DeleteOperation(ctx, op.ID); err != nil {
		m.diagnostics = append(m.diagnostics, fmt.Sprintf("delete %s: %v", op.ID, err))
	}
	m.mu.Unlock()

	metrics.IncProcessed(string(op.Type))
	_ = m.bus.PublishJSON(events.EventOperationCompleted, events.OperationPayload{
		OperationID: op.ID,
		Type:        string(op.Type),
		Priority:    op.Priority.String(),
	})
	_ = m.bus.PublishJSON(events.EventQueueProgress, events.ProgressPayload{
		Total:     progress.TotalOperations,
		Completed: progress.CompletedOperations,
		Fraction:  progress.Fraction(),
	})
}

// retryOrAbandon handles transient failures: attempts increases
// monotonically and is persisted after every failed dispatch.
func (m *Manager) retryOrAbandon(ctx context.Context, op *models.Operation, cause error) {
	m.mu.Lock()
	now := m.now()
	op.Attempts++
	msg := cause.Error()
	op.LastError = &msg
	op.LastAttemptAt = &now

	if op.Attempts >= m.policy.MaxAttempts {
		m.abandonLocked(ctx, op)
		m.mu.Unlock()
		m.publishAbandoned(op, msg)
		return
	}

	next := now.Add(m.policy.Delay(op.Priority, op.Attempts))
	op.NextRetryAt = &next
	if err := m.store.UpdateOperation(ctx, op); err != nil {
		m.diagnostics = append(m.diagnostics, fmt.Sprintf("update %s: %v", op.ID, err))
	}
	m.mu.Unlock()

	_ = m.bus.PublishJSON(events.EventOperationFailed, events.OperationPayload{
		OperationID: op.ID,
		Type:        string(op.Type),
		Priority:    op.Priority.String(),
		Attempts:    op.Attempts,
		Error:       msg,
	})
}

// reschedule applies a server-provided retry-after without counting
// an attempt.
func (m *Manager) reschedule(ctx context.Context, op *models.Operation, after time.Duration, cause error) {
	m.mu.Lock()
	next := m.now().Add(after)
	op.NextRetryAt = &next
	msg := cause.Error()
	op.LastError = &msg
	if err := m.store.UpdateOperation(ctx, op); err != nil {
		m.diagnostics = append(m.diagnostics, fmt.Sprintf("update %s: %v", op.ID, err))
	}
	m.mu.Unlock()
}

// abandon moves an operation to the permanently-failed set with no
// retry scheduled.
func (m *Manager) abandon(ctx context.Context, op *models.Operation, cause error) {
	m.mu.Lock()
	now := m.now()
	msg := cause.Error()
	op.LastError = &msg
	op.LastAttemptAt = &now
	m.abandonLocked(ctx, op)
	m.mu.Unlock()
	m.publishAbandoned(op, msg)
}

// abandonLocked is the single place an operation enters the failed
// set, so an exhausted operation lands there exactly once.
func (m *Manager) abandonLocked(ctx context.Context, op *models.Operation) {
	if _, already := m.failed[op.ID]; already {
		return
	}
	op.Status = models.StatusFailed
	op.NextRetryAt = nil
	m.removeFromPendingLocked(op.ID)
	m.failed[op.ID] = op
	if err := m.store.UpdateOperation(ctx, op); err != nil {
		m.diagnostics = append(m.diagnostics, fmt.Sprintf("update %s: %v", op.ID, err))
	}
	metrics.IncAbandoned(string(op.Type))
}

func (m *Manager) publishAbandoned(op *models.Operation, msg string) {
	_ = m.bus.PublishJSON(events.EventOperationAbandoned, events.OperationPayload{
		OperationID: op.ID,
		Type:        string(op.Type),
		Priority:    op.Priority.String(),
		Attempts:    op.Attempts,
		Error:       msg,
	})
}

// RetryFailed moves operations with remaining retry budget from the
// failed set back to pending and triggers a processing cycle.
func (m *Manager) RetryFailed(ctx context.Context) {
	m.mu.Lock()
	moved := 0
	for id, op := range m.failed {
		if op.Attempts >= m.policy.MaxAttempts {
			continue
		}
		delete(m.failed, id)
		op.Status = models.StatusPending
		op.NextRetryAt = nil
		m.pending = append(m.pending, op)
		if err := m.store.UpdateOperation(ctx, op); err != nil {
			m.diagnostics = append(m.diagnostics, fmt.Sprintf("update %s: %v", op.ID, err))
		}
		moved++
	}
	m.mu.Unlock()

	if moved > 0 {
		m.logger.Info().Int("moved", moved).Msg("retrying failed operations")
		m.Process(ctx)
	}
}

// OrderedOperations returns the pending set sorted descending by
// priority. At equal priority, health-upload operations sort first;
// otherwise insertion order is preserved.
func (m *Manager) OrderedOperations() []models.Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	ordered := m.orderedLocked(false)
	out := make([]models.Operation, len(ordered))
	for i, op := range ordered {
		out[i] = *op
	}
	return out
}

func (m *Manager) orderedLocked(dueOnly bool) []*models.Operation {
	now := m.now()
	ops := make([]*models.Operation, 0, len(m.pending))
	for _, op := range m.pending {
		if dueOnly && !op.Due(now) {
			continue
		}
		ops = append(ops, op)
	}

	sort.SliceStable(ops, func(i, j int) bool {
		if ops[i].Priority != ops[j].Priority {
			return ops[i].Priority > ops[j].Priority
		}
		// Physiological data must not starve behind equal-priority
		// administrative operations.
		iHealth := ops[i].Type == models.OpHealthUpload
		jHealth := ops[j].Type == models.OpHealthUpload
		if iHealth != jHealth {
			return iHealth
		}
		return false
	})
	return ops
}

// Remove deletes a single operation from the queue and persistence.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeFromPendingLocked(id)
	delete(m.failed, id)
	metrics.SetQueueDepth(len(m.pending))
	if err := m.store.DeleteOperation(ctx, id); err != nil {
		return &PersistenceError{Err: err}
	}
	return nil
}

// Clear empties the pending set, removing every entry from
// persistence as well. The failed set is kept for diagnostics.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for _, op := range m.pending {
		if err := m.store.DeleteOperation(ctx, op.ID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.pending = nil
	metrics.SetQueueDepth(0)
	if firstErr != nil {
		return &PersistenceError{Err: firstErr}
	}
	return nil
}

// Statistics summarizes the queue for diagnostic consumers.
func (m *Manager) Statistics() models.QueueStatistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := models.QueueStatistics{
		Pending:           len(m.pending),
		Completed:         m.completedTotal,
		PermanentlyFailed: len(m.failed),
		ByType:            make(map[models.OperationType]int),
	}
	for _, op := range m.pending {
		stats.ByType[op.Type]++
		stats.TotalPayloadBytes += op.PayloadSize()
		if stats.OldestPending == nil || op.CreatedAt.Before(*stats.OldestPending) {
			created := op.CreatedAt
			stats.OldestPending = &created
		}
	}
	for _, op := range m.failed {
		stats.ByType[op.Type]++
	}
	return stats
}

// Status returns the current manager status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Progress returns the progress of the current or last cycle.
func (m *Manager) Progress() models.SyncProgress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress
}

// FailedOperations returns pending operations that have failed at
// least once but still have retry budget.
func (m *Manager) FailedOperations() []models.Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Operation
	for _, op := range m.pending {
		if op.Attempts > 0 {
			out = append(out, *op)
		}
	}
	return out
}

// PermanentlyFailedOperations returns the set of operations that
// exhausted their retry budget or carried unusable payloads.
func (m *Manager) PermanentlyFailedOperations() []models.Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Operation, 0, len(m.failed))
	for _, op := range m.failed {
		out = append(out, *op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Diagnostics returns persistence-layer problems observed so far.
func (m *Manager) Diagnostics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.diagnostics...)
}

func (m *Manager) markOffline() {
	m.mu.Lock()
	var changed bool
	if !m.processing {
		changed = m.setStatusLocked(StatusWaitingForNetwork)
	}
	m.mu.Unlock()
	m.publishStatus(changed)
}

func (m *Manager) removeFromPendingLocked(id string) {
	for i, op := range m.pending {
		if op.ID == id {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return
		}
	}
}

func (m *Manager) setStatusLocked(s Status) bool {
	if m.status == s {
		return false
	}
	m.status = s
	return true
}

func (m *Manager) publishStatus(changed bool) {
	if !changed {
		return
	}
	_ = m.bus.PublishJSON(events.EventQueueStatusChanged, events.QueueStatusPayload{
		Status: string(m.Status()),
	})
}
