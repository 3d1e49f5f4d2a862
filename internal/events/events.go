package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventQueueStatusChanged = "queue_status_changed"
	EventOperationCompleted = "operation_completed"
	EventOperationFailed    = "operation_failed"
	EventOperationAbandoned = "operation_abandoned"
	EventQueueProgress      = "queue_progress"
	EventSyncStarted        = "sync_started"
	EventSyncProgress       = "sync_progress"
	EventSyncFinished       = "sync_finished"
	EventTokenRefreshNeeded = "token_refresh_needed"
)

// QueueStatusPayload notifies status transitions of the queue manager.
type QueueStatusPayload struct {
	Status string `json:"status"`
}

// OperationPayload is the minimal operation snapshot for consumers.
type OperationPayload struct {
	OperationID string `json:"operation_id"`
	Type        string `json:"type"`
	Priority    string `json:"priority"`
	Attempts    int    `json:"attempts"`
	Error       string `json:"error,omitempty"`
}

// ProgressPayload reports cycle progress for UI-style consumers.
type ProgressPayload struct {
	Total     int     `json:"total"`
	Completed int     `json:"completed"`
	Fraction  float64 `json:"fraction"`
}

// SyncFinishedPayload summarizes one sync cycle.
type SyncFinishedPayload struct {
	State     string `json:"state"`
	Errors    int    `json:"errors"`
	Uploaded  int    `json:"uploaded"`
	DurationS int64  `json:"duration_s"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Handler reacts to an event.
type Handler func(event *Event)

// Bus provides in-process pub/sub, the explicit replacement for
// reactive property observation in the UI layer.
type Bus struct {
	subscribers map[string][]Handler
	mu          sync.RWMutex
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]Handler)}
}

// Subscribe registers a handler for a given event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type. Handlers run
// synchronously; the caller decides the concurrency model.
func (b *Bus) Publish(event *Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *Bus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
