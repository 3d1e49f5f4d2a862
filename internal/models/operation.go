package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OperationType identifies which handler processes an operation.
type OperationType string

const (
	OpHealthUpload       OperationType = "health_upload"
	OpProfileUpdate      OperationType = "profile_update"
	OpAnalysisSubmission OperationType = "analysis_submission"
	OpInsightFeedback    OperationType = "insight_feedback"
	OpSyncData           OperationType = "sync_data"
	OpDeleteData         OperationType = "delete_data"
)

// AllOperationTypes lists every registered operation type.
var AllOperationTypes = []OperationType{
	OpHealthUpload,
	OpProfileUpdate,
	OpAnalysisSubmission,
	OpInsightFeedback,
	OpSyncData,
	OpDeleteData,
}

// Priority orders dispatch; higher values dispatch first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	default:
		return "low"
	}
}

type OperationStatus string

const (
	StatusPending   OperationStatus = "pending"
	StatusCompleted OperationStatus = "completed"
	StatusFailed    OperationStatus = "failed"
)

// Operation is one deferred unit of work tracked by the queue.
// The payload is opaque to the queue and interpreted only by the
// handler registered for the operation type.
type Operation struct {
	ID            string                 `json:"id"`
	Type          OperationType          `json:"type"`
	Payload       map[string]interface{} `json:"payload"`
	Priority      Priority               `json:"priority"`
	Status        OperationStatus        `json:"status"`
	Attempts      int                    `json:"attempts"`
	LastError     *string                `json:"last_error,omitempty"`
	LastAttemptAt *time.Time             `json:"last_attempt_at,omitempty"`
	NextRetryAt   *time.Time             `json:"next_retry_at,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// NewOperation builds a pending operation with a fresh ID.
func NewOperation(opType OperationType, priority Priority, payload map[string]interface{}) *Operation {
	return &Operation{
		ID:        uuid.NewString(),
		Type:      opType,
		Payload:   payload,
		Priority:  priority,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
}

// PayloadSize estimates the serialized payload size in bytes.
func (o *Operation) PayloadSize() int {
	if len(o.Payload) == 0 {
		return 0
	}
	raw, err := json.Marshal(o.Payload)
	if err != nil {
		return 0
	}
	return len(raw)
}

// Due reports whether the operation is eligible for dispatch at t.
func (o *Operation) Due(t time.Time) bool {
	return o.NextRetryAt == nil || !o.NextRetryAt.After(t)
}

// QueueStatistics summarizes the queue for diagnostics.
type QueueStatistics struct {
	Pending           int                   `json:"pending"`
	Completed         int                   `json:"completed"`
	PermanentlyFailed int                   `json:"permanently_failed"`
	ByType            map[OperationType]int `json:"by_type"`
	OldestPending     *time.Time            `json:"oldest_pending,omitempty"`
	TotalPayloadBytes int                   `json:"total_payload_bytes"`
}
