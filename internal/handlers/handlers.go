package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"vitalsync/internal/models"
	"vitalsync/internal/queue"
	"vitalsync/internal/remote"
)

// Service is the remote surface the handlers talk to. *remote.Client
// satisfies it.
type Service interface {
	UploadBatch(ctx context.Context, records []models.MetricRecord) (*remote.UploadResult, error)
	UpdateProfile(ctx context.Context, fields map[string]interface{}) error
	SubmitAnalysis(ctx context.Context, submission map[string]interface{}) error
	SubmitFeedback(ctx context.Context, feedback map[string]interface{}) error
	DeleteData(ctx context.Context, keys []string) error
}

// Syncer triggers a sync cycle on demand; the orchestrator satisfies
// it.
type Syncer interface {
	FullSync(ctx context.Context) error
}

// NewRegistry builds the handler registry for the closed operation
// type set. Adding an operation type means one handler and one entry
// here; the queue manager never changes.
func NewRegistry(svc Service, syncer Syncer, logger *zerolog.Logger) (*queue.Registry, error) {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "handlers").Logger()
	}

	registry := queue.NewRegistry()
	entries := map[models.OperationType]queue.Handler{
		models.OpHealthUpload:       &healthUploadHandler{svc: svc, logger: log},
		models.OpProfileUpdate:      payloadHandler(svc.UpdateProfile),
		models.OpAnalysisSubmission: payloadHandler(svc.SubmitAnalysis),
		models.OpInsightFeedback:    payloadHandler(svc.SubmitFeedback),
		models.OpSyncData:           &syncDataHandler{syncer: syncer, logger: log},
		models.OpDeleteData:         &deleteDataHandler{svc: svc},
	}
	for opType, handler := range entries {
		if err := registry.Register(opType, handler); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// healthUploadHandler pushes canonical metric records embedded in the
// operation payload under the "records" key.
type healthUploadHandler struct {
	svc    Service
	logger zerolog.Logger
}

func (h *healthUploadHandler) Handle(ctx context.Context, op *models.Operation) error {
	records, err := decodeRecords(op.Payload)
	if err != nil {
		return &queue.DataCorruptionError{Err: err}
	}
	if len(records) == 0 {
		return &queue.ValidationError{Err: fmt.Errorf("health upload carries no records")}
	}
	result, err := h.svc.UploadBatch(ctx, records)
	if err != nil {
		return err
	}
	// An acknowledged upload can still reject individual records; a
	// wholly rejected batch will not improve on retry.
	if result != nil && len(result.Errors) > 0 {
		h.logger.Warn().
			Str("operation", op.ID).
			Int("records", len(records)).
			Int("processed", result.ProcessedCount).
			Strs("errors", result.Errors).
			Msg("upload accepted with record rejections")
		if result.ProcessedCount == 0 {
			return &queue.ValidationError{Err: fmt.Errorf("server rejected all records: %s", result.Errors[0])}
		}
	}
	return nil
}

func decodeRecords(payload map[string]interface{}) ([]models.MetricRecord, error) {
	raw, ok := payload["records"]
	if !ok {
		return nil, fmt.Errorf("payload missing records key")
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	var records []models.MetricRecord
	if err := json.Unmarshal(encoded, &records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}

// payloadHandler adapts service calls that consume the payload map
// directly.
func payloadHandler(call func(ctx context.Context, payload map[string]interface{}) error) queue.HandlerFunc {
	return func(ctx context.Context, op *models.Operation) error {
		if len(op.Payload) == 0 {
			return &queue.ValidationError{Err: fmt.Errorf("empty payload for %s", op.Type)}
		}
		return call(ctx, op.Payload)
	}
}

type syncDataHandler struct {
	syncer Syncer
	logger zerolog.Logger
}

func (h *syncDataHandler) Handle(ctx context.Context, op *models.Operation) error {
	if h.syncer == nil {
		return &queue.ValidationError{Err: fmt.Errorf("no syncer configured")}
	}
	h.logger.Debug().Str("operation", op.ID).Msg("queue-triggered sync")
	return h.syncer.FullSync(ctx)
}

type deleteDataHandler struct {
	svc Service
}

func (h *deleteDataHandler) Handle(ctx context.Context, op *models.Operation) error {
	raw, ok := op.Payload["keys"]
	if !ok {
		return &queue.DataCorruptionError{Err: fmt.Errorf("payload missing keys")}
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return &queue.DataCorruptionError{Err: err}
	}
	var keys []string
	if err := json.Unmarshal(encoded, &keys); err != nil {
		return &queue.DataCorruptionError{Err: fmt.Errorf("decode keys: %w", err)}
	}
	if len(keys) == 0 {
		return &queue.ValidationError{Err: fmt.Errorf("delete request carries no keys")}
	}
	return h.svc.DeleteData(ctx, keys)
}
