package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"vitalsync/internal/config"
	"vitalsync/internal/healthsync"
	"vitalsync/internal/models"
	"vitalsync/internal/queue"
)

// QueueInspector is the queue surface the diagnostics server reads.
type QueueInspector interface {
	Status() queue.Status
	Statistics() models.QueueStatistics
	PermanentlyFailedOperations() []models.Operation
	Diagnostics() []string
}

// SyncInspector is the sync surface the diagnostics server reads.
type SyncInspector interface {
	State() healthsync.State
	Progress() models.SyncProgress
	Errors() []models.SyncError
	LastRecords() []models.MetricRecord
}

// ReportExporter writes a diagnostic report of metric records to disk
// and returns its path.
type ReportExporter interface {
	MetricReport(records []models.MetricRecord) (string, error)
}

// Server exposes local diagnostics over HTTP: health, Prometheus
// metrics and read-only views of the queue and the sync pipeline.
type Server struct {
	server   *http.Server
	queue    QueueInspector
	sync     SyncInspector
	exporter ReportExporter
	logger   zerolog.Logger
}

func NewServer(cfg config.MonitoringConfig, q QueueInspector, s SyncInspector, exporter ReportExporter, logger *zerolog.Logger) *Server {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "api").Logger()
	}
	srv := &Server{queue: q, sync: s, exporter: exporter, logger: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/queue/stats", srv.handleQueueStats)
	mux.HandleFunc("/queue/failed", srv.handleQueueFailed)
	mux.HandleFunc("/sync/status", srv.handleSyncStatus)
	mux.HandleFunc("/sync/report", srv.handleSyncReport)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.DiagnosticsPort),
		Handler:           srv.logging(mux),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

func (s *Server) Start() error {
	if s.server == nil {
		return fmt.Errorf("diagnostics server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("diagnostics server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler, used directly in tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats := s.queue.Statistics()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             string(s.queue.Status()),
		"pending":            stats.Pending,
		"completed":          stats.Completed,
		"permanently_failed": stats.PermanentlyFailed,
		"by_type":            stats.ByType,
		"oldest_pending":     stats.OldestPending,
		"payload_bytes":      stats.TotalPayloadBytes,
		"diagnostics":        s.queue.Diagnostics(),
	})
}

func (s *Server) handleQueueFailed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	failed := s.queue.PermanentlyFailedOperations()
	results := make([]map[string]any, 0, len(failed))
	for _, op := range failed {
		entry := map[string]any{
			"id":         op.ID,
			"type":       string(op.Type),
			"priority":   op.Priority.String(),
			"attempts":   op.Attempts,
			"created_at": op.CreatedAt,
		}
		if op.LastError != nil {
			entry["last_error"] = *op.LastError
		}
		results = append(results, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": results})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	progress := s.sync.Progress()
	writeJSON(w, http.StatusOK, map[string]any{
		"state": string(s.sync.State()),
		"progress": map[string]any{
			"total":     progress.TotalOperations,
			"completed": progress.CompletedOperations,
			"fraction":  progress.Fraction(),
		},
		"errors": s.sync.Errors(),
	})
}

// handleSyncReport exports the last cycle's records to a spreadsheet
// on demand.
func (s *Server) handleSyncReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "exports are not configured")
		return
	}

	records := s.sync.LastRecords()
	if len(records) == 0 {
		writeError(w, http.StatusNotFound, "no synced records to report")
		return
	}

	path, err := s.exporter.MetricReport(records)
	if err != nil {
		s.logger.Error().Err(err).Msg("metric report export failed")
		writeError(w, http.StatusInternalServerError, "report export failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"path":    path,
		"records": len(records),
	})
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
