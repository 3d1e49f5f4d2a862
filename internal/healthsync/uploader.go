package healthsync

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"vitalsync/internal/metrics"
	"vitalsync/internal/models"
	"vitalsync/internal/queue"
	"vitalsync/internal/remote"
)

const defaultBatchSize = 100

// Uploader pushes canonical records in bounded batches. A failing
// chunk is retried with backoff on its own; it never blocks the
// chunks behind it.
type Uploader struct {
	api       remote.API
	policy    queue.RetryPolicy
	batchSize int
	attempts  int
	logger    zerolog.Logger

	// sleep is injectable so tests do not wait out real backoffs.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewUploader(api remote.API, policy queue.RetryPolicy, batchSize, attempts int, logger *zerolog.Logger) *Uploader {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if attempts <= 0 {
		attempts = 3
	}
	if policy.MaxAttempts == 0 {
		policy = queue.DefaultRetryPolicy()
	}
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "uploader").Logger()
	}
	return &Uploader{
		api:       api,
		policy:    policy,
		batchSize: batchSize,
		attempts:  attempts,
		logger:    log,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Batches returns the number of chunks Upload will produce.
func (u *Uploader) Batches(recordCount int) int {
	if recordCount <= 0 {
		return 0
	}
	return (recordCount + u.batchSize - 1) / u.batchSize
}

// Upload splits records into chunks and pushes each through the
// remote API. Progress advances per acknowledged chunk; failures are
// accumulated as SyncErrors keyed by category.
func (u *Uploader) Upload(ctx context.Context, category models.SampleCategory, records []models.MetricRecord, progress *Progress) (int, []models.SyncError) {
	var (
		uploaded int
		errs     []models.SyncError
	)

	for start := 0; start < len(records); start += u.batchSize {
		end := start + u.batchSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]

		result, err := u.uploadChunk(ctx, chunk)
		if err != nil {
			metrics.IncBatch(string(category), "failed")
			errs = append(errs, models.SyncError{
				DataType:  string(category),
				Message:   err.Error(),
				Timestamp: time.Now(),
			})
			u.logger.Warn().
				Str("category", string(category)).
				Int("chunk_size", len(chunk)).
				Err(err).
				Msg("chunk upload abandoned")
			continue
		}

		// An acknowledged chunk can still carry record-level
		// rejections; those count against uploaded and surface as
		// sync errors instead of vanishing.
		accepted := len(chunk)
		if result != nil && len(result.Errors) > 0 {
			if result.ProcessedCount >= 0 && result.ProcessedCount < accepted {
				accepted = result.ProcessedCount
			}
			for _, msg := range result.Errors {
				errs = append(errs, models.SyncError{
					DataType:  string(category),
					Message:   msg,
					Timestamp: time.Now(),
				})
			}
			metrics.IncBatch(string(category), "partial")
			u.logger.Warn().
				Str("category", string(category)).
				Int("chunk_size", len(chunk)).
				Int("accepted", accepted).
				Strs("errors", result.Errors).
				Msg("chunk partially accepted")
		} else {
			metrics.IncBatch(string(category), "ok")
		}

		uploaded += accepted
		if progress != nil {
			progress.Advance()
		}
	}
	return uploaded, errs
}

// uploadChunk retries one chunk with the shared retry policy, up to
// the bounded attempt budget. Rate-limit responses wait out the
// server-provided delay without burning the backoff schedule.
func (u *Uploader) uploadChunk(ctx context.Context, chunk []models.MetricRecord) (*remote.UploadResult, error) {
	var lastErr error
	for attempt := 1; attempt <= u.attempts; attempt++ {
		result, err := u.api.UploadBatch(ctx, chunk)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == u.attempts {
			break
		}
		delay := u.policy.Delay(models.PriorityHigh, attempt)
		if after := queue.RetryAfter(err); after > 0 {
			delay = after
		}
		if sleepErr := u.sleep(ctx, delay); sleepErr != nil {
			return nil, sleepErr
		}
	}
	return nil, lastErr
}
