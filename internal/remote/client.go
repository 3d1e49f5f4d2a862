package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"vitalsync/internal/config"
	"vitalsync/internal/models"
	"vitalsync/internal/queue"
)

// UploadResult is the remote acknowledgment of one batch. The
// receiver deduplicates, so delivery is at-least-once.
type UploadResult struct {
	ProcessedCount int      `json:"processed_count"`
	Errors         []string `json:"errors,omitempty"`
}

// API is the upload capability consumed by the batch uploader.
type API interface {
	UploadBatch(ctx context.Context, records []models.MetricRecord) (*UploadResult, error)
}

// TokenProvider supplies the current access token.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Client is the HTTP implementation of the remote service surface.
// Requests are rate limited client side to stay under the service
// quota even when the queue drains a large backlog.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	token   TokenProvider
	logger  zerolog.Logger
}

func NewClient(cfg config.RemoteConfig, token TokenProvider, logger *zerolog.Logger) *Client {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "remote").Logger()
	}
	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 10
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		token:   token,
		logger:  log,
	}
}

// UploadBatch pushes canonical metric records.
func (c *Client) UploadBatch(ctx context.Context, records []models.MetricRecord) (*UploadResult, error) {
	var result UploadResult
	body := map[string]interface{}{"records": records}
	if err := c.do(ctx, http.MethodPost, "/v1/metrics/batch", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateProfile patches the user profile.
func (c *Client) UpdateProfile(ctx context.Context, fields map[string]interface{}) error {
	return c.do(ctx, http.MethodPut, "/v1/profile", fields, nil)
}

// SubmitAnalysis submits an analysis request.
func (c *Client) SubmitAnalysis(ctx context.Context, submission map[string]interface{}) error {
	return c.do(ctx, http.MethodPost, "/v1/analysis", submission, nil)
}

// SubmitFeedback records user feedback on an insight.
func (c *Client) SubmitFeedback(ctx context.Context, feedback map[string]interface{}) error {
	return c.do(ctx, http.MethodPost, "/v1/insights/feedback", feedback, nil)
}

// DeleteData requests server-side deletion of the given data keys.
func (c *Client) DeleteData(ctx context.Context, keys []string) error {
	return c.do(ctx, http.MethodPost, "/v1/data/delete", map[string]interface{}{"keys": keys}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &queue.TransientNetworkError{Err: err}
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &queue.DataCorruptionError{Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &queue.ValidationError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != nil {
		token, err := c.token.Token(ctx)
		if err != nil {
			return &queue.AuthenticationError{Err: fmt.Errorf("acquire token: %w", err)}
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &queue.TransientNetworkError{Err: err}
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &queue.TransientNetworkError{Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}

func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &queue.AuthenticationError{Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &queue.RateLimitError{
			RetryAfter: retryAfter(resp),
			Err:        fmt.Errorf("status %d", resp.StatusCode),
		}
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return &queue.ValidationError{Err: fmt.Errorf("status %d: %s", resp.StatusCode, readBody(resp))}
	default:
		return &queue.TransientNetworkError{Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
}

func retryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 30 * time.Second
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 30 * time.Second
}

func readBody(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 512))
	if err != nil {
		return ""
	}
	return string(raw)
}
