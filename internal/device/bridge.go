package device

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"vitalsync/internal/config"
	"vitalsync/internal/models"
)

// BridgeClient reads raw health samples from the local device agent
// over HTTP. It is the daemon-side implementation of the health data
// source capability.
type BridgeClient struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewBridgeClient(cfg config.DeviceConfig, logger *zerolog.Logger) *BridgeClient {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "device").Logger()
	}
	return &BridgeClient{
		baseURL:    cfg.BridgeURL,
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		logger:     log,
	}
}

// IsAvailable reports whether the device agent answers its status
// endpoint. Any transport or non-200 response counts as unavailable.
func (c *BridgeClient) IsAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/status", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// RequestAuthorization asks the agent for read access to health data.
// Idempotent: an already-granted authorization returns success.
func (c *BridgeClient) RequestAuthorization(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/authorize", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("device authorization request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusForbidden:
		return fmt.Errorf("health data access denied by user")
	default:
		return fmt.Errorf("device agent returned status %d", resp.StatusCode)
	}
}

// FetchSamples pulls raw samples for one category in a window.
func (c *BridgeClient) FetchSamples(ctx context.Context, category models.SampleCategory, r models.DateRange) ([]models.RawSample, error) {
	endpoint := fmt.Sprintf("%s/v1/samples?%s", c.baseURL, rangeQuery(r, url.Values{
		"category": []string{string(category)},
	}))

	var payload struct {
		Samples []models.RawSample `json:"samples"`
	}
	if err := c.doGet(ctx, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("fetch %s samples: %w", category, err)
	}
	c.logger.Debug().Str("category", string(category)).Int("count", len(payload.Samples)).Msg("samples fetched")
	return payload.Samples, nil
}

// FetchWorkouts pulls workout sessions in a window.
func (c *BridgeClient) FetchWorkouts(ctx context.Context, r models.DateRange) ([]models.RawWorkout, error) {
	endpoint := fmt.Sprintf("%s/v1/workouts?%s", c.baseURL, rangeQuery(r, url.Values{}))

	var payload struct {
		Workouts []models.RawWorkout `json:"workouts"`
	}
	if err := c.doGet(ctx, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("fetch workouts: %w", err)
	}
	c.logger.Debug().Int("count", len(payload.Workouts)).Msg("workouts fetched")
	return payload.Workouts, nil
}

func (c *BridgeClient) doGet(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("device agent returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func rangeQuery(r models.DateRange, values url.Values) string {
	values.Set("from", r.From.UTC().Format(time.RFC3339))
	values.Set("to", r.To.UTC().Format(time.RFC3339))
	return values.Encode()
}
