package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitalsync/internal/config"
	"vitalsync/internal/models"
	"vitalsync/internal/queue"
)

type staticToken string

func (t staticToken) Token(context.Context) (string, error) { return string(t), nil }

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(config.RemoteConfig{
		BaseURL:        server.URL,
		TimeoutSeconds: 5,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	}, staticToken("test-token"), nil)
}

func sampleRecords() []models.MetricRecord {
	return []models.MetricRecord{
		{Type: models.MetricSteps, Value: 1200, Unit: "count", Timestamp: time.Now()},
	}
}

func TestUploadBatchSuccess(t *testing.T) {
	var gotAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/metrics/batch", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"processed_count": 1}`))
	})

	result, err := client.UploadBatch(context.Background(), sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProcessedCount)
	assert.Equal(t, "Bearer test-token", gotAuth)
}

func TestUploadBatchStatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   queue.FailureKind
	}{
		{"unauthorized", http.StatusUnauthorized, queue.KindAuth},
		{"forbidden", http.StatusForbidden, queue.KindAuth},
		{"rate limited", http.StatusTooManyRequests, queue.KindRateLimit},
		{"bad request", http.StatusBadRequest, queue.KindValidation},
		{"server error", http.StatusInternalServerError, queue.KindTransient},
		{"bad gateway", http.StatusBadGateway, queue.KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := client.UploadBatch(context.Background(), sampleRecords())
			require.Error(t, err)
			assert.Equal(t, tt.want, queue.Classify(err))
		})
	}
}

func TestRateLimitCarriesRetryAfter(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.UploadBatch(context.Background(), sampleRecords())
	require.Error(t, err)
	assert.Equal(t, 2*time.Minute, queue.RetryAfter(err))
}

func TestRateLimitDefaultsWithoutHeader(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.UploadBatch(context.Background(), sampleRecords())
	require.Error(t, err)
	assert.Equal(t, 30*time.Second, queue.RetryAfter(err))
}

func TestConnectionFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close() // connection refused from here on

	client := NewClient(config.RemoteConfig{BaseURL: server.URL, TimeoutSeconds: 1}, nil, nil)
	_, err := client.UploadBatch(context.Background(), sampleRecords())
	require.Error(t, err)
	assert.Equal(t, queue.KindTransient, queue.Classify(err))
}

func TestProfileAndDataEndpoints(t *testing.T) {
	var paths []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})
	ctx := context.Background()

	require.NoError(t, client.UpdateProfile(ctx, map[string]interface{}{"display_name": "A"}))
	require.NoError(t, client.SubmitAnalysis(ctx, map[string]interface{}{"window_days": 7}))
	require.NoError(t, client.SubmitFeedback(ctx, map[string]interface{}{"insight_id": "x", "helpful": true}))
	require.NoError(t, client.DeleteData(ctx, []string{"metrics/2026-01"}))

	assert.Equal(t, []string{
		"PUT /v1/profile",
		"POST /v1/analysis",
		"POST /v1/insights/feedback",
		"POST /v1/data/delete",
	}, paths)
}
