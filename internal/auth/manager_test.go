package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitalsync/internal/config"
)

func newTokenServer(t *testing.T, exchanges *atomic.Int32, rotate bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.FormValue("grant_type") != "refresh_token" {
			http.Error(w, "unsupported grant", http.StatusBadRequest)
			return
		}
		n := exchanges.Add(1)
		w.Header().Set("Content-Type", "application/json")
		body := fmt.Sprintf(`{"access_token":"access-%d","token_type":"Bearer","expires_in":3600`, n)
		if rotate {
			body += fmt.Sprintf(`,"refresh_token":"rotated-%d"`, n)
		}
		body += `}`
		fmt.Fprint(w, body)
	}))
}

func newTestManager(serverURL string) *Manager {
	return NewManager(config.AuthConfig{
		TokenURL:     serverURL + "/oauth/token",
		ClientID:     "client",
		ClientSecret: "secret",
		RefreshToken: "initial-refresh",
	}, nil)
}

func TestTokenExchangesOnce(t *testing.T) {
	var exchanges atomic.Int32
	server := newTokenServer(t, &exchanges, false)
	defer server.Close()

	m := newTestManager(server.URL)

	token, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)

	// cached until expiry, no second exchange
	token, err = m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)
	assert.Equal(t, int32(1), exchanges.Load())
}

func TestRefreshTokenForcesNewExchange(t *testing.T) {
	var exchanges atomic.Int32
	server := newTokenServer(t, &exchanges, false)
	defer server.Close()

	m := newTestManager(server.URL)

	token, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)

	require.NoError(t, m.RefreshToken(context.Background()))

	token, err = m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-2", token)
	assert.Equal(t, int32(2), exchanges.Load())
}

func TestRefreshTokenRotation(t *testing.T) {
	var exchanges atomic.Int32
	server := newTokenServer(t, &exchanges, true)
	defer server.Close()

	m := newTestManager(server.URL)

	require.NoError(t, m.RefreshToken(context.Background()))
	m.mu.Lock()
	refresh := m.refresh
	m.mu.Unlock()
	assert.Equal(t, "rotated-1", refresh)
}

func TestTokenServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid_grant", http.StatusBadRequest)
	}))
	defer server.Close()

	m := newTestManager(server.URL)

	_, err := m.Token(context.Background())
	assert.Error(t, err)
	assert.Error(t, m.RefreshToken(context.Background()))
}
