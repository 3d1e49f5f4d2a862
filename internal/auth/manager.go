package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"vitalsync/internal/config"
)

// Manager holds the OAuth2 refresh-token flow for the remote service.
// It satisfies both the queue's refresh hook and the remote client's
// token provider, so a 401 in the queue transparently renews the
// token the next request uses.
type Manager struct {
	cfg    *oauth2.Config
	logger zerolog.Logger

	mu      sync.Mutex
	refresh string
	source  oauth2.TokenSource
}

func NewManager(cfg config.AuthConfig, logger *zerolog.Logger) *Manager {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "auth").Logger()
	}
	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	return &Manager{
		cfg:     oc,
		logger:  log,
		refresh: cfg.RefreshToken,
	}
}

// Token returns a valid access token, exchanging the refresh token
// on first use and reusing the cached access token until it expires.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.source == nil {
		m.source = m.cfg.TokenSource(context.Background(), &oauth2.Token{RefreshToken: m.refresh})
	}
	source := m.source
	m.mu.Unlock()

	token, err := source.Token()
	if err != nil {
		return "", fmt.Errorf("failed to obtain access token: %w", err)
	}
	m.rememberRefresh(token)
	return token.AccessToken, nil
}

// RefreshToken drops the cached access token so the next request
// performs a fresh exchange. Called by the queue when the remote
// rejects our credentials.
func (m *Manager) RefreshToken(ctx context.Context) error {
	m.mu.Lock()
	m.source = m.cfg.TokenSource(context.Background(), &oauth2.Token{RefreshToken: m.refresh})
	source := m.source
	m.mu.Unlock()

	token, err := source.Token()
	if err != nil {
		m.logger.Error().Err(err).Msg("token refresh failed")
		return fmt.Errorf("failed to refresh token: %w", err)
	}
	m.rememberRefresh(token)
	m.logger.Info().Time("expiry", token.Expiry).Msg("access token refreshed")
	return nil
}

// rememberRefresh keeps the rotated refresh token when the server
// issues a new one.
func (m *Manager) rememberRefresh(token *oauth2.Token) {
	if token.RefreshToken == "" {
		return
	}
	m.mu.Lock()
	if token.RefreshToken != m.refresh {
		m.refresh = token.RefreshToken
	}
	m.mu.Unlock()
}
