package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/vitalsync.db
remote:
  base_url: https://api.example.com
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "vitalsync", cfg.App.Name)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.True(t, cfg.AutoProcessEnabled())
	assert.Equal(t, 100, cfg.Sync.BatchSize)
	assert.Equal(t, 30, cfg.Sync.LookbackDays)
	assert.Equal(t, []string{"steps", "heart_rate", "sleep", "workouts"}, cfg.Sync.Categories)
	assert.Equal(t, 2, cfg.Queue.BaseDelaySeconds.Critical)
	assert.Equal(t, 60, cfg.Queue.BaseDelaySeconds.Low)
	assert.Equal(t, 5.0, cfg.Remote.RateLimitRPS)
	assert.Equal(t, "http://127.0.0.1:8777", cfg.Device.BridgeURL)
	assert.Equal(t, 10, cfg.Device.TimeoutSeconds)
}

func TestAutoProcessOptOut(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/vitalsync.db
remote:
  base_url: https://api.example.com
queue:
  auto_process: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.AutoProcessEnabled())
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("VITALSYNC_REMOTE_URL", "https://env.example.com")

	path := writeConfig(t, `
database:
  path: /tmp/vitalsync.db
remote:
  base_url: ${VITALSYNC_REMOTE_URL}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.Remote.BaseURL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing db path", func(c *Config) { c.Database.Path = "" }, "database path"},
		{"missing remote url", func(c *Config) { c.Remote.BaseURL = "" }, "base_url"},
		{"bad attempts", func(c *Config) { c.Queue.MaxAttempts = 0 }, "max_attempts"},
		{"bad batch size", func(c *Config) { c.Sync.BatchSize = -1 }, "batch_size"},
		{"redis without address", func(c *Config) { c.Redis.Enabled = true }, "redis address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Database.Path = "/tmp/db"
			cfg.Remote.BaseURL = "https://api.example.com"
			cfg.applyDefaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
