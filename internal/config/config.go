package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logging    LoggingConfig    `yaml:"logging"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Queue      QueueConfig      `yaml:"queue"`
	Sync       SyncConfig       `yaml:"sync"`
	Remote     RemoteConfig     `yaml:"remote"`
	Auth       AuthConfig       `yaml:"auth"`
	Device     DeviceConfig     `yaml:"device"`
	Network    NetworkConfig    `yaml:"network"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Export     ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type QueueConfig struct {
	MaxAttempts      int   `yaml:"max_attempts"`
	AutoProcess      *bool `yaml:"auto_process"`
	MaxDelaySeconds  int   `yaml:"max_delay_seconds"`
	BaseDelaySeconds struct {
		Critical int `yaml:"critical"`
		High     int `yaml:"high"`
		Normal   int `yaml:"normal"`
		Low      int `yaml:"low"`
	} `yaml:"base_delay_seconds"`
}

type SyncConfig struct {
	BatchSize     int      `yaml:"batch_size"`
	BatchAttempts int      `yaml:"batch_attempts"`
	LookbackDays  int      `yaml:"lookback_days"`
	Categories    []string `yaml:"categories"`
	Schedule      string   `yaml:"schedule"`
	SourceName    string   `yaml:"source_name"`
}

type RemoteConfig struct {
	BaseURL        string  `yaml:"base_url"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

type AuthConfig struct {
	TokenURL     string `yaml:"token_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
}

type DeviceConfig struct {
	BridgeURL      string `yaml:"bridge_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type NetworkConfig struct {
	ProbeAddress         string `yaml:"probe_address"`
	ProbeIntervalSeconds int    `yaml:"probe_interval_seconds"`
	ProbeTimeoutSeconds  int    `yaml:"probe_timeout_seconds"`
}

type MonitoringConfig struct {
	DiagnosticsEnabled bool `yaml:"diagnostics_enabled"`
	DiagnosticsPort    int  `yaml:"diagnostics_port"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

// Load reads the YAML config, expanding ${VAR} references from the
// environment. A .env file next to the binary is loaded first when
// present so secrets never live in the YAML itself.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expanded := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expanded, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Remote.BaseURL == "" {
		return errors.New("remote base_url is required")
	}
	if c.Queue.MaxAttempts < 1 {
		return errors.New("queue max_attempts must be at least 1")
	}
	if c.Sync.BatchSize < 1 {
		return errors.New("sync batch_size must be at least 1")
	}
	if c.Redis.Enabled && c.Redis.Address == "" {
		return errors.New("redis address is required when redis is enabled")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "vitalsync"
	}
	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = 3
	}
	if c.Queue.AutoProcess == nil {
		enabled := true
		c.Queue.AutoProcess = &enabled
	}
	if c.Queue.MaxDelaySeconds == 0 {
		c.Queue.MaxDelaySeconds = 1800
	}
	if c.Queue.BaseDelaySeconds.Critical == 0 {
		c.Queue.BaseDelaySeconds.Critical = 2
	}
	if c.Queue.BaseDelaySeconds.High == 0 {
		c.Queue.BaseDelaySeconds.High = 5
	}
	if c.Queue.BaseDelaySeconds.Normal == 0 {
		c.Queue.BaseDelaySeconds.Normal = 15
	}
	if c.Queue.BaseDelaySeconds.Low == 0 {
		c.Queue.BaseDelaySeconds.Low = 60
	}
	if c.Sync.BatchSize == 0 {
		c.Sync.BatchSize = 100
	}
	if c.Sync.BatchAttempts == 0 {
		c.Sync.BatchAttempts = 3
	}
	if c.Sync.LookbackDays == 0 {
		c.Sync.LookbackDays = 30
	}
	if len(c.Sync.Categories) == 0 {
		c.Sync.Categories = []string{"steps", "heart_rate", "sleep", "workouts"}
	}
	if c.Remote.TimeoutSeconds == 0 {
		c.Remote.TimeoutSeconds = 30
	}
	if c.Remote.RateLimitRPS == 0 {
		c.Remote.RateLimitRPS = 5
	}
	if c.Remote.RateLimitBurst == 0 {
		c.Remote.RateLimitBurst = 10
	}
	if c.Device.BridgeURL == "" {
		c.Device.BridgeURL = "http://127.0.0.1:8777"
	}
	if c.Device.TimeoutSeconds == 0 {
		c.Device.TimeoutSeconds = 10
	}
	if c.Network.ProbeAddress == "" {
		c.Network.ProbeAddress = "1.1.1.1:443"
	}
	if c.Network.ProbeIntervalSeconds == 0 {
		c.Network.ProbeIntervalSeconds = 15
	}
	if c.Network.ProbeTimeoutSeconds == 0 {
		c.Network.ProbeTimeoutSeconds = 5
	}
	if c.Monitoring.DiagnosticsEnabled && c.Monitoring.DiagnosticsPort == 0 {
		c.Monitoring.DiagnosticsPort = 9090
	}
}

// AutoProcessEnabled reports whether an enqueue should trigger a
// processing cycle. On unless explicitly disabled.
func (c *Config) AutoProcessEnabled() bool {
	return c.Queue.AutoProcess == nil || *c.Queue.AutoProcess
}

// RemoteTimeout returns the remote client timeout as a duration.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSeconds) * time.Second
}

// DeviceTimeout returns the device bridge request timeout.
func (c *Config) DeviceTimeout() time.Duration {
	return time.Duration(c.Device.TimeoutSeconds) * time.Second
}

// ProbeInterval returns the connectivity probe interval.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.Network.ProbeIntervalSeconds) * time.Second
}

// ProbeTimeout returns the connectivity probe dial timeout.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Network.ProbeTimeoutSeconds) * time.Second
}
