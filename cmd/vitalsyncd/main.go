package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"vitalsync/internal/api"
	"vitalsync/internal/auth"
	"vitalsync/internal/config"
	"vitalsync/internal/database"
	"vitalsync/internal/device"
	"vitalsync/internal/events"
	"vitalsync/internal/export"
	"vitalsync/internal/handlers"
	"vitalsync/internal/healthsync"
	"vitalsync/internal/logging"
	"vitalsync/internal/metrics"
	"vitalsync/internal/models"
	"vitalsync/internal/network"
	"vitalsync/internal/queue"
	"vitalsync/internal/remote"
	"vitalsync/internal/repository"
	"vitalsync/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Error().Err(err).Msg("database initialization failed")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()

	redisClient, states := initSyncStates(ctx, cfg, db, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	bus := events.NewBus()
	authManager := auth.NewManager(cfg.Auth, &logger)
	remoteClient := remote.NewClient(cfg.Remote, authManager, &logger)
	monitor := network.NewProbeMonitor(cfg.Network.ProbeAddress, cfg.ProbeInterval(), cfg.ProbeTimeout(), &logger)
	policy := retryPolicy(cfg)

	bridge := device.NewBridgeClient(cfg.Device, &logger)
	uploader := healthsync.NewUploader(remoteClient, policy, cfg.Sync.BatchSize, cfg.Sync.BatchAttempts, &logger)
	orchestrator := healthsync.NewOrchestrator(healthsync.OrchestratorOptions{
		Source:     bridge,
		Uploader:   uploader,
		States:     states,
		Bus:        bus,
		Logger:     &logger,
		SourceName: cfg.Sync.SourceName,
		Lookback:   time.Duration(cfg.Sync.LookbackDays) * 24 * time.Hour,
		Categories: syncCategories(cfg.Sync.Categories),
	})

	registry, err := handlers.NewRegistry(remoteClient, orchestrator, &logger)
	if err != nil {
		return err
	}

	manager := queue.NewManager(queue.ManagerOptions{
		Store:              db,
		Registry:           registry,
		Network:            monitor,
		Auth:               authManager,
		Policy:             policy,
		Bus:                bus,
		Logger:             &logger,
		DisableAutoProcess: !cfg.AutoProcessEnabled(),
	})
	if err := manager.Restore(ctx); err != nil {
		logger.Error().Err(err).Msg("queue restore failed")
		return err
	}

	go monitor.Start(ctx)

	if cfg.Sync.Schedule != "" {
		sched := scheduler.New(orchestrator, &logger)
		if err := sched.Schedule(ctx, cfg.Sync.Schedule); err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	var exporter *export.Exporter
	if cfg.Export.Path != "" {
		exporter = export.NewExporter(cfg.Export, &logger)
	}

	if cfg.Monitoring.DiagnosticsEnabled {
		var reporter api.ReportExporter
		if exporter != nil {
			reporter = exporter
		}
		diagServer := api.NewServer(cfg.Monitoring, manager, orchestrator, reporter, &logger)
		go func() {
			if err := diagServer.Start(); err != nil {
				logger.Error().Err(err).Msg("diagnostics server error")
			}
		}()
		defer func() { _ = diagServer.Shutdown(context.Background()) }()
	}

	logger.Info().Msg("vitalsyncd started")
	<-ctx.Done()

	exportFailedOperations(exporter, manager, &logger)
	logger.Info().Msg("Shutdown complete.")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "main").Logger()
	return cfg, logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("failed to create database directory")
		return err
	}
	if cfg.Export.Path != "" {
		if err := os.MkdirAll(cfg.Export.Path, 0o755); err != nil {
			logger.Error().Err(err).Msg("failed to create export directory")
			return err
		}
	}
	return nil
}

// initSyncStates picks the sync-state store: sqlite alone, or Redis
// in front of sqlite with automatic failover when Redis drops.
func initSyncStates(ctx context.Context, cfg *config.Config, db *database.DB, logger *zerolog.Logger) (*redis.Client, healthsync.StateStore) {
	if !cfg.Redis.Enabled {
		return nil, db
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable")
	}

	primary := repository.NewRedisSyncStateRepository(redisClient, 0)
	return redisClient, repository.NewFailoverSyncStateRepository(primary, db, logger)
}

func retryPolicy(cfg *config.Config) queue.RetryPolicy {
	return queue.RetryPolicy{
		MaxAttempts: cfg.Queue.MaxAttempts,
		BaseDelays: map[models.Priority]time.Duration{
			models.PriorityCritical: time.Duration(cfg.Queue.BaseDelaySeconds.Critical) * time.Second,
			models.PriorityHigh:     time.Duration(cfg.Queue.BaseDelaySeconds.High) * time.Second,
			models.PriorityNormal:   time.Duration(cfg.Queue.BaseDelaySeconds.Normal) * time.Second,
			models.PriorityLow:      time.Duration(cfg.Queue.BaseDelaySeconds.Low) * time.Second,
		},
		MaxDelay: time.Duration(cfg.Queue.MaxDelaySeconds) * time.Second,
	}
}

func syncCategories(names []string) []models.SampleCategory {
	categories := make([]models.SampleCategory, 0, len(names))
	for _, name := range names {
		categories = append(categories, models.SampleCategory(name))
	}
	return categories
}

func exportFailedOperations(exporter *export.Exporter, manager *queue.Manager, logger *zerolog.Logger) {
	if exporter == nil {
		return
	}
	failed := manager.PermanentlyFailedOperations()
	if len(failed) == 0 {
		return
	}

	if _, err := exporter.FailedOperations(failed); err != nil {
		logger.Error().Err(err).Msg("failed operations export failed")
	}
}
