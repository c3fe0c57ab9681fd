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

	"reswatch/internal/api"
	"reswatch/internal/config"
	"reswatch/internal/database"
	"reswatch/internal/domain"
	"reswatch/internal/events"
	"reswatch/internal/export"
	"reswatch/internal/google"
	"reswatch/internal/logging"
	"reswatch/internal/metrics"
	"reswatch/internal/notify"
	"reswatch/internal/resy"
	"reswatch/internal/scheduler"
	"reswatch/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal: %v", err)
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

	if err := prepareDirectories(cfg); err != nil {
		logger.Error().Err(err).Msg("prepare directories")
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Msg("open database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()

	notifier := initNotifier(cfg, logger)
	bus, bridge := initEvents(cfg, logger)
	if bridge != nil {
		defer bridge.Close()
	}

	syncWorker := initHistorySync(ctx, cfg, db, bridge, logger)

	resyClient := resy.New(cfg.Resy, logger)
	sched := scheduler.New(cfg.Scheduler, db, db, resyClient, notifier, bus, syncWorker, logger)
	if err := sched.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("start scheduler")
		return err
	}
	defer sched.Stop()

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, logger)
		go backupService.Start(ctx)
	}

	if cfg.API.Enabled {
		exporter := export.NewExcelExporter(db, cfg.Exports, logger)
		apiServer := api.NewHTTPServer(cfg.API, db, sched, exporter, cfg.Monitoring.PrometheusEnabled, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("api server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = apiServer.Shutdown(shutdownCtx)
		}()
	}

	logger.Info().Msg("watcher running")
	<-ctx.Done()
	logger.Info().Msg("shutting down")
	return nil
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := baseLogger.With().Str("component", "watcher-main").Logger()
	return cfg, &logger, closer, nil
}

func prepareDirectories(cfg *config.Config) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return err
	}
	return os.MkdirAll(cfg.Exports.Path, 0o755)
}

func initNotifier(cfg *config.Config, logger *zerolog.Logger) domain.Notifier {
	if !cfg.Telegram.Enabled {
		logger.Info().Msg("telegram notifications disabled")
		return notify.NopNotifier{}
	}

	notifier, err := notify.NewTelegramNotifier(cfg.Telegram, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram unavailable, notifications disabled")
		return notify.NopNotifier{}
	}
	return notifier
}

// initEvents always returns a usable bus; the redis bridge is attached
// only when redis is configured and reachable.
func initEvents(cfg *config.Config, logger *zerolog.Logger) (*events.EventBus, *events.RedisBridge) {
	bus := events.NewEventBus()
	if cfg.Redis.Address == "" {
		return bus, nil
	}

	bridge, err := events.NewRedisBridge(cfg.Redis, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, events stay in-process")
		return bus, nil
	}

	bridge.Attach(bus,
		events.EventJobUpdated,
		events.EventBookingSuccess,
		events.EventBookingFailed,
		events.EventActionRequired,
	)
	return bus, bridge
}

func initHistorySync(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	bridge *events.RedisBridge,
	logger *zerolog.Logger,
) domain.SyncWorker {
	if cfg.Google.HistorySpreadsheetID == "" {
		logger.Info().Msg("sheets history sync disabled")
		return nil
	}

	sheetsService, err := google.NewSheetsService(cfg.Google.CredentialsFile, cfg.Google.HistorySpreadsheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("sheets service init failed, history sync disabled")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("sheets connection test failed, history sync disabled")
		return nil
	}

	retryPolicy := worker.RetryPolicy{
		MaxRetries:    5,
		InitialDelay:  2 * time.Second,
		MaxDelay:      time.Minute,
		BackoffFactor: 2,
	}

	var redisClient *redis.Client
	if bridge != nil {
		redisClient = bridge.Client()
	}
	historyWorker := worker.NewHistoryWorker(db, sheetsService, redisClient, retryPolicy, logger)
	go historyWorker.Start(ctx)

	logger.Info().Msg("sheets history sync enabled")
	return historyWorker
}
