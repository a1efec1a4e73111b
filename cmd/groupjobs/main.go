package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"groupjobs/internal/config"
	"groupjobs/internal/constants"
	"groupjobs/internal/corruption"
	"groupjobs/internal/database"
	apperrors "groupjobs/internal/errors"
	"groupjobs/internal/jobstore"
	"groupjobs/internal/models"
	"groupjobs/internal/retry"
	"groupjobs/internal/tracing"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("groupjobs %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := apperrors.NewLogger().Logger

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting groupjobs")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	applyLogLevel(logger, cfg.LogLevel, *verbose)

	tracingCfg := cfg.Tracing
	if tracingCfg.ServiceVersion == "" {
		tracingCfg.ServiceVersion = Version
	}
	tracingManager := tracing.NewTracingManager(tracingCfg, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	statePath := cfg.Database.CorruptionStatePath
	if statePath == "" {
		statePath = corruption.StatePathFor(cfg.Database.Path)
	}
	detector, err := corruption.NewDetector(statePath, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize corruption detector: %w", err)
	}
	if state := detector.State(); state.Flagged {
		logger.WithFields(logrus.Fields{
			"flagged_at": state.FlaggedAt,
			"reason":     state.Reason,
			"path":       statePath,
		}).Warn("Database was flagged as corrupted by a previous run")
	}

	store := jobstore.New(logger, detector)

	watcher := config.NewConfigWatcher(*configPath, logger)
	watcher.OnConfigChange(func(c *models.Config) {
		applyLogLevel(logger, c.LogLevel, *verbose)
	})
	go func() {
		if err := watcher.Start(ctx); err != nil {
			logger.WithError(err).Warn("Configuration watcher stopped")
		}
	}()

	server := NewServer(cfg, db, store, detector, logger)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

// openDatabase retries while the file is locked by another process.
func openDatabase(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (*database.Database, error) {
	backoffConfig := retry.FromRetryConfig(cfg.Retry)
	backoffConfig.MaxAttempts = constants.DefaultDatabaseRetryAttempts
	backoff := retry.NewBackoff(backoffConfig)

	var db *database.Database
	err := backoff.RetryWithPredicate(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path, &cfg.Database)
		if initErr != nil {
			apperrors.WrapLogger(logger).LogRetryableError(initErr, "Failed to initialize database", logrus.Fields{
				"path": cfg.Database.Path,
			})
		}
		return initErr
	}, func(err error) bool {
		return apperrors.IsRetryable(err) || database.IsRetryableDBError(err)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	return db, nil
}

func applyLogLevel(logger *logrus.Logger, configured string, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		return
	}

	level, err := logrus.ParseLevel(configured)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", configured)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}
