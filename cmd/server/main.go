// Package main provides the entry point for the loan service HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/finlend/loan-service/internal/config"
	"github.com/finlend/loan-service/internal/database"
	"github.com/finlend/loan-service/internal/domain"
	"github.com/finlend/loan-service/internal/flags"
	"github.com/finlend/loan-service/internal/kafka"
	"github.com/finlend/loan-service/internal/observability"
	"github.com/finlend/loan-service/internal/outbox"
	"github.com/finlend/loan-service/internal/repository"
	httpserver "github.com/finlend/loan-service/internal/server/http"
	"github.com/finlend/loan-service/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("loan-service server starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	// Run migrations if configured.
	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	// Register Prometheus metrics.
	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics()
	}

	// Parse the approval threshold.
	threshold, err := cfg.Loan.ApprovalThresholdDecimal()
	if err != nil {
		return err
	}

	// Create the Kafka producer and the outbox machinery.
	producer := kafka.NewProducer(cfg.Kafka.Brokers, logger)
	defer func() {
		if closeErr := producer.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close kafka producer")
		}
	}()

	poller := outbox.NewPoller(outbox.PollerConfig{
		Interval:       cfg.Outbox.PollInterval,
		BatchSize:      cfg.Outbox.BatchSize,
		PublishTimeout: cfg.Outbox.PublishTimeout,
	}, repository.NewPgOutboxRepository(db.Pool()), producer, metrics, logger)

	// Create the loan service and the flag provider the HTTP layer consults.
	flagProvider := flags.NewStaticProvider(map[string]bool{
		flags.ManualApproval: cfg.Loan.ManualApprovalEnabled,
	})
	writer := outbox.NewWriter(cfg.Kafka.Topic)
	loanService := service.NewLoanService(
		db,
		db.Pool(),
		writer,
		domain.Dec(threshold),
		metrics,
		logger,
	)

	// Create the HTTP server.
	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	if cfg.Metrics.Enabled {
		httpCfg.MetricsPath = cfg.Metrics.Path
	}

	httpSrv := httpserver.NewServer(httpCfg, loanService, flagProvider, db, metrics, logger)

	// Start background loops.
	poller.Start()

	var gaugeRefresher *service.GaugeRefresher
	if metrics != nil {
		gaugeRefresher = service.NewGaugeRefresher(db.Pool(), metrics, cfg.Loan.MetricsRefreshInterval, logger)
		gaugeRefresher.Start()
	}

	// Start HTTP server in background.
	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	logger.Info().
		Str("http_address", httpCfg.Address).
		Str("kafka_topic", cfg.Kafka.Topic).
		Msg("loan-service is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down loan-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// Stop the poller last so entries committed during shutdown still drain.
	if gaugeRefresher != nil {
		if err := gaugeRefresher.Stop(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("gauge refresher shutdown error")
		}
	}
	if err := poller.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("outbox poller shutdown error")
	}

	logger.Info().Msg("loan-service shutdown complete")
	return nil
}
