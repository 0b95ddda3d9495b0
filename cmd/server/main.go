package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	httpAdapter "github.com/tallyhq/tally/internal/adapter/http"
	"github.com/tallyhq/tally/internal/adapter/http/handler"
	postgresRepo "github.com/tallyhq/tally/internal/adapter/repository/postgres"
	redisRepo "github.com/tallyhq/tally/internal/adapter/repository/redis"
	"github.com/tallyhq/tally/internal/infrastructure/alert"
	"github.com/tallyhq/tally/internal/infrastructure/config"
	"github.com/tallyhq/tally/internal/infrastructure/logger"
	"github.com/tallyhq/tally/internal/infrastructure/metrics"
	"github.com/tallyhq/tally/internal/infrastructure/postgres"
	"github.com/tallyhq/tally/internal/infrastructure/redis"
	"github.com/tallyhq/tally/internal/infrastructure/scheduler"
	"github.com/tallyhq/tally/internal/usecase"
)

func main() {
	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})
	log.Logger = appLogger

	ctx := context.Background()

	// Connect to PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, cfg.DatabaseMinConns)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()
	appLogger.Info().Msg("connected to postgres")

	// Apply pending migrations
	if path := os.Getenv("MIGRATIONS_PATH"); path != "" {
		if err := postgres.RunMigrations(appLogger, cfg.DatabaseURL, path); err != nil {
			appLogger.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	// Connect to Redis
	redisClient, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	appLogger.Info().Msg("connected to redis")

	appMetrics := metrics.New()

	// Initialize repositories
	txManager := postgresRepo.NewTxManager(pool)
	accountRepo := postgresRepo.NewAccountRepository(pool)
	transactionRepo := postgresRepo.NewTransactionRepository(pool)
	entryRepo := postgresRepo.NewEntryRepository(pool)
	ledgerRepo := postgresRepo.NewLedgerRepository(pool)
	idempotencyStore := redisRepo.NewIdempotencyStore(redisClient, cfg.IdempotencyLease, cfg.IdempotencyRetention)
	retrier := postgresRepo.NewRetrier(appLogger)
	idGen := postgresRepo.NewULIDGenerator()
	clock := usecase.SystemClock{}

	// Alerting: log always, webhook when configured
	var alertSink usecase.AlertSink = alert.NewLogSink(appLogger)
	if cfg.ReconcileWebhookURL != "" {
		alertSink = alert.NewWebhookSink(cfg.ReconcileWebhookURL)
	}

	// Initialize use cases
	accountUC := usecase.NewAccountUseCase(accountRepo, idGen, clock)
	postingUC := usecase.NewPostingUseCase(txManager, accountRepo, transactionRepo, entryRepo, idempotencyStore, retrier, idGen, clock)
	transactionUC := usecase.NewTransactionUseCase(transactionRepo, accountRepo)
	balanceUC := usecase.NewBalanceUseCase(accountRepo, entryRepo)
	reversalUC := usecase.NewReversalUseCase(transactionRepo, postingUC)
	reconciliationUC := usecase.NewReconciliationUseCase(accountRepo, balanceUC, ledgerRepo, alertSink, clock)

	// Periodic reconciliation
	recScheduler := scheduler.New(reconciliationUC, appMetrics, appLogger)
	if err := recScheduler.Start(cfg.ReconcileSchedule); err != nil {
		appLogger.Fatal().Err(err).Msg("failed to start reconciliation scheduler")
	}
	defer recScheduler.Stop()

	// Create router
	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		AccountHandler:        handler.NewAccountHandler(accountUC),
		TransactionHandler:    handler.NewTransactionHandler(postingUC, transactionUC, reversalUC),
		BalanceHandler:        handler.NewBalanceHandler(balanceUC, entryRepo),
		ReconciliationHandler: handler.NewReconciliationHandler(reconciliationUC),
		HealthHandler:         handler.NewHealthHandler(pool, redisClient),
		Logger:                appLogger,
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	// Start server in goroutine
	go func() {
		appLogger.Info().Str("port", cfg.HTTPPort).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info().Msg("shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	appLogger.Info().Msg("server stopped")
}
