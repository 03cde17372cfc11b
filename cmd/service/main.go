// cmd/service/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"repo-sync/internal/api"
	"repo-sync/internal/config"
	"repo-sync/internal/database"
	"repo-sync/internal/discovery"
	"repo-sync/internal/github"
	"repo-sync/internal/scheduler"
	"repo-sync/internal/service"
	"repo-sync/internal/syncer"
	"repo-sync/internal/webhook"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Application startup error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Initialize structured logger
	logLevel := new(slog.LevelVar)
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// 2. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setLogLevel(cfg.LogLevel, logLevel)
	logger.Info("Configuration loaded successfully")

	// 3. Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Initialize database connection and run migrations
	dbpool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbpool.Close()
	if err := dbpool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to reach database: %w", err)
	}
	logger.Info("Database connection established")

	if err := runMigrations(cfg.DBURL); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	logger.Info("Database migrations applied successfully")

	// 5. Initialize application components
	app, err := newApp(cfg, database.NewStore(dbpool), logger)
	if err != nil {
		return err
	}

	// 6. Start background workers and the HTTP server
	app.queue.Start(ctx)
	defer app.queue.Stop()
	app.service.Start(ctx)
	defer app.service.Stop()
	if err := app.sweeper.Start(ctx); err != nil {
		return err
	}
	defer app.sweeper.Stop()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// 7. Wait for shutdown signal
	logger.Info("Application started. Waiting for shutdown signal...")
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received. Exiting.")
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server failed", "error", err)
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	return nil
}

type app struct {
	service *service.Service
	queue   *syncer.Queue
	sweeper *scheduler.Sweeper
	router  http.Handler
}

// newApp wires every component from cfg on top of store.
func newApp(cfg *config.Config, store database.Store, logger *slog.Logger) (*app, error) {
	clients, err := github.NewFactory(cfg.GithubAPIURL, cfg.GithubHTTPTimeout, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client factory: %w", err)
	}

	retry := github.DefaultRetryPolicy()
	retry.MaxElapsed = cfg.RetryMaxElapsed

	appSyncer := syncer.NewSyncer(store, clients, syncer.Options{
		Lease:                cfg.SyncLease,
		CommitPageSize:       cfg.CommitPageSize,
		FileMaxDepth:         cfg.FileMaxDepth,
		FileInlineMaxBytes:   cfg.FileInlineMaxBytes,
		EventFreshnessWindow: cfg.EventFreshnessWindow,
		Retry:                retry,
	}, logger)

	queue := syncer.NewQueue(appSyncer, store, syncer.QueueOptions{
		Size:    cfg.SyncQueueSize,
		Workers: cfg.SyncWorkers,
		Delay:   cfg.SyncQueueDelay,
	}, logger)

	webhooks := webhook.NewManager(store, clients, webhook.Options{
		CallbackURL:      cfg.WebhookCallbackURL,
		Secret:           cfg.WebhookSecret,
		FailureThreshold: cfg.WebhookFailureThreshold,
		Retry:            retry,
	}, logger)

	svc := service.New(store, discovery.New(clients, retry, logger), appSyncer, queue, webhooks, service.Options{
		FreshnessWindow:   cfg.FreshnessWindow,
		AutoSubscribe:     cfg.WebhookAutoSubscribe && cfg.WebhookCallbackURL != "",
		DeliveryQueueSize: cfg.WebhookQueueSize,
		DeliveryWorkers:   cfg.WebhookWorkers,
	}, logger)

	sweeper, err := scheduler.NewSweeper(store, svc, cfg.SweepSchedule, cfg.SweepConcurrency, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		service: svc,
		queue:   queue,
		sweeper: sweeper,
		router:  api.NewRouter(svc, cfg.WebhookSecret, logger),
	}, nil
}

func runMigrations(dbURL string) error {
	m, err := migrate.New("file://migrations", dbURL)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func setLogLevel(level string, v *slog.LevelVar) {
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}
