// Package bootstrap assembles the long-running processes (HTTP server,
// background worker) from their collaborator packages, so both the
// standalone cmd/server and cmd/worker binaries and the cobra
// subcommands in internal/cli share one wiring path instead of
// duplicating it.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taskfabric/backbone/internal/api"
	"github.com/taskfabric/backbone/internal/clock"
	"github.com/taskfabric/backbone/internal/config"
	"github.com/taskfabric/backbone/internal/directory"
	"github.com/taskfabric/backbone/internal/eventbus"
	"github.com/taskfabric/backbone/internal/reminder"
	"github.com/taskfabric/backbone/internal/task"
	"github.com/taskfabric/backbone/pkg/cache"
	"github.com/taskfabric/backbone/pkg/database"
)

// RunServer starts the HTTP API (task CRUD, health checks, and the
// reminder cron trigger) and blocks until ctx is cancelled or a signal
// arrives.
func RunServer(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dbConfig := database.DefaultPostgresConfig(cfg.DatabaseURL)
	db, err := database.NewPool(ctx, dbConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	logger.Info("connected to database")

	redisConfig := cache.DefaultRedisConfig(cfg.RedisURL)
	redis, err := cache.NewClient(ctx, redisConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redis.Close()
	logger.Info("connected to redis")

	publisher := eventbus.New(redis, eventbus.Config{Logger: logger})
	dir := directory.New(db.Pool)

	taskService := task.NewService(db.Pool, publisher, clock.Real{}, logger)
	taskHandler := task.NewHandler(taskService)

	reminderScheduler := reminder.New(reminder.NewRepository(db.Pool), publisher, dir, reminder.Config{Logger: logger})

	router := chi.NewRouter()
	router.Use(api.RequestID)
	router.Use(api.Recovery(logger))
	router.Use(api.Logger(logger))
	router.Use(api.CORS(cfg.AllowedOrigins))
	router.Use(api.SecureHeaders)
	router.Use(api.ContentSecurityPolicy(api.DefaultCSPConfig()))

	health := api.NewHealthService()
	health.Register("database", db)
	health.Register("redis", redis)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) { api.LivenessHandler()(w, r) })
	router.Get("/ready", func(w http.ResponseWriter, r *http.Request) { health.ReadinessHandler()(w, r) })

	router.Route("/api/v1/tasks", func(r chi.Router) {
		r.Use(api.RequireOwnerID)
		r.Use(directory.Middleware(dir, logger))
		r.Mount("/", taskHandler.Routes())
	})

	// Internal cron trigger: an external scheduler (e.g. a k8s CronJob)
	// calls this to force a reminder scan outside the worker's own
	// ticker, mirrored by the `reminder-scan` cobra subcommand for
	// ad hoc operator use.
	router.Post("/internal/cron/reminders", func(w http.ResponseWriter, r *http.Request) {
		summary, err := reminderScheduler.Scan(r.Context())
		if err != nil {
			logger.Error("cron reminder scan failed", "error", err)
			api.InternalError(w)
			return
		}
		api.RespondJSON(w, http.StatusOK, map[string]any{
			"status":          "ok",
			"reminders_found": summary.Found,
			"reminders_sent":  summary.Sent,
		})
	})

	server := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", "address", cfg.Address())
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed, forcing close", "error", err)
			if err := server.Close(); err != nil {
				return fmt.Errorf("could not close server: %w", err)
			}
		}

		logger.Info("server stopped gracefully")

	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}

	return nil
}

// RunReminderScan runs a single reminder scan pass and returns, for use
// by the `reminder-scan` cobra subcommand (an operational backfill
// trigger, distinct from the worker's continuous ticker).
func RunReminderScan(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	dbConfig := database.DefaultPostgresConfig(cfg.DatabaseURL)
	db, err := database.NewPool(ctx, dbConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	redisConfig := cache.DefaultRedisConfig(cfg.RedisURL)
	redis, err := cache.NewClient(ctx, redisConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redis.Close()

	publisher := eventbus.New(redis, eventbus.Config{Logger: logger})
	dir := directory.New(db.Pool)
	scheduler := reminder.New(reminder.NewRepository(db.Pool), publisher, dir, reminder.Config{Logger: logger})

	summary, err := scheduler.Scan(ctx)
	if err != nil {
		return fmt.Errorf("reminder scan failed: %w", err)
	}

	logger.Info("reminder scan complete", "found", summary.Found, "sent", summary.Sent)
	return nil
}
