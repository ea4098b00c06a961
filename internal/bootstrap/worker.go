package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/taskfabric/backbone/internal/clock"
	"github.com/taskfabric/backbone/internal/config"
	"github.com/taskfabric/backbone/internal/directory"
	"github.com/taskfabric/backbone/internal/email"
	"github.com/taskfabric/backbone/internal/event"
	"github.com/taskfabric/backbone/internal/eventbus"
	"github.com/taskfabric/backbone/internal/idempotency"
	"github.com/taskfabric/backbone/internal/notification"
	"github.com/taskfabric/backbone/internal/push"
	"github.com/taskfabric/backbone/internal/recurrenceengine"
	"github.com/taskfabric/backbone/internal/reminder"
	"github.com/taskfabric/backbone/internal/task"
	"github.com/taskfabric/backbone/pkg/cache"
	"github.com/taskfabric/backbone/pkg/database"
)

// workerMetrics mirrors the original notification-service's Prometheus
// counters (reminders_processed_total, notifications_sent_total) on a
// plain-JSON /metrics shape rather than pulling in a Prometheus client
// library. There is no processing-time metric.
var workerMetrics struct {
	remindersProcessed  atomic.Int64
	notificationsSent   atomic.Int64
	notificationsFailed atomic.Int64
	recurrencesCreated  atomic.Int64
}

// RunWorker assembles the reminder scheduler loop, recurrence engine
// consumer loop, notification dispatcher consumer loop, and an
// idempotency-ledger purge loop (every 5 minutes, dropping claims older
// than IdempotencyTTL) as four goroutines coordinated via errgroup, and
// blocks until ctx is cancelled, a signal arrives, or one of the loops
// fails.
func RunWorker(ctx context.Context, logger *slog.Logger) error {
	workerID := fmt.Sprintf("worker-%s-%d", hostname(), os.Getpid())
	logger.Info("starting worker", "worker_id", workerID)

	cfg, err := config.LoadWorkerConfig()
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

	clk := clock.Real{}
	publisher := eventbus.New(redis, eventbus.Config{
		MaxRetries:    cfg.PublisherMaxRetries,
		EnableBuffer:  cfg.PublisherEnableBuffer,
		MaxBufferSize: cfg.PublisherMaxBufferSize,
		Clock:         clk,
		Logger:        logger,
	})

	ledger := idempotency.New(db.Pool)
	dir := directory.New(db.Pool)
	taskService := task.NewService(db.Pool, publisher, clk, logger)

	scheduler := reminder.New(reminder.NewRepository(db.Pool), publisher, dir, reminder.Config{
		Interval: cfg.ReminderScanInterval,
		Clock:    clk,
		Logger:   logger,
	})

	recurrenceEngine := recurrenceengine.NewEngine(ledger, taskService.Repository(), taskService, logger)

	channels := buildChannels(cfg, logger)
	dispatcher := notification.NewDispatcher(ledger, notification.NewRepository(db.Pool), publisher, channels, notification.Config{
		MaxRetryAttempts: cfg.NotificationMaxRetryAttempts,
		RetryBackoffBase: cfg.NotificationRetryBackoffBase,
		RetryBackoffMax:  cfg.NotificationRetryBackoffMax,
		Clock:            clk,
		Logger:           logger,
	})

	recurrenceConsumer := eventbus.NewConsumer(redis, func(ctx context.Context, env event.Envelope) error {
		if err := recurrenceEngine.HandleTaskCompleted(ctx, env, clk.Now()); err != nil {
			return err
		}
		workerMetrics.recurrencesCreated.Add(1)
		return nil
	}, eventbus.ConsumerConfig{
		Stream:       event.TopicTaskEvents,
		Group:        recurrenceengine.ConsumerService,
		ConsumerName: workerID,
		Logger:       logger,
	})

	notificationConsumer := eventbus.NewConsumer(redis, func(ctx context.Context, env event.Envelope) error {
		err := dispatcher.HandleReminderDue(ctx, env)
		workerMetrics.remindersProcessed.Add(1)
		if err != nil {
			workerMetrics.notificationsFailed.Add(1)
		} else {
			workerMetrics.notificationsSent.Add(1)
		}
		return err
	}, eventbus.ConsumerConfig{
		Stream:       event.TopicReminders,
		Group:        notification.ConsumerService,
		ConsumerName: workerID,
		Logger:       logger,
	})

	healthServer := startHealthServer(cfg.HealthPort, db, redis, logger)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := scheduler.Run(groupCtx); err != nil && groupCtx.Err() == nil {
			return fmt.Errorf("reminder scheduler: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		if err := recurrenceConsumer.Run(groupCtx); err != nil && groupCtx.Err() == nil {
			return fmt.Errorf("recurrence consumer: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		if err := notificationConsumer.Run(groupCtx); err != nil && groupCtx.Err() == nil {
			return fmt.Errorf("notification consumer: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				if _, err := ledger.Purge(groupCtx, clk.Now().Add(-cfg.IdempotencyTTL)); err != nil {
					logger.Error("idempotency purge failed", "error", err)
				}
			}
		}
	})

	logger.Info("worker started",
		"reminder_scan_interval", cfg.ReminderScanInterval,
		"health_port", cfg.HealthPort)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	loopErrors := make(chan error, 1)
	go func() { loopErrors <- group.Wait() }()

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig)
		cancel()
	case err := <-loopErrors:
		if err != nil {
			logger.Error("worker loop failed, shutting down", "error", err)
		}
		cancel()
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("health server shutdown failed", "error", err)
	}

	select {
	case err := <-loopErrors:
		if err != nil {
			logger.Error("worker loop error during shutdown", "error", err)
		}
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, some work may not have finished")
	}

	logger.Info("shutdown complete")
	return nil
}

// buildChannels wires the email and push notification channels from
// worker configuration. An unconfigured SMTP host or push endpoint
// yields a channel whose Send no-ops (email.NoopService) or logs and
// skips (push.Client with no endpoint), so the dispatcher still runs
// end to end in development without a real provider.
func buildChannels(cfg *config.WorkerConfig, logger *slog.Logger) []notification.Channel {
	var emailSvc email.Service
	if cfg.SMTPHost != "" {
		emailSvc = email.NewSMTPService(&email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	} else {
		emailSvc = email.NewNoopService()
	}

	pushClient := push.NewClient(push.Config{
		Endpoint: cfg.PushEndpoint,
		APIKey:   cfg.PushAPIKey,
		Logger:   logger,
	})

	return []notification.Channel{
		notification.NewEmailChannel(emailSvc),
		notification.NewPushChannel(pushClient),
	}
}

func startHealthServer(port int, db *database.Pool, redis *cache.Client, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"status":"ok"}`)
	})

	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		checks := make(map[string]string)
		healthy := true

		if err := db.Health(ctx); err != nil {
			checks["database"] = "unhealthy"
			healthy = false
		} else {
			checks["database"] = "healthy"
		}

		if err := redis.Health(ctx); err != nil {
			checks["redis"] = "unhealthy"
			healthy = false
		} else {
			checks["redis"] = "healthy"
		}

		status := "ready"
		code := http.StatusOK
		if !healthy {
			status = "not_ready"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "checks": checks})
	})

	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"reminders_processed_total":  workerMetrics.remindersProcessed.Load(),
			"notifications_sent_total":   workerMetrics.notificationsSent.Load(),
			"notifications_failed_total": workerMetrics.notificationsFailed.Load(),
			"recurrences_created_total":  workerMetrics.recurrencesCreated.Load(),
		})
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("health server listening", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	return server
}

func hostname() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "unknown"
}
