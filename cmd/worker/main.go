package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kursadbilgin/notedrop/internal/config"
	"github.com/kursadbilgin/notedrop/internal/infra/postgresql"
	"github.com/kursadbilgin/notedrop/internal/infra/postgresql/migrations"
	"github.com/kursadbilgin/notedrop/internal/observability"
	"github.com/kursadbilgin/notedrop/internal/queue"
	"github.com/kursadbilgin/notedrop/internal/repository"
	"github.com/kursadbilgin/notedrop/internal/service"
	"github.com/kursadbilgin/notedrop/internal/webhook"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN, postgresql.DefaultMaxOpenConns)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	policy, err := cfg.RetryPolicy()
	if err != nil {
		logger.Fatal("invalid retry policy", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	notes := repository.NewGormNoteRepo(db)

	executor, err := service.NewDeliveryExecutor(notes, webhook.NewClient(cfg.WebhookTimeout), policy, logger)
	if err != nil {
		logger.Fatal("delivery executor initialization failed", zap.Error(err))
	}
	executor.SetMetrics(metrics)

	scheduler, err := service.NewClaimScheduler(notes, executor, cfg.PollInterval, cfg.WorkerConcurrency, logger)
	if err != nil {
		logger.Fatal("claim scheduler initialization failed", zap.Error(err))
	}
	scheduler.SetMetrics(metrics)

	reaper, err := service.NewStaleLockReaper(notes, cfg.StaleLockTimeout, cfg.ReaperInterval, logger)
	if err != nil {
		logger.Fatal("stale lock reaper initialization failed", zap.Error(err))
	}
	reaper.SetMetrics(metrics)

	router := chi.NewRouter()
	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	router.Mount("/metrics", metrics.Handler())
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WorkerHTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return scheduler.Start(groupCtx)
	})
	g.Go(func() error {
		return reaper.Start(groupCtx)
	})
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("worker http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if cfg.RabbitMQURL != "" {
		rabbit, err := queue.NewRabbitMQ(ctx, cfg.RabbitMQURL)
		if err != nil {
			logger.Warn("rabbitmq unavailable, relying on polling only", zap.Error(err))
		} else {
			consumer := queue.NewRabbitMQConsumer(rabbit, logger)
			defer consumer.Close() //nolint:errcheck
			g.Go(func() error {
				return consumer.Consume(groupCtx, func(ctx context.Context, msg queue.DueMessage) error {
					observability.WithContextLogger(logger, observability.WithNoteID(ctx, msg.NoteID)).
						Debug("due note hint received")
					scheduler.Wake()
					return nil
				})
			})
		}
	}

	logger.Info("notedrop worker started",
		zap.Int("loops", cfg.WorkerConcurrency),
		zap.Duration("pollInterval", cfg.PollInterval),
		zap.Int("httpPort", cfg.WorkerHTTPPort),
	)

	if err := g.Wait(); err != nil {
		logger.Error("worker stopped with error", zap.Error(err))
	}
	logger.Info("notedrop worker stopped")
}
