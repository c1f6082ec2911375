package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/notedrop/internal/config"
	"github.com/kursadbilgin/notedrop/internal/handler"
	"github.com/kursadbilgin/notedrop/internal/infra/postgresql"
	"github.com/kursadbilgin/notedrop/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/notedrop/internal/infra/redis"
	"github.com/kursadbilgin/notedrop/internal/observability"
	"github.com/kursadbilgin/notedrop/internal/queue"
	"github.com/kursadbilgin/notedrop/internal/repository"
	"github.com/kursadbilgin/notedrop/internal/service"
	"github.com/kursadbilgin/notedrop/internal/transport"
	"go.uber.org/zap"
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

	rdb, err := infraredis.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	limiter, err := infraredis.NewRedisRateLimiter(rdb, "ratelimit:api", cfg.RateLimitPerMinute, time.Minute)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	var publisher queue.Publisher
	if cfg.RabbitMQURL != "" {
		rabbit, err := queue.NewRabbitMQ(ctx, cfg.RabbitMQURL)
		if err != nil {
			logger.Warn("rabbitmq unavailable, new notes wait for the next poll", zap.Error(err))
		} else {
			p := queue.NewRabbitMQPublisher(rabbit)
			defer p.Close() //nolint:errcheck
			publisher = p
		}
	}

	noteRepo := repository.NewGormNoteRepo(db)
	notes, err := service.NewNoteService(noteRepo, publisher, logger)
	if err != nil {
		logger.Fatal("note service initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()

	app := fiber.New(fiber.Config{
		AppName:               "notedrop-api",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app,
		handler.PingFunc(noteRepo.Ping),
		handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
	)
	if err := handler.RegisterNoteRoutes(app, notes,
		handler.RateLimit(limiter, logger),
		handler.BearerAuth(cfg.AdminToken),
	); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	}()
	logger.Info("notedrop api started", zap.Int("port", cfg.APIPort))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("api server stopped", zap.Error(err))
		}
	}

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Error("api shutdown failed", zap.Error(err))
	}
	logger.Info("notedrop api stopped")
}
