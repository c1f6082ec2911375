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

	"github.com/kursadbilgin/notedrop/internal/config"
	infraredis "github.com/kursadbilgin/notedrop/internal/infra/redis"
	"github.com/kursadbilgin/notedrop/internal/observability"
	"github.com/kursadbilgin/notedrop/internal/receiver"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

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

	rdb, err := infraredis.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	guard, err := infraredis.NewRedisGuard(rdb, cfg.IdempotencyTTL)
	if err != nil {
		logger.Fatal("idempotency guard initialization failed", zap.Error(err))
	}

	effect := receiver.LogSideEffect(logger)
	if cfg.SinkAlwaysFail {
		effect = receiver.FailingSideEffect()
		logger.Warn("sink configured to fail every delivery")
	}

	rcv, err := receiver.NewReceiver(guard, effect, logger)
	if err != nil {
		logger.Fatal("receiver initialization failed", zap.Error(err))
	}
	metrics := observability.NewMetrics()
	rcv.SetMetrics(metrics)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.SinkPort),
		Handler:           receiver.NewRouter(rcv, metrics, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Info("notedrop sink started", zap.Int("port", cfg.SinkPort))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("sink server stopped", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("sink shutdown failed", zap.Error(err))
	}
	logger.Info("notedrop sink stopped")
}
