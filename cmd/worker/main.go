// Package main runs the background job worker (seat recounts).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dispatch-ext/backend/config"
	"github.com/dispatch-ext/backend/internal/auth"
	"github.com/dispatch-ext/backend/internal/billing"
	"github.com/dispatch-ext/backend/internal/organizations"
	"github.com/dispatch-ext/backend/internal/rbac"
	"github.com/dispatch-ext/backend/internal/worker"
	"github.com/dispatch-ext/backend/pkg/database"
	"github.com/dispatch-ext/backend/pkg/queue"
	"github.com/dispatch-ext/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), poolOptions(cfg.Database), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, redisOptions(cfg.Redis), logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	orgRepo := organizations.NewRepository(pool)
	authority := rbac.NewAuthority(auth.NewRepository(pool), orgRepo, logger)
	billingSvc := billing.NewService(billing.NewRepository(pool), orgRepo, authority, logger)

	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewSeatProcessor(billingSvc, jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		processor.Run(workerCtx)
		close(done)
	}()
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("worker did not stop in time")
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}

func poolOptions(c config.DatabaseConfig) database.PoolOptions {
	return database.PoolOptions{MaxConns: c.MaxConns, MinConns: c.MinConns, MaxConnIdleTime: c.MaxConnIdleTime}
}

func redisOptions(c config.RedisConfig) redis.Options {
	return redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB, PoolSize: c.PoolSize}
}
