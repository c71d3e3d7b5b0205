// Package main provides orgctl, the operator CLI for the organization backend.
package main

import (
	"context"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/dispatch-ext/backend/config"
	"github.com/dispatch-ext/backend/pkg/database"
	"github.com/dispatch-ext/backend/pkg/redis"
)

type cliCtx struct {
	context.Context
	cfg    *config.Config
	logger *zap.Logger
}

type cli struct {
	Migrate MigrateCmd `cmd:"" help:"Apply or roll back database migrations"`
	User    UserCmd    `cmd:"" help:"Manage global user roles"`
	Seats   SeatsCmd   `cmd:"" help:"Billed seat maintenance"`
	Debug   bool       `help:"Log at debug level"`
}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.UsageOnError(),
		kong.Name("orgctl"),
		kong.Description("orgctl administers the organization backend"),
	)

	logger := newLogger(c.Debug)
	defer logger.Sync()

	cfg, err := config.Load()
	ctx.FatalIfErrorf(err)

	err = ctx.Run(&cliCtx{Context: context.Background(), cfg: cfg, logger: logger})
	ctx.FatalIfErrorf(err)
}

func newLogger(debug bool) *zap.Logger {
	config := zap.NewDevelopmentConfig()
	if !debug {
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, _ := config.Build()
	return logger
}

func poolOptions(c config.DatabaseConfig) database.PoolOptions {
	return database.PoolOptions{MaxConns: c.MaxConns, MinConns: c.MinConns, MaxConnIdleTime: c.MaxConnIdleTime}
}

func redisOptions(c config.RedisConfig) redis.Options {
	return redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB, PoolSize: c.PoolSize}
}
