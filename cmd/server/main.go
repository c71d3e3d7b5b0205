package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dispatch-ext/backend/config"
	"github.com/dispatch-ext/backend/internal/auth"
	"github.com/dispatch-ext/backend/internal/authprovider"
	"github.com/dispatch-ext/backend/internal/billing"
	"github.com/dispatch-ext/backend/internal/members"
	"github.com/dispatch-ext/backend/internal/organizations"
	"github.com/dispatch-ext/backend/internal/rbac"
	"github.com/dispatch-ext/backend/internal/server"
	"github.com/dispatch-ext/backend/pkg/database"
	"github.com/dispatch-ext/backend/pkg/queue"
	"github.com/dispatch-ext/backend/pkg/redis"
	"github.com/dispatch-ext/backend/pkg/storage"
	"github.com/dispatch-ext/backend/pkg/telemetry"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()

	tel, err := telemetry.Setup(ctx, cfg.OTel)
	if err != nil {
		logger.Fatal("telemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown", zap.Error(err))
		}
	}()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(cfg.Database.DSN(), "up"); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		logger.Info("migrations applied")
	}

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

	betterAuth := authprovider.NewBetterAuth(cfg.Auth.BetterAuthURL, cfg.Auth.BetterAuthSecret, nil, logger)

	var verifier authprovider.SessionVerifier = betterAuth
	switch cfg.Auth.SessionVerifier {
	case config.VerifierJWT:
		verifier = auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.SessionCookie)
	case config.VerifierFirebase:
		fb, err := auth.NewFirebaseVerifier(ctx, cfg.Auth.FirebaseCredentialsFile)
		if err != nil {
			logger.Fatal("firebase", zap.Error(err))
		}
		verifier = fb
	}

	var provider authprovider.OrganizationAPI = betterAuth
	if cfg.Auth.OrgProvider == config.OrgProviderWorkOS {
		provider = authprovider.NewWorkOS(cfg.Auth.WorkOSAPIKey, logger)
	}
	logger.Info("identity provider configured",
		zap.String("session_verifier", cfg.Auth.SessionVerifier),
		zap.String("org_provider", cfg.Auth.OrgProvider))

	// Logo uploads need S3; without a region the endpoint answers 503.
	var logos organizations.LogoStorage
	if cfg.AWS.Region != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			LogosBucket:     cfg.AWS.LogosBucket,
		}, logger)
		if err != nil {
			logger.Fatal("s3", zap.Error(err))
		}
		logos = s3Client
	} else {
		logger.Warn("AWS_REGION not set, logo uploads disabled")
	}

	var sessionCache auth.SessionCache
	if cfg.Auth.SessionCacheTTL > 0 {
		sessionCache = auth.NewRedisSessionCache(rdb.Client, cfg.Auth.SessionCacheTTL)
	}

	userRepo := auth.NewRepository(pool)
	orgRepo := organizations.NewRepository(pool)
	billingRepo := billing.NewRepository(pool)
	txRunner := database.NewTxRunner(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	resolver := auth.NewResolver(verifier, sessionCache, userRepo, logger)
	authority := rbac.NewAuthority(userRepo, orgRepo, logger)

	orgSvc := organizations.NewService(orgRepo, txRunner, authority, provider, logos, logger)
	memberSvc := members.NewService(orgRepo, userRepo, txRunner, authority, provider, jobQueue, logger)
	billingSvc := billing.NewService(billingRepo, orgRepo, authority, logger)

	tracingService := ""
	if telemetry.Enabled(cfg.OTel) {
		tracingService = cfg.OTel.ServiceName
	}
	router := server.NewRouter(server.Deps{
		Logger:                  logger,
		CORSOrigins:             cfg.Server.CORSAllowedOrigins,
		TracingService:          tracingService,
		OrgCreateSuperAdminOnly: cfg.Auth.OrgCreateSuperAdminOnly,
		Resolver:                resolver,
		SuperAdmin:              authority,
		Auth:                    auth.NewHandler(userRepo, logger),
		Organizations:           organizations.NewHandler(orgSvc),
		Members:                 members.NewHandler(memberSvc),
		Billing:                 billing.NewHandler(billingSvc),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
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
