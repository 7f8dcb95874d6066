package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/AnshRaj112/accountd/internal/config"
	"github.com/AnshRaj112/accountd/internal/database"
	"github.com/AnshRaj112/accountd/internal/graph"
	"github.com/AnshRaj112/accountd/internal/handlers"
	"github.com/AnshRaj112/accountd/internal/middleware"
	"github.com/AnshRaj112/accountd/internal/repository"
	"github.com/AnshRaj112/accountd/internal/routes"
	"github.com/AnshRaj112/accountd/internal/services"
	"github.com/AnshRaj112/accountd/pkg/utils"
)

const (
	globalRateEvery   = time.Second
	globalRateBurst   = 10
	attemptRateEvery  = 5 * time.Second
	attemptRateBurst  = 2
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found")
	}
	cfg := config.Load()

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	client, db, err := database.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
	if err != nil {
		return err
	}
	defer database.Disconnect(client)

	// Production limits per IP in process; Redis backs the limiter elsewhere.
	var redisLimiter *middleware.RateLimiter
	if cfg.UsesRedisLimiter() {
		redisClient, err := database.ConnectRedis(ctx, cfg.RedisURI, logger)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		redisLimiter = middleware.NewRateLimiter(redisClient, logger)
	}

	if err := repository.EnsureIndexes(ctx, db); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}
	logger.Info("MongoDB indexes ensured")

	hasher := utils.NewPasswordHasher(utils.HashParams{
		Memory:  cfg.HashMemory,
		Time:    cfg.HashTime,
		Threads: cfg.HashThreads,
	})
	tokens, err := services.NewTokenService(cfg.TokenConfig())
	if err != nil {
		return err
	}
	users := repository.NewMongoUserRepository(db, hasher)

	deps := services.AccountDeps{
		Users:     users,
		Profiles:  repository.NewMongoProfileRepository(db),
		Posts:     repository.NewMongoPostRepository(db),
		Tx:        repository.NewMongoTxManager(client),
		Tokens:    tokens,
		Resets:    services.NewResetLedger(users, cfg.ResetTokenTTL),
		Passwords: hasher,
		Logger:    logger,
	}
	if cfg.CloudinaryEnabled() {
		uploader, err := services.NewCloudinaryService(cfg.CloudinaryName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
		if err != nil {
			logger.Warn("file uploads disabled", zap.Error(err))
		} else {
			deps.Uploader = uploader
			logger.Info("Cloudinary service initialized")
		}
	} else {
		logger.Warn("Cloudinary credentials not found, file uploads disabled")
	}
	if cfg.MailEnabled() {
		mailer, err := services.NewSMTPMailer(cfg.MailHost, cfg.MailPort, cfg.MailUser, cfg.MailPassword, cfg.MailFrom)
		if err != nil {
			return err
		}
		deps.Mailer = mailer
	} else {
		logger.Warn("MAIL_HOST not set, reset mails are only logged")
	}

	accounts := services.NewAccountService(deps, services.AccountOptions{
		ResetURLBase:       cfg.ResetURLBase,
		RevealUnknownEmail: cfg.RevealUnknown,
		UploadFolder:       cfg.UploadFolder,
	})

	attempts := middleware.NewIPLimiters(attemptRateEvery, attemptRateBurst)
	global := middleware.NewIPLimiters(globalRateEvery, globalRateBurst)
	exec, err := graph.NewExecutor(accounts, attempts, logger)
	if err != nil {
		return fmt.Errorf("build schema: %w", err)
	}

	router := routes.NewRouter(routes.Options{
		GraphQL:        handlers.NewGraphQLHandler(exec, logger),
		Tokens:         tokens,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
		Production:     cfg.IsProduction(),
		AllowedHost:    cfg.AllowedHost,
		Global:         global,
		RateLimiter:    redisLimiter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		attempts.Run(ctx)
		return nil
	})
	g.Go(func() error {
		global.Run(ctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("accountd listening", zap.String("addr", srv.Addr), zap.Bool("production", cfg.IsProduction()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse LOG_LEVEL: %w", err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}
