package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"civicportal/config"
	"civicportal/controllers"
	"civicportal/middlewares"
	"civicportal/repository"
	"civicportal/routes"
	"civicportal/services"
	"civicportal/storage"
	authUtils "civicportal/utils"

	"github.com/gin-gonic/gin"
)

const issueLimitWindow = 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := config.NewLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	issues, users, closeDB, err := openRepositories(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	limiter, closeLimiter, err := newIssueLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLimiter()

	if err := os.MkdirAll(cfg.Upload.Dir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	uploader := storage.NewImageUploader(storage.NewLocalFileStore(cfg.Upload.Dir, cfg.Upload.URLPrefix), cfg.Upload.MaxBytes)
	tokens := authUtils.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL)

	issueService := services.NewIssueService(issues, uploader, logger)
	userService := services.NewUserService(users, tokens, cfg.Auth.IsAdminEmail, logger)

	router := routes.NewRouter(routes.Deps{
		Logger:         logger,
		Tokens:         tokens,
		Users:          users,
		IssueLimiter:   limiter,
		Auth:           controllers.NewAuthController(userService),
		Issues:         controllers.NewIssueController(issueService, uploader.MaxBytes()),
		Accounts:       controllers.NewUserController(userService),
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		UploadDir:      cfg.Upload.Dir,
		UploadURL:      cfg.Upload.URLPrefix,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", srv.Addr), slog.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openRepositories(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.IssueRepository, repository.UserRepository, func(), error) {
	if cfg.Database.Driver == config.DriverMemory {
		logger.Warn("using in-memory storage, data is lost on restart")
		return repository.NewMemoryIssueRepository(), repository.NewMemoryUserRepository(), func() {}, nil
	}

	client, db, err := config.ConnectDB(ctx, cfg.Database)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Info("MongoDB connection established", slog.String("database", cfg.Database.Name))

	closeDB := func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.Timeout)
		defer cancel()
		if err := client.Disconnect(ctx); err != nil {
			logger.Warn("MongoDB disconnect failed", slog.Any("error", err))
		}
	}

	issues := repository.NewMongoIssueRepository(db, cfg.Database.Timeout)
	users := repository.NewMongoUserRepository(db, cfg.Database.Timeout)
	if err := issues.EnsureIndexes(ctx); err != nil {
		closeDB()
		return nil, nil, nil, fmt.Errorf("issue indexes: %w", err)
	}
	if err := users.EnsureIndexes(ctx); err != nil {
		closeDB()
		return nil, nil, nil, fmt.Errorf("user indexes: %w", err)
	}
	return issues, users, closeDB, nil
}

// newIssueLimiter returns a nil Limiter when the daily limit is disabled.
func newIssueLimiter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (middlewares.Limiter, func(), error) {
	limit := cfg.Redis.IssueDailyLimit
	if limit == 0 {
		logger.Warn("issue submission limit disabled")
		return nil, func() {}, nil
	}
	if !cfg.Redis.Enabled() {
		logger.Info("issue submission limit is per process", slog.Int("limit", limit))
		return middlewares.NewLocalLimiter(limit, issueLimitWindow), func() {}, nil
	}

	client, err := config.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Redis connection established", slog.String("addr", cfg.Redis.Addr))
	limiter := middlewares.NewRedisLimiter(client, cfg.Redis.IssueLimitQueue, limit, issueLimitWindow)
	return limiter, func() { _ = client.Close() }, nil
}
