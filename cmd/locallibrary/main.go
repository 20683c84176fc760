package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/locallibrary/locallibrary/cmd/locallibrary/cli"
	"github.com/locallibrary/locallibrary/internal/app"
	"github.com/locallibrary/locallibrary/internal/auth"
	"github.com/locallibrary/locallibrary/internal/authz"
	"github.com/locallibrary/locallibrary/internal/catalog"
	"github.com/locallibrary/locallibrary/internal/observability"
	"github.com/locallibrary/locallibrary/internal/platform/cache"
	"github.com/locallibrary/locallibrary/internal/platform/db"
	"github.com/locallibrary/locallibrary/internal/shared"
	"github.com/locallibrary/locallibrary/internal/users"
	"github.com/locallibrary/locallibrary/internal/view"
	"github.com/locallibrary/locallibrary/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}

	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "serve":
		case "migrate":
			os.Exit(migrate(ctx, cfg, logger))
		case "jobs":
			jobsCLI := cli.NewJobsCLI(redisOpts)
			code := jobsCLI.Run(ctx, args[1:], os.Stdout, os.Stderr)
			if err := jobsCLI.Close(); err != nil {
				logger.Warn("jobs cli close", slog.Any("error", err))
			}
			os.Exit(code)
		default:
			logger.Error("unknown command", slog.String("command", args[0]))
			os.Exit(2)
		}
	}

	if err := serve(ctx, stop, cfg, logger, redisOpts); err != nil {
		logger.Error("server", slog.Any("error", err))
		os.Exit(1)
	}
}

func migrate(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		logger.Error("migrate", slog.Any("error", err))
		return 1
	}
	logger.Info("schema up to date")
	return 0
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger, redisOpts asynq.RedisClientOpt) error {
	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return err
	}
	defer dbpool.Close()
	if err := db.Migrate(ctx, dbpool); err != nil {
		return err
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		return err
	}
	metrics := observability.NewMetrics()

	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	usersRepo := users.NewRepository(dbpool)
	authService := auth.NewService(usersRepo)
	authzMiddleware := authz.Middleware{Resolver: authService, Logger: logger, Observer: metrics}

	usersService := users.NewService(usersRepo, users.NewResetTokens(cfg.ResetTokenSecret, cfg.ResetTokenTTL), jobClient, logger)
	catalogService := catalog.NewService(catalog.NewRepository(dbpool), logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Templates:      templates,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Authz:          authzMiddleware,
		AuthHandler:    auth.NewHandler(logger, authService, templates, sessionManager, csrfManager, authzMiddleware),
		UsersHandler:   users.NewHandler(logger, usersService, templates, csrfManager, authzMiddleware),
		CatalogHandler: catalog.NewHandler(logger, catalogService, templates, csrfManager),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
		HealthChecks: map[string]app.HealthCheck{
			"postgres": dbpool.Ping,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
