package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/branchdesk/internal/app"
	"github.com/odyssey-erp/branchdesk/internal/audit"
	audithttp "github.com/odyssey-erp/branchdesk/internal/audit/http"
	"github.com/odyssey-erp/branchdesk/internal/auth"
	"github.com/odyssey-erp/branchdesk/internal/branches"
	"github.com/odyssey-erp/branchdesk/internal/observability"
	"github.com/odyssey-erp/branchdesk/internal/platform/cache"
	"github.com/odyssey-erp/branchdesk/internal/platform/db"
	"github.com/odyssey-erp/branchdesk/internal/platform/docstore"
	"github.com/odyssey-erp/branchdesk/internal/rbac"
	"github.com/odyssey-erp/branchdesk/internal/shared"
	"github.com/odyssey-erp/branchdesk/internal/users"
	"github.com/odyssey-erp/branchdesk/internal/view"
	"github.com/odyssey-erp/branchdesk/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	store, err := docstore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		logger.Error("connect mongo", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Warn("mongo close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	if err := branches.SetupCacheMetrics(metrics.Registerer()); err != nil {
		logger.Warn("register branch cache metrics", slog.Any("error", err))
	}

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	usersRepo := users.NewRepository(dbpool)
	auditLogger := shared.NewAuditLogger(dbpool)
	rbacService := rbac.NewService(dbpool)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	authService := auth.NewService(auth.NewRepository(dbpool))
	authHandler := auth.NewHandler(logger, authService, usersRepo, templates, sessionManager, csrfManager)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
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

	branchRepo := branches.NewMongoRepository(store.Collection(branches.CollectionName))
	if err := branchRepo.EnsureIndexes(ctx); err != nil {
		logger.Error("ensure branch indexes", slog.Any("error", err))
		os.Exit(1)
	}
	branchService := branches.NewService(branchRepo, branches.NewSchema(), branches.ServiceConfig{
		Cache:         branches.NewCache(redisClient, cfg.BranchCacheTTL),
		Managers:      usersRepo,
		VerifyManager: cfg.BranchVerifyManager,
		Audit:         auditLogger,
		Notifier:      jobClient,
		Logger:        logger,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuthHandler:    authHandler,
		BranchHandler:  branches.NewHandler(logger, branchService, rbacMiddleware),
		AuditHandler:   audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), rbacMiddleware),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
