package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jonboulle/clockwork"

	"github.com/careportal/careportal/cmd/portal/cli"
	"github.com/careportal/careportal/internal/app"
	"github.com/careportal/careportal/internal/audit"
	audithttp "github.com/careportal/careportal/internal/audit/http"
	"github.com/careportal/careportal/internal/auth"
	"github.com/careportal/careportal/internal/dashboard"
	"github.com/careportal/careportal/internal/guard"
	"github.com/careportal/careportal/internal/idle"
	"github.com/careportal/careportal/internal/nav"
	"github.com/careportal/careportal/internal/observability"
	"github.com/careportal/careportal/internal/platform/cache"
	"github.com/careportal/careportal/internal/platform/db"
	"github.com/careportal/careportal/internal/rbac"
	"github.com/careportal/careportal/internal/roles"
	"github.com/careportal/careportal/internal/session"
	"github.com/careportal/careportal/internal/shared"
	"github.com/careportal/careportal/internal/view"
	"github.com/careportal/careportal/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		if err := runJobs(ctx, cfg, os.Args[2:]); err != nil {
			logger.Error("jobs command", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server", slog.Any("error", err))
		os.Exit(1)
	}
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) error {
	jobsCLI := cli.NewJobsCLI(cfg.Redis().Queue())
	defer jobsCLI.Close()
	if len(args) == 1 && args[0] == "purge" {
		args = append(args, fmt.Sprint(cfg.AuditRetentionDays))
	}
	return cli.RunJobs(ctx, jobsCLI, args, os.Stdout)
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.Database())
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	registry := roles.Default()
	if cfg.RoleTablePath != "" {
		registry, err = roles.Load(cfg.RoleTablePath)
		if err != nil {
			return fmt.Errorf("load role table: %w", err)
		}
	}

	clock := clockwork.NewRealClock()
	secure := cfg.IsProduction()

	var auditSink shared.AuditSink = shared.NopAuditSink{}
	if cfg.AuditEnabled {
		queue, err := jobs.NewClient(cfg.Redis().Queue())
		if err != nil {
			return fmt.Errorf("init job client: %w", err)
		}
		defer queue.Close()
		auditSink = audit.NewRecorder(queue, logger, clock)
	}

	store := session.NewStore(redisClient, cfg.RefreshTokenTTL, cfg.IdleTimeout)
	issuer := auth.NewIssuer(cfg.TokenSecret, cfg.AccessTokenTTL, clock)
	authService := auth.NewService(auth.NewRepository(pool), store, issuer, clock)
	artifacts := session.NewArtifacts(session.NewMarker(cfg.IdleTimeout, secure), cfg.RefreshTokenTTL, secure)

	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret, secure)
	metrics := observability.NewMetrics()
	evaluator := rbac.DefaultEvaluator()
	gate := rbac.Middleware{Evaluator: evaluator, Logger: logger, Audit: auditSink}
	menu := nav.NewBuilder(nav.Items(), evaluator, registry)

	templates, err := view.NewEngine(append(app.Decorators(cfg, csrfManager), menu.Decorator())...)
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	inspector := asynq.NewInspector(cfg.Redis().Queue())
	defer inspector.Close()

	router := app.NewRouter(app.RouterParams{
		Logger:      logger,
		Config:      cfg,
		CSRFManager: csrfManager,
		Guard: guard.New(guard.Config{
			Registry:  registry,
			Service:   authService,
			Artifacts: artifacts,
			Clock:     clock,
			Logger:    logger,
			Audit:     auditSink,
			Metrics:   metrics,
		}),
		RBAC:               gate,
		Metrics:            metrics,
		AuthHandler:        auth.NewHandler(logger, authService, templates, artifacts, registry, auditSink),
		PublicHandler:      dashboard.NewPublicHandler(logger, templates, dashboard.PublicPages()),
		DashboardHandler:   dashboard.NewHandler(logger, templates, registry, menu, gate, app.DedicatedPaths...),
		RolesHandler:       roles.NewHandler(logger, registry, templates, gate.RequireAny(shared.PermRolesView)),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, evaluator, templates),
		AuditHandler:       audithttp.NewHandler(logger, audit.NewService(audit.NewStore(pool)), templates, gate, clock),
		IdleHandler: idle.NewHandler(idle.HandlerConfig{
			Budget:  cfg.IdleTimeout,
			Window:  cfg.IdleWarning,
			Store:   store,
			Auth:    authService,
			Clock:   clock,
			Logger:  logger,
			Audit:   auditSink,
			Metrics: metrics,
		}),
		JobHandler: jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
