package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DukeRupert/sitetier/internal"
	"github.com/DukeRupert/sitetier/internal/billing"
	"github.com/DukeRupert/sitetier/internal/csrf"
	"github.com/DukeRupert/sitetier/internal/handler"
	"github.com/DukeRupert/sitetier/internal/jobs"
	"github.com/DukeRupert/sitetier/internal/metrics"
	"github.com/DukeRupert/sitetier/internal/middleware"
	"github.com/DukeRupert/sitetier/internal/repository"
	"github.com/DukeRupert/sitetier/internal/service"
	"github.com/DukeRupert/sitetier/internal/worker"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if err := internal.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	repo := repository.New(db)

	// ==========================================================================
	// Services
	// ==========================================================================

	mailer, err := internal.NewMailer(cfg, logger)
	if err != nil {
		return fmt.Errorf("mailer initialization failed: %w", err)
	}

	tierService := service.NewTierService(repo, logger)
	notificationService := service.NewNotificationService(repo, mailer, logger)

	var billingService billing.Service
	if cfg.StripeSecretKey != "" {
		billingService = billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.StripeCurrency)
		logger.Info("Stripe billing enabled", "currency", cfg.StripeCurrency)
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, subscriptions are disabled")
	}

	renderer, err := handler.NewRenderer(handler.RendererConfig{
		Currency: cfg.StripeCurrency,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("renderer initialization failed: %w", err)
	}
	logger.Info("Templates loaded", "count", len(renderer.ListTemplates()))

	// ==========================================================================
	// Middleware
	// ==========================================================================

	isSecure := cfg.Env != "development"

	loginFailures := middleware.NewRateLimiter(5, 15*time.Minute)
	defer loginFailures.Stop()
	webhookLimiter := middleware.NewRateLimiter(120, time.Minute)
	defer webhookLimiter.Stop()

	adminAuth := middleware.NewAdminAuthMiddleware(cfg.AdminUsername, cfg.AdminPasswordHash, loginFailures, logger)
	if cfg.AdminPasswordHash == "" {
		logger.Warn("ADMIN_PASSWORD_HASH not set, admin pages are unauthenticated")
	}
	requireAdmin := middleware.Stack(adminAuth.RequireAdmin, csrf.Protect)

	webhookLimit := middleware.NewRateLimitMiddleware(webhookLimiter, logger).Limit
	metricsAuth := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword, loginFailures, logger)
	requestLogging := middleware.NewRequestLoggingMiddleware(logger)
	securityHeaders := middleware.NewSecurityHeadersMiddleware(isSecure)

	// ==========================================================================
	// Routes
	// ==========================================================================

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	handler.NewTierHandler(handler.TierHandlerConfig{
		TierService: tierService,
		Billing:     billingService,
		Renderer:    renderer,
		SiteID:      cfg.SiteID,
		BaseURL:     cfg.BaseURL,
		IsSecure:    isSecure,
		Logger:      logger,
	}).RegisterRoutes(mux, requireAdmin)

	handler.NewWebhookHandler(billingService, tierService, repo, logger).RegisterRoutes(mux, webhookLimit)

	root := middleware.Stack(
		securityHeaders.Handler,
		requestLogging.Handler,
		metrics.Middleware,
	)(mux)

	// ==========================================================================
	// Background work
	// ==========================================================================

	var bgWorker *worker.Worker
	if cfg.WorkerEnabled {
		workerCfg := worker.DefaultConfig()
		workerCfg.Concurrency = cfg.WorkerConcurrency
		workerCfg.PollInterval = cfg.WorkerPollInterval
		workerCfg.JobTimeout = cfg.WorkerJobTimeout

		workerCfg.StaleJobThreshold = max(workerCfg.StaleJobThreshold, 3*workerCfg.JobTimeout)

		bgWorker, err = worker.New(worker.NewPostgresQueue(db, repo), workerCfg, logger)
		if err != nil {
			return fmt.Errorf("worker initialization failed: %w", err)
		}
		bgWorker.Register(jobs.NewCheckNotificationsHandler(tierService, notificationService, logger))
		bgWorker.Register(jobs.NewSendWelcomeHandler(notificationService, logger))
		bgWorker.Start(ctx)

		go worker.NewScheduler(repo, cfg.NotifyInterval, logger).Run(ctx)
	} else {
		logger.Info("Worker disabled, run sitectl notify from cron instead")
	}

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env, "site_id", cfg.SiteID)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}
	logger.Info("Shutdown signal received, initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	if bgWorker != nil {
		bgWorker.Stop()
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
