package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DukeRupert/inkwell/internal"
	"github.com/DukeRupert/inkwell/internal/ai"
	"github.com/DukeRupert/inkwell/internal/ai/anthropic"
	"github.com/DukeRupert/inkwell/internal/ai/mock"
	"github.com/DukeRupert/inkwell/internal/billing"
	"github.com/DukeRupert/inkwell/internal/domain"
	"github.com/DukeRupert/inkwell/internal/handler"
	"github.com/DukeRupert/inkwell/internal/jobs"
	"github.com/DukeRupert/inkwell/internal/metrics"
	"github.com/DukeRupert/inkwell/internal/middleware"
	"github.com/DukeRupert/inkwell/internal/repository"
	"github.com/DukeRupert/inkwell/internal/repository/memory"
	"github.com/DukeRupert/inkwell/internal/scheduler"
	"github.com/DukeRupert/inkwell/internal/service"
	"github.com/DukeRupert/inkwell/internal/storage"
	"github.com/DukeRupert/inkwell/internal/timesource"
	"github.com/DukeRupert/inkwell/internal/worker"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize store
	var (
		store repository.Store
		db    *sql.DB
	)
	switch cfg.StoreDriver {
	case internal.StorePostgres:
		db, err = sql.Open("pgx", cfg.DatabaseUrl)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer db.Close()

		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}

		if err := internal.RunMigrations(ctx, db, logger); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		store = repository.NewStore(db)
		logger.Info("Database ready")
	default:
		store = memory.New()
		logger.Warn("Using in-memory store; data is lost on restart")
	}

	// Trusted clock
	var source timesource.Source = timesource.Local{}
	if cfg.TrustedTimeURL != "" {
		source = timesource.NewHTTPSource(cfg.TrustedTimeURL, cfg.TrustedTimeout)
	}
	clock := timesource.NewTrusted(source, cfg.Location, logger)

	// Initialize archive storage
	archive, err := newStorage(cfg, logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}

	// Initialize services
	ledgerConfig := service.DefaultLedgerConfig()
	ledgerConfig.EntriesPerMonth = cfg.EntriesPerMonth
	ledgerConfig.Location = cfg.Location
	ledger := service.NewQuotaLedger(store, ledgerConfig, logger)

	userService := service.NewUserService(store, logger)
	storyService := service.NewStoryService(store, ledger, clock, cfg.Location, logger)
	submissionService := service.NewSubmissionService(store, ledger, clock, service.SubmissionConfig{
		WordLimits: domain.WordLimits{Min: cfg.MinEntryWords, Max: cfg.MaxEntryWords},
		Location:   cfg.Location,
	}, logger)
	competitionService := service.NewCompetitionService(store, clock, archive, service.CompetitionConfig{
		Schedule: domain.ScheduleConfig{
			SubmissionDays:    cfg.SubmissionDays,
			JudgingDays:       cfg.JudgingDays,
			ResultsOffsetDays: cfg.ResultsOffset,
		},
		Location: cfg.Location,
	}, logger)
	usageService := service.NewUsageResetService(store, clock, cfg.Location, logger)
	purchaseService := service.NewPurchaseService(store, logger)

	var billingService billing.Service
	if cfg.StripeSecretKey != "" {
		billingService = billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, billing.PriceConfig{
			StoryPackPriceID:      cfg.StripeStoryPackPriceID,
			AssessmentPackPriceID: cfg.StripeAssessmentPackPriceID,
			BundlePackPriceID:     cfg.StripeBundlePackPriceID,
		})
	} else {
		logger.Warn("Stripe is not configured; checkout is disabled")
	}

	// ==========================================================================
	// Background work
	// ==========================================================================

	var w *worker.Worker
	if cfg.WorkerEnabled {
		provider, err := newAIProvider(cfg, logger)
		if err != nil {
			return fmt.Errorf("ai provider initialization failed: %w", err)
		}

		workerConfig := worker.DefaultConfig()
		workerConfig.Concurrency = cfg.WorkerConcurrency
		workerConfig.PollInterval = cfg.WorkerPollInterval
		workerConfig.JobTimeout = cfg.WorkerJobTimeout

		w, err = worker.New(store, workerConfig, logger)
		if err != nil {
			return fmt.Errorf("worker initialization failed: %w", err)
		}
		w.Register(jobs.NewAssessStoryHandler(store, ledger, provider, archive, clock, cfg.Location, logger))
		w.Register(jobs.NewAssessEntryHandler(store, provider, logger))
	}

	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		sched, err = scheduler.New(competitionService, usageService, scheduler.Config{
			PhaseInterval: cfg.PhaseInterval,
			MonthlyCron:   cfg.MonthlyCron,
			Location:      cfg.Location,
		}, logger)
		if err != nil {
			return fmt.Errorf("scheduler initialization failed: %w", err)
		}
	}

	// Initialize middleware
	isSecure := cfg.Env != "development"
	authMw := middleware.NewAuthMiddleware(userService, logger)
	cronMw := middleware.NewCronAuthMiddleware(cfg.CronToken,
		middleware.NewRateLimiter(10, 15*time.Minute, logger), logger)
	writeLimiter := middleware.NewWriteRateLimiter(logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	metricsAuth := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)

	if cfg.CronToken == "" {
		logger.Warn("CRON_TOKEN is empty; /cron endpoints reject every request")
	}

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	var pinger handler.Pinger
	if db != nil {
		pinger = db
	}
	handler.NewHealthHandler(pinger, logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	handler.NewStoryHandler(storyService, submissionService, ledger, clock, cfg.Location, logger).
		RegisterRoutes(mux, authMw.RequireUser)
	handler.NewCompetitionHandler(competitionService, logger).
		RegisterRoutes(mux, authMw.RequireUser, authMw.RequireAdmin)
	handler.NewCronHandler(competitionService, usageService, clock, logger).
		RegisterRoutes(mux, cronMw.Handler)
	handler.NewWebhookHandler(billingService, purchaseService, cfg.BaseURL, logger).
		RegisterRoutes(mux, authMw.RequireUser)

	if cfg.StorageProvider == storage.ProviderLocal {
		// Only published results are public; assessment audit files stay private.
		archiveFS := http.FileServer(http.Dir(cfg.LocalStoragePath))
		mux.Handle("GET /archive/results/", http.StripPrefix("/archive/", archiveFS))
	}

	root := middleware.Stack(
		metrics.Middleware,
		securityMw.Handler,
		authMw.WithUser,
		loggingMw.Handler,
		writeLimiter.Route,
	)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	if w != nil {
		w.Start(workerCtx)
	}
	if sched != nil {
		sched.Start()
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "store", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	if sched != nil {
		if err := sched.Stop(); err != nil {
			logger.Error("Scheduler shutdown error", "error", err)
		}
	}
	if w != nil {
		w.Stop()
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

func newStorage(cfg *internal.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.StorageProvider == storage.ProviderR2 {
		return storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		}, logger)
	}
	return storage.NewLocalStorage(storage.LocalConfig{
		BasePath: cfg.LocalStoragePath,
		BaseURL:  cfg.LocalStorageURL,
	}, logger)
}

func newAIProvider(cfg *internal.Config, logger *slog.Logger) (ai.Provider, error) {
	if cfg.AIProvider != "anthropic" {
		return mock.New(logger), nil
	}
	return anthropic.New(anthropic.Config{
		APIKey: cfg.AnthropicAPIKey,
		Model:  cfg.AnthropicModel,
		ProviderConfig: ai.ProviderConfig{
			MaxRetries:     cfg.AIMaxRetries,
			RetryBaseDelay: cfg.AIRetryBaseDelay,
			RequestTimeout: cfg.AIRequestTimeout,
		},
	}, logger)
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
