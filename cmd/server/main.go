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

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tshopco/tshop/internal"
	"github.com/tshopco/tshop/internal/billing"
	"github.com/tshopco/tshop/internal/design"
	designhttp "github.com/tshopco/tshop/internal/design/httpapi"
	designmock "github.com/tshopco/tshop/internal/design/mock"
	"github.com/tshopco/tshop/internal/domain"
	"github.com/tshopco/tshop/internal/fulfillment"
	"github.com/tshopco/tshop/internal/fulfillment/mock"
	"github.com/tshopco/tshop/internal/fulfillment/printful"
	"github.com/tshopco/tshop/internal/fulfillment/printify"
	"github.com/tshopco/tshop/internal/handler"
	"github.com/tshopco/tshop/internal/jobs"
	"github.com/tshopco/tshop/internal/metrics"
	"github.com/tshopco/tshop/internal/middleware"
	"github.com/tshopco/tshop/internal/repository"
	"github.com/tshopco/tshop/internal/service"
	"github.com/tshopco/tshop/internal/storage"
	"github.com/tshopco/tshop/internal/worker"
)

// syncSweepInterval is how often the periodic fulfillment sweep is enqueued.
const syncSweepInterval = 15 * time.Minute

// syncSweepLimit bounds one periodic sweep.
const syncSweepLimit = 100

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	// Initialize repository
	repo := repository.New(db)

	// Initialize storage backend
	store, err := newStorage(cfg, logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}

	// Initialize fulfillment providers
	providers, err := newProviders(cfg, logger)
	if err != nil {
		return fmt.Errorf("provider initialization failed: %w", err)
	}
	logger.Info("Fulfillment providers ready", "enabled", cfg.EnabledProviders)

	// Initialize design generation backend
	generator, err := newGenerator(cfg, logger)
	if err != nil {
		return fmt.Errorf("design generator initialization failed: %w", err)
	}

	// Initialize services
	quoteService := service.NewQuoteService(providers, cfg.QuoteTimeout, cfg.ProviderQualityRanking, logger)
	usageService := service.NewUsageService(repo, cfg.GuestTokenSecret, logger)
	fulfillmentService := service.NewFulfillmentService(repo, quoteService, providers, logger)
	partnerService := service.NewPartnerService(repo, logger)
	designService := service.NewDesignService(repo, usageService, generator, store, service.NewImagingProcessor(), logger)

	// Stripe is optional in development; checkout returns 501 without it.
	var billingService billing.Service
	if cfg.StripeSecretKey != "" && cfg.StripeWebhookSecret != "" {
		billingService = billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
		logger.Info("Stripe billing enabled")
	} else {
		logger.Warn("Stripe not configured, checkout disabled")
	}

	// Initialize background worker
	var jobWorker *worker.Worker
	if cfg.WorkerEnabled {
		workerCfg := worker.DefaultConfig()
		workerCfg.Concurrency = cfg.WorkerConcurrency
		workerCfg.PollInterval = cfg.WorkerPollInterval
		workerCfg.JobTimeout = cfg.WorkerJobTimeout

		jobWorker, err = worker.New(db, repo, workerCfg, logger)
		if err != nil {
			return fmt.Errorf("worker initialization failed: %w", err)
		}
		jobWorker.Register(jobs.NewDispatchOrderHandler(fulfillmentService, logger))
		jobWorker.Register(jobs.NewSyncFulfillmentHandler(fulfillmentService, logger))
		jobWorker.Register(jobs.NewNotifyPartnerHandler(repo, partnerService, logger))
		jobWorker.Start(ctx)
	}

	// Initialize middleware
	isSecure := cfg.Env != "development"
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure)
	metricsAuth := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)
	internalAuth := middleware.NewInternalAuthMiddleware(cfg.SyncToken)
	subjectMw := middleware.NewSubjectMiddleware(usageService, logger)
	partnerAuth := middleware.NewPartnerAuthMiddleware(partnerService, logger)
	apiLimits := middleware.NewAPIRateLimiter(logger)

	// Initialize handlers
	quoteHandler := handler.NewQuoteHandler(quoteService, logger)
	designHandler := handler.NewDesignHandler(designService, usageService, logger)
	checkoutHandler := handler.NewCheckoutHandler(repo, quoteService, billingService, cfg.BaseURL, logger)
	webhookHandler := handler.NewWebhookHandler(billingService, fulfillmentService, repo, webhookSecrets(cfg), logger)
	syncHandler := handler.NewSyncHandler(fulfillmentService, repo, cfg.EnabledProviders, logger)
	partnerHandler := handler.NewPartnerHandler(partnerService, repo, logger)
	healthHandler := handler.NewHealthHandler(db)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	quoteHandler.RegisterRoutes(mux, apiLimits)
	designHandler.RegisterRoutes(mux, subjectMw, apiLimits)
	checkoutHandler.RegisterRoutes(mux, apiLimits)
	webhookHandler.RegisterRoutes(mux)
	syncHandler.RegisterRoutes(mux, internalAuth.Handler)
	partnerHandler.RegisterRoutes(mux, internalAuth.Handler, partnerAuth.RequirePartner)
	healthHandler.RegisterRoutes(mux)

	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	// Generated design images are served straight off disk in development.
	if cfg.StorageProvider == "local" {
		fileFS := http.FileServer(http.Dir(cfg.LocalStoragePath))
		mux.Handle("GET /files/", http.StripPrefix("/files/", fileFS))
	}

	chain := middleware.Stack(loggingMw.Handler, securityMw.Handler, metrics.Middleware)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: chain(mux),
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Periodically enqueue the reconciliation sweep so orders whose webhooks
	// were lost still converge.
	sweepStop := make(chan struct{})
	if cfg.WorkerEnabled {
		go runSweepScheduler(ctx, repo, logger, sweepStop)
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	close(sweepStop)

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	if jobWorker != nil {
		jobWorker.Stop()
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// newStorage selects the storage backend from configuration.
func newStorage(cfg *internal.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.StorageProvider == "r2" {
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

// newProviders builds the enabled fulfillment provider clients.
func newProviders(cfg *internal.Config, logger *slog.Logger) ([]fulfillment.Provider, error) {
	providers := make([]fulfillment.Provider, 0, len(cfg.EnabledProviders))
	for _, name := range cfg.EnabledProviders {
		switch name {
		case domain.ProviderPrintful:
			p, err := printful.New(printful.Config{APIKey: cfg.PrintfulAPIKey}, logger)
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)
		case domain.ProviderPrintify:
			p, err := printify.New(printify.Config{APIKey: cfg.PrintifyAPIKey, ShopID: cfg.PrintifyShopID}, logger)
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)
		case domain.ProviderMock:
			providers = append(providers, mock.New(logger))
		default:
			return nil, fmt.Errorf("unknown fulfillment provider: %s", name)
		}
	}
	return providers, nil
}

// newGenerator selects the design generation backend from configuration.
func newGenerator(cfg *internal.Config, logger *slog.Logger) (design.Generator, error) {
	if cfg.DesignProvider == "http" {
		return designhttp.New(designhttp.Config{
			APIURL: cfg.DesignAPIURL,
			APIKey: cfg.DesignAPIKey,
			Config: design.Config{
				MaxRetries:     cfg.DesignMaxRetries,
				RetryBaseDelay: cfg.DesignRetryBaseDelay,
				RequestTimeout: cfg.DesignRequestTimeout,
			},
		}, logger)
	}
	return designmock.New(logger), nil
}

// webhookSecrets maps each enabled provider to its webhook signing secret.
// Providers without a secret are omitted, which disables their endpoint.
func webhookSecrets(cfg *internal.Config) map[string]string {
	secrets := make(map[string]string)
	if cfg.PrintfulWebhookSecret != "" {
		secrets[domain.ProviderPrintful] = cfg.PrintfulWebhookSecret
	}
	if cfg.PrintifyWebhookSecret != "" {
		secrets[domain.ProviderPrintify] = cfg.PrintifyWebhookSecret
	}
	// The mock provider only runs in development; a fixed secret keeps its
	// webhook flow testable end to end.
	if cfg.Env == "development" {
		secrets[domain.ProviderMock] = "dev-mock-secret"
	}
	return secrets
}

// runSweepScheduler enqueues a fulfillment sync sweep on a fixed interval
// until stop is closed.
func runSweepScheduler(ctx context.Context, repo *repository.Queries, logger *slog.Logger, stop <-chan struct{}) {
	ticker := time.NewTicker(syncSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := worker.EnqueueSyncFulfillment(ctx, repo, syncSweepLimit); err != nil {
				logger.Error("Failed to enqueue sync sweep", "error", err)
			}
		}
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
