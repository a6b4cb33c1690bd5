package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/api"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/application"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/application/services"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/config"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/idempotency"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/infrastructure/events"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/infrastructure/persistence/memory"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/infrastructure/persistence/postgres"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/infrastructure/rules"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/interfaces/rest/handlers"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/interfaces/rest/middleware"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/locking"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/security"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting gateway service",
		"port", cfg.Server.Port,
		"driver", cfg.Database.Driver,
		"log_level", cfg.Logger.Level,
	)

	ctx := context.Background()

	var seed []domain.MerchantAccount
	if cfg.Merchants.SeedFile != "" {
		seed, err = memory.LoadMerchantFile(cfg.Merchants.SeedFile)
		if err != nil {
			logger.Error("failed to load merchant seed file", "error", err)
			os.Exit(1)
		}
	}

	var (
		store     application.TransactionStore
		merchants application.MerchantAccountLookup
		idemStore idempotency.Store
		purger    worker.IdempotencyPurger
		health    func(ctx context.Context) error
	)

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		db, err := postgres.Connect(ctx, &cfg.Database, logger)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}

		merchantRepo := postgres.NewMerchantRepository(db)
		if len(seed) > 0 {
			if err := merchantRepo.Upsert(ctx, seed...); err != nil {
				logger.Error("failed to seed merchants", "error", err)
				os.Exit(1)
			}
		}
		idempotencyRepo := postgres.NewIdempotencyRepository(db)

		store = postgres.NewTransactionRepository(db)
		merchants = merchantRepo
		idemStore = idempotencyRepo
		purger = idempotencyRepo
		health = db.Ping

	case config.DriverMemory:
		memoryIdem := idempotency.NewMemoryStore()

		store = memory.NewTransactionStore()
		merchants = memory.NewMerchantStore(seed...)
		idemStore = memoryIdem
		purger = memoryIdem
		logger.Warn("using in-memory storage, state is lost on restart")
	}

	var publisher application.EventPublisher
	if cfg.Kafka.Enabled() {
		kafkaPublisher := events.NewKafkaPublisher(cfg.Kafka, logger)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	} else {
		publisher = events.NewLogPublisher(logger)
	}

	limits, err := rules.ParseLimits(cfg.Limits.MaxAmount)
	if err != nil {
		logger.Error("invalid spending limits", "error", err)
		os.Exit(1)
	}

	locks := locking.NewManager()
	coordinator := services.NewCoordinator(store, locks, publisher, cfg.Lifecycle, logger)
	lifecycle := services.NewLifecycleService(
		store,
		merchants,
		security.NewTokenAuthenticator(),
		coordinator,
		idemStore,
		limits,
		cfg.Lifecycle,
		cfg.Server.PublicBaseURL,
		logger,
	)

	h := handlers.NewHandlers(lifecycle, logger)
	if health != nil {
		h.WithHealthCheck(health)
	}

	mux := http.NewServeMux()
	api.RegisterDocsRoutes(mux)
	h.Register(mux, cfg.Server.InternalAPIKey)

	doc, err := api.Spec()
	if err != nil {
		logger.Error("failed to load api contract", "error", err)
		os.Exit(1)
	}
	validateRequests, err := middleware.OpenAPIValidator(doc, logger)
	if err != nil {
		logger.Error("failed to build request validator", "error", err)
		os.Exit(1)
	}

	handler := validateRequests(mux)
	handler = middleware.Recovery(logger)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Timeout(cfg.Server.ReadTimeout)(handler)

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	expirationWorker := worker.NewExpirationWorker(store, coordinator, cfg.Worker, logger).WithPurger(purger)
	reconciler := worker.NewReconciler(store, coordinator, cfg.Worker, logger)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	go expirationWorker.Start(workerCtx)
	go reconciler.Start(workerCtx)

	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
