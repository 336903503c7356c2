package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/vipul43/ledger-sync-worker/internal/config"
	"github.com/vipul43/ledger-sync-worker/internal/connector"
	"github.com/vipul43/ledger-sync-worker/internal/connector/httpapi"
	"github.com/vipul43/ledger-sync-worker/internal/database"
	"github.com/vipul43/ledger-sync-worker/internal/importer"
	"github.com/vipul43/ledger-sync-worker/internal/logger"
	"github.com/vipul43/ledger-sync-worker/internal/repository"
	"github.com/vipul43/ledger-sync-worker/internal/service"
	"github.com/vipul43/ledger-sync-worker/internal/watcher"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logr := logger.NewForEnvironment(cfg.AppEnv, cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = logr.Sync() }()

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(db); err != nil {
			logr.Warn("Failed to close database", zap.Error(err))
		}
	}()
	logr.Info("Database connected successfully")

	// Run migrations
	if err := database.RunMigrations(cfg.DatabaseURL, logr); err != nil {
		return err
	}

	// Initialize repositories
	jobRepo := repository.NewSyncJobRepository(db)
	integrationRepo := repository.NewIntegrationRepository(db)
	syncLogRepo := repository.NewSyncLogRepository(db)
	companyRepo := repository.NewClientCompanyRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	bankAccountRepo := repository.NewBankAccountRepository(db)
	ledgerAccountRepo := repository.NewLedgerAccountRepository(db)

	// Register connectors
	registry := connector.NewRegistry()
	if err := registry.Register(cfg.GenericConnectorCode, httpapi.NewClient()); err != nil {
		return err
	}
	logr.Info("Connectors registered", zap.Strings("codes", registry.Codes()))

	// Initialize services
	invoiceImporter := importer.NewInvoiceImporter(companyRepo, invoiceRepo, logr)
	transactionImporter := importer.NewTransactionImporter(companyRepo, transactionRepo, bankAccountRepo, ledgerAccountRepo, logr)

	notifier := service.NewSyncFailureNotifier(
		repository.NewNotificationRepository(db),
		repository.NewEmailQueueRepository(db),
		repository.NewUserRepository(db),
		nil,
		logr,
	)

	processor := service.NewSyncProcessor(service.ProcessorDeps{
		Jobs:                jobRepo,
		Integrations:        integrationRepo,
		Logs:                syncLogRepo,
		Invoices:            invoiceRepo,
		Transactions:        transactionRepo,
		Connectors:          registry,
		InvoiceImporter:     invoiceImporter,
		TransactionImporter: transactionImporter,
		Notifier:            notifier,
		Logger:              logr,
	}, service.ProcessorConfig{
		ConnectorTimeout: cfg.ConnectorTimeout,
		DefaultLookback:  cfg.DefaultLookback,
		FetchPageSize:    cfg.FetchPageSize,
		PushBatchSize:    cfg.PushBatchSize,
		RetryBatchSize:   cfg.SyncBatchSize,
		Backoff:          service.Backoff{Base: cfg.RetryDelayBase, Max: cfg.RetryDelayMax},
	})

	scheduler := service.NewSyncScheduler(integrationRepo, jobRepo, registry, service.SchedulerConfig{
		PullInterval: cfg.PullSyncInterval,
		MaxRetries:   cfg.MaxRetries,
	}, nil, logr)

	// Initialize watcher
	w := watcher.New(cfg, processor, scheduler, logr)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start watcher in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- w.Start(ctx)
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		logr.Info("Shutdown signal received", zap.String("signal", sig.String()))
		cancel()

		// Wait for graceful shutdown
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()

		select {
		case <-shutdownCtx.Done():
			logr.Warn("Shutdown timeout exceeded")
		case err := <-errChan:
			if err != nil && !errors.Is(err, context.Canceled) {
				logr.Error("Watcher error", zap.Error(err))
			}
		}

		logr.Info("Application stopped")
		return nil

	case err := <-errChan:
		return err
	}
}
