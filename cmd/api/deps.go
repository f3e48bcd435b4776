package main

import (
	"context"
	"fmt"

	"spendsync/internal/domain/plaidsync"
	"spendsync/internal/domain/refresh"
	"spendsync/internal/infrastructure/crypto"
	"spendsync/internal/infrastructure/plaid"
	"spendsync/internal/infrastructure/postgres"
	"spendsync/internal/infrastructure/queue"
	httphandlers "spendsync/internal/interfaces/http"
	"spendsync/internal/shared/auth"
	"spendsync/internal/shared/config"
	"spendsync/internal/shared/logger"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB *postgres.DB

	// Handlers
	HealthHandler      *httphandlers.HealthHandler
	RefreshHandler     *httphandlers.RefreshHandler
	WebhookHandler     *httphandlers.WebhookHandler
	AccountHandler     *httphandlers.AccountHandler
	TransactionHandler *httphandlers.TransactionHandler

	// Auth
	JWT *auth.JWT

	// Background refresh
	SyncService    *plaidsync.Service
	RefreshService *refresh.Service
	RefreshQueue   *queue.Memory[refresh.JobData]
}

// NewDependencies initializes all application dependencies.
func NewDependencies(cfg *config.Config) (*Dependencies, error) {
	log := logger.Get()

	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	log.Infow("Connected to database", "host", cfg.Database.Host, "name", cfg.Database.DBName)

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	// Repositories
	itemRepo := postgres.NewItemRepository(db, encryptor)
	accountRepo := postgres.NewAccountRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)
	refreshJobRepo := postgres.NewRefreshJobRepository(db)
	userRepo := postgres.NewUserRepository(db)
	syncStore := postgres.NewSyncStore(db, encryptor)

	// Provider client and sync engine
	plaidClient := plaid.NewClient(plaid.Config{
		ClientID:          cfg.Plaid.ClientID,
		Secret:            cfg.Plaid.Secret,
		BaseURL:           cfg.Plaid.BaseURL,
		PageSize:          cfg.Plaid.PageSize,
		RequestsPerSecond: cfg.Plaid.RequestsPerSecond,
	})
	syncService := plaidsync.NewService(plaidClient, itemRepo, syncStore, logger.Named("plaidsync"))

	// Refresh queue and scheduler
	refreshQueue := queue.NewMemory[refresh.JobData](refresh.QueueName, queue.Config{
		Workers:        cfg.Refresh.WorkerCount,
		RetainTerminal: cfg.Refresh.QueueRetain,
	}, logger.Named("queue"))
	refreshService := refresh.NewService(refreshJobRepo, userRepo, itemRepo, syncService, refreshQueue, refresh.Config{
		IntervalHours:     cfg.Refresh.IntervalHours,
		Attempts:          cfg.Refresh.Attempts,
		BackoffBase:       cfg.Refresh.BackoffBase,
		SettleDelay:       cfg.Refresh.SettleDelay,
		FanOutConcurrency: cfg.Refresh.FanOutConcurrency,
	}, logger.Named("refresh"))

	jwt := auth.NewJWT(cfg.JWT.Secret)
	httpLog := logger.Named("http")

	return &Dependencies{
		DB:                 db,
		HealthHandler:      httphandlers.NewHealthHandler(db),
		RefreshHandler:     httphandlers.NewRefreshHandler(refreshService, httpLog),
		WebhookHandler:     httphandlers.NewWebhookHandler(refreshService, itemRepo, httpLog),
		AccountHandler:     httphandlers.NewAccountHandler(itemRepo, accountRepo, httpLog),
		TransactionHandler: httphandlers.NewTransactionHandler(transactionRepo, httpLog),
		JWT:                jwt,
		SyncService:        syncService,
		RefreshService:     refreshService,
		RefreshQueue:       refreshQueue,
	}, nil
}

// StartRefresh brings up the refresh queue. With refreshes disabled the queue
// still runs so manual and webhook requests are served; only the scheduled
// chains are skipped.
func StartRefresh(ctx context.Context, deps *Dependencies, cfg *config.Config) error {
	log := logger.Get()

	if err := deps.RefreshService.Start(ctx); err != nil {
		return err
	}
	if err := deps.RefreshQueue.Start(); err != nil {
		return fmt.Errorf("failed to start refresh queue: %w", err)
	}

	if !cfg.Refresh.Enabled || !cfg.Refresh.InitializeOnStart {
		log.Infow("Scheduled refreshes disabled", "enabled", cfg.Refresh.Enabled, "initializeOnStart", cfg.Refresh.InitializeOnStart)
		return nil
	}

	n, err := deps.RefreshService.InitializeScheduledRefreshes(ctx, cfg.Refresh.IntervalHours)
	if err != nil {
		return err
	}
	log.Infow("Scheduled refreshes started", "users", n, "intervalHours", cfg.Refresh.IntervalHours)
	return nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}
