package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"spendsync/internal/domain/item"
	"spendsync/internal/domain/plaidsync"
	"spendsync/internal/domain/refresh"
	"spendsync/internal/infrastructure/crypto"
	"spendsync/internal/infrastructure/plaid"
	"spendsync/internal/infrastructure/postgres"
	"spendsync/internal/shared/config"
	"spendsync/internal/shared/logger"
)

const usage = `SpendSync Admin CLI - Management commands for the sync engine

Usage:
  admin <command> [options]

Commands:
  refresh       Run a data refresh now for one or more users
  refresh-all   Run a data refresh now for every user with linked items
  status        Show the latest refresh job of a user
  sync-item     Run a single sync pass for one Plaid item
  link-item     Store a Plaid item and its access token for a user

Examples:
  # Refresh a specific user
  admin refresh --user-id=1

  # Refresh several users with 4 concurrent workers
  admin refresh --user-id=1,2,3 --workers=4

  # Refresh everyone, giving up after an hour
  admin refresh-all --workers=8 --timeout=1h

  # Show refresh status
  admin status --user-id=1

  # Sync one item
  admin sync-item --item-id=item-sandbox-123

  # Link a sandbox item, then sync it
  admin link-item --user-id=1 --item-id=item-sandbox-123 --access-token=access-sandbox-abc --sync
`

// app holds the components every command needs. Commands run outside the API
// process, so refreshes run inline and never touch the API's queue.
type app struct {
	log     *zap.SugaredLogger
	db      *postgres.DB
	items   *postgres.ItemRepository
	users   *postgres.UserRepository
	sync    *plaidsync.Service
	refresh *refresh.Service
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, usage)
}

func main() {
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "refresh":
		runRefresh(os.Args[2:], false)
	case "refresh-all":
		runRefresh(os.Args[2:], true)
	case "status":
		runStatus(os.Args[2:])
	case "sync-item":
		runSyncItem(os.Args[2:])
	case "link-item":
		runLinkItem(os.Args[2:])
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage(os.Stdout)
		os.Exit(1)
	}
}

func newApp() *app {
	log := logger.Get()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Info("Connected to database")

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		log.Fatalf("Failed to create encryptor: %v", err)
	}

	itemRepo := postgres.NewItemRepository(db, encryptor)
	userRepo := postgres.NewUserRepository(db)
	plaidClient := plaid.NewClient(plaid.Config{
		ClientID:          cfg.Plaid.ClientID,
		Secret:            cfg.Plaid.Secret,
		BaseURL:           cfg.Plaid.BaseURL,
		PageSize:          cfg.Plaid.PageSize,
		RequestsPerSecond: cfg.Plaid.RequestsPerSecond,
	})
	syncService := plaidsync.NewService(plaidClient, itemRepo, postgres.NewSyncStore(db, encryptor), logger.Named("plaidsync"))
	refreshService := refresh.NewService(postgres.NewRefreshJobRepository(db), userRepo, itemRepo, syncService, nil, refresh.Config{
		IntervalHours:     cfg.Refresh.IntervalHours,
		Attempts:          cfg.Refresh.Attempts,
		FanOutConcurrency: cfg.Refresh.FanOutConcurrency,
	}, logger.Named("refresh"))

	return &app{log: log, db: db, items: itemRepo, users: userRepo, sync: syncService, refresh: refreshService}
}

func runRefresh(args []string, all bool) {
	name := "refresh"
	if all {
		name = "refresh-all"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)

	userIDStr := fs.String("user-id", "", "User ID(s) to refresh (comma-separated for multiple)")
	workers := fs.Int("workers", 1, "Number of concurrent workers")
	timeoutStr := fs.String("timeout", "30m", "Timeout for the operation (e.g., 5m, 1h)")

	fs.Usage = func() {
		fmt.Printf("Usage: admin %s [options]\n", name)
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if !all && *userIDStr == "" {
		fmt.Println("Error: must specify --user-id")
		fs.Usage()
		os.Exit(1)
	}

	timeout, err := time.ParseDuration(*timeoutStr)
	if err != nil {
		logger.Get().Fatalf("Invalid timeout format: %v", err)
	}

	a := newApp()
	defer a.db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var userIDs []int64
	if all {
		userIDs, err = a.users.ListUserIDs(ctx)
		if err != nil {
			a.log.Fatalf("Failed to list users: %v", err)
		}
		a.log.Infof("Found %d users with linked items", len(userIDs))
	} else {
		userIDs, err = parseUserIDs(*userIDStr)
		if err != nil {
			a.log.Fatalf("%v", err)
		}
	}

	if len(userIDs) == 0 {
		a.log.Info("No users to process")
		return
	}

	a.log.Infof("Starting refresh for %d user(s) with %d workers", len(userIDs), *workers)
	startTime := time.Now()

	var mu sync.Mutex
	failed := 0

	var g errgroup.Group
	g.SetLimit(max(*workers, 1))
	for _, userID := range userIDs {
		g.Go(func() error {
			job, err := a.refresh.RunRefresh(ctx, userID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
			}
			printRefreshResult(userID, job, err)
			return nil
		})
	}
	_ = g.Wait()

	a.log.Infof("Refresh completed in %v (%d of %d failed)", time.Since(startTime), failed, len(userIDs))
	if failed > 0 {
		os.Exit(1)
	}
}

func printRefreshResult(userID int64, job *refresh.Job, err error) {
	fmt.Printf("\n=== User %d ===\n", userID)
	if errors.Is(err, refresh.ErrRefreshInProgress) {
		fmt.Printf("  Skipped:  %s\n", refresh.MsgRefreshInProgress)
		return
	}
	if job != nil {
		fmt.Printf("  Job:      %d\n", job.ID)
		fmt.Printf("  Status:   %s\n", job.Status)
	}
	if err != nil {
		fmt.Printf("  Error:    %v\n", err)
	}
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	userID := fs.Int64("user-id", 0, "User ID")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *userID <= 0 {
		fmt.Println("Error: must specify --user-id")
		fs.Usage()
		os.Exit(1)
	}

	a := newApp()
	defer a.db.Close()

	ctx := context.Background()
	exists, err := a.users.Exists(ctx, *userID)
	if err != nil {
		a.log.Fatalf("Failed to look up user: %v", err)
	}
	if !exists {
		a.log.Fatalf("User %d not found", *userID)
	}

	status, err := a.refresh.GetRefreshStatus(ctx, *userID)
	if err != nil {
		a.log.Fatalf("Failed to get refresh status: %v", err)
	}

	fmt.Printf("\n=== User %d ===\n", *userID)
	fmt.Printf("  Status:          %s\n", status.Status)
	if status.JobType != "" {
		fmt.Printf("  Job type:        %s\n", status.JobType)
	}
	printTime("Last refresh:", status.LastRefreshTime)
	printTime("Next scheduled:", status.NextScheduledTime)
	if status.ErrorMessage != nil {
		fmt.Printf("  Error:           %s\n", *status.ErrorMessage)
	}
}

func printTime(label string, t *time.Time) {
	if t == nil {
		return
	}
	fmt.Printf("  %-16s %s\n", label, t.Local().Format(time.RFC1123))
}

func runSyncItem(args []string) {
	fs := flag.NewFlagSet("sync-item", flag.ExitOnError)
	itemID := fs.String("item-id", "", "Plaid item ID")
	timeoutStr := fs.String("timeout", "10m", "Timeout for the operation (e.g., 5m, 1h)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *itemID == "" {
		fmt.Println("Error: must specify --item-id")
		fs.Usage()
		os.Exit(1)
	}

	timeout, err := time.ParseDuration(*timeoutStr)
	if err != nil {
		logger.Get().Fatalf("Invalid timeout format: %v", err)
	}

	a := newApp()
	defer a.db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, err := a.sync.SyncItem(ctx, *itemID)
	if err != nil {
		a.log.Fatalf("Sync failed: %v", err)
	}

	fmt.Printf("\n=== Item %s ===\n", *itemID)
	fmt.Printf("  Added:     %d\n", result.Added)
	fmt.Printf("  Modified:  %d\n", result.Modified)
	fmt.Printf("  Removed:   %d\n", result.Removed)
}

func runLinkItem(args []string) {
	fs := flag.NewFlagSet("link-item", flag.ExitOnError)
	userID := fs.Int64("user-id", 0, "Owning user ID")
	itemID := fs.String("item-id", "", "Plaid item ID")
	accessToken := fs.String("access-token", "", "Plaid access token for the item")
	institutionID := fs.String("institution-id", "", "Plaid institution ID (optional)")
	syncNow := fs.Bool("sync", false, "Run a sync pass after linking")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	params := item.CreateParams{UserID: *userID, PlaidItemID: *itemID, AccessToken: *accessToken}
	if *institutionID != "" {
		params.InstitutionID = institutionID
	}
	if err := params.Validate(); err != nil {
		fmt.Printf("Error: %v\n", err)
		fs.Usage()
		os.Exit(1)
	}

	a := newApp()
	defer a.db.Close()

	ctx := context.Background()
	it, err := a.items.Create(ctx, params)
	if err != nil {
		a.log.Fatalf("Failed to link item: %v", err)
	}
	a.log.Infow("Item linked", "id", it.ID, "userId", it.UserID, "plaidItemId", it.PlaidItemID)

	if !*syncNow {
		return
	}
	result, err := a.sync.SyncItem(ctx, it.PlaidItemID)
	if err != nil {
		a.log.Fatalf("Sync failed: %v", err)
	}
	a.log.Infow("Initial sync applied", "added", result.Added, "modified", result.Modified, "removed", result.Removed)
}

func parseUserIDs(s string) ([]int64, error) {
	var ids []int64
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID '%s': %w", p, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
