package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pocketchat/pocketchat/internal/client/cache"
	"github.com/pocketchat/pocketchat/internal/client/config"
	"github.com/pocketchat/pocketchat/internal/client/creds"
	"github.com/pocketchat/pocketchat/internal/client/kvstore"
	"github.com/pocketchat/pocketchat/internal/client/locking"
	"github.com/pocketchat/pocketchat/internal/client/outbox"
	"github.com/pocketchat/pocketchat/internal/client/remote"
	"github.com/pocketchat/pocketchat/internal/client/settings"
	"github.com/pocketchat/pocketchat/internal/client/sync"
	"github.com/pocketchat/pocketchat/internal/logging"

	_ "modernc.org/sqlite"
)

// App ties the client components together and executes REPL commands.
type App struct {
	config *config.Config
	db     *sql.DB

	creds  *creds.StoreProvider
	cache  *cache.Store
	outbox *outbox.Outbox
	engine *sync.Engine
	logger logging.Logger

	reader *bufio.Reader
	out    io.Writer
}

// NewApp opens the local database and wires up the client services.
func NewApp(cfg *config.Config) (*App, error) {

	ctx := context.Background()

	db, err := kvstore.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	store := kvstore.NewSQLiteStore(db)

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	locks := locking.NewRegistry()
	credsProvider := creds.NewStoreProvider(store)
	settingsRepo := settings.NewRepository(store)
	cacheStore := cache.NewStore(store, cfg.CacheBudgetBytes, logger)

	ob := outbox.New(outbox.Config{
		TTL:         cfg.QueueTTL,
		MaxAttempts: cfg.MaxAttempts,
		MaxItems:    cfg.MaxQueueLength,
		LockTimeout: cfg.LockTimeout,
	}, store, locks, credsProvider, settingsRepo,
		func(baseURL string) outbox.Sender { return remote.NewClient(baseURL, cfg.HTTPTimeout) },
		logger)

	engine := sync.NewEngine(store, cacheStore, credsProvider, settingsRepo, locks,
		func(baseURL string) sync.API { return remote.NewClient(baseURL, cfg.HTTPTimeout) },
		logger)

	return &App{
		config: cfg,
		db:     db,
		creds:  credsProvider,
		cache:  cacheStore,
		outbox: ob,
		engine: engine,
		logger: logger,
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}, nil
}

// Close releases the local database.
func (a *App) Close() error {
	return a.db.Close()
}

// Run starts the REPL and blocks until the user exits.
func (a *App) Run(ctx context.Context) {
	defer a.Close()

	fmt.Fprintln(a.out, "pocketchat CLI (type 'help' for commands)")
	runREPL(ctx, a, bufio.NewScanner(os.Stdin), a.out)
}
