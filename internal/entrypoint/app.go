package entrypoint

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mrlokans/booksync/internal/assets"
	"github.com/mrlokans/booksync/internal/audit"
	"github.com/mrlokans/booksync/internal/auth"
	"github.com/mrlokans/booksync/internal/booksync"
	"github.com/mrlokans/booksync/internal/config"
	"github.com/mrlokans/booksync/internal/database"
	assetsrepo "github.com/mrlokans/booksync/internal/database/assets"
	auditrepo "github.com/mrlokans/booksync/internal/database/audit"
	"github.com/mrlokans/booksync/internal/database/entries"
	"github.com/mrlokans/booksync/internal/database/userbooks"
	http_controllers "github.com/mrlokans/booksync/internal/http"
	"github.com/mrlokans/booksync/internal/rediscache"
	"github.com/mrlokans/booksync/internal/storage"
)

// PreservedKeys survive ResetAndReload.
var PreservedKeys = []string{"theme-mode", "user_gemini_api_key"}

// App holds the wired sync components shared by the server and CLI commands.
type App struct {
	Config      *config.Config
	LocalDB     *database.Database
	RemoteDB    *database.Database
	Coordinator *booksync.Coordinator
	Audit       *audit.Service

	HealthChecks map[string]http_controllers.HealthCheck

	closers []func() error
}

// Build opens every store named by cfg and wires the sync coordinator.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{
		Config:       cfg,
		HealthChecks: make(map[string]http_controllers.HealthCheck),
	}

	localDB, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize local database: %w", err)
	}
	app.LocalDB = localDB
	app.closers = append(app.closers, localDB.Close)
	app.HealthChecks["local_database"] = localDB.Ping

	local, err := app.openLocalStore(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	remoteDB, err := database.OpenRemote(cfg.Remote.Driver, cfg.Remote.DSN)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.RemoteDB = remoteDB
	app.closers = append(app.closers, remoteDB.Close)
	app.HealthChecks["remote_store"] = remoteDB.Ping

	app.Audit = audit.NewService(auditrepo.NewRepository(localDB.DB))

	opts := booksync.Options{
		BookListFreshness:    cfg.Cache.BookListFreshness,
		BookContentFreshness: cfg.Cache.BookContentFreshness,
		RecentCapacity:       cfg.Cache.RecentCapacity,
		BackgroundBatchSize:  cfg.Cache.BackgroundBatchSize,
		PreservedKeys:        PreservedKeys,
		Reporter:             app.Audit,
		SharedCache:          cfg.Auth.Mode == config.AuthModeNone || cfg.Auth.Mode == "",
	}

	var migrator booksync.AssetMigrator
	if cfg.Assets.Enabled {
		m, catalog, err := app.openAssets(ctx, remoteDB)
		if err != nil {
			app.Close()
			return nil, err
		}
		migrator = m
		opts.Assets = catalog
	} else {
		log.Printf("[ASSETS] Asset storage disabled, ephemeral references stay unmigrated")
	}

	identity := auth.ContextResolver{}
	if cfg.Auth.Mode == config.AuthModeNone || cfg.Auth.Mode == "" {
		identity.Fallback = cfg.Auth.DefaultUserID
	}

	app.Coordinator = booksync.New(local, userbooks.NewRepository(remoteDB.DB), migrator, identity, opts)
	return app, nil
}

func (a *App) openLocalStore(ctx context.Context) (booksync.LocalStore, error) {
	switch a.Config.LocalStore.Driver {
	case config.LocalStoreRedis:
		rc := a.Config.Redis
		store, err := rediscache.NewStore(ctx, rc.Addr, rc.Password, rc.DB, rc.KeyPrefix)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		a.HealthChecks["redis"] = store.Ping
		log.Printf("Local cache: redis at %s (prefix %q)", rc.Addr, rc.KeyPrefix)
		return store, nil
	case config.LocalStoreSQLite, "":
		log.Printf("Local cache: sqlite at %s", a.Config.Database.Path)
		return entries.NewRepository(a.LocalDB.DB), nil
	default:
		return nil, fmt.Errorf("unsupported local store driver %q", a.Config.LocalStore.Driver)
	}
}

func (a *App) openAssets(ctx context.Context, remoteDB *database.Database) (*assets.Migrator, *assets.Catalog, error) {
	ac := a.Config.Assets
	store, err := storage.NewMinioStore(ctx, storage.MinioOptions{
		Endpoint:        ac.Endpoint,
		AccessKey:       ac.AccessKey,
		SecretKey:       ac.SecretKey,
		Bucket:          ac.Bucket,
		UseSSL:          ac.UseSSL,
		PublicBaseURL:   ac.PublicBaseURL,
		PresignLifetime: ac.PresignLifetime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize asset storage: %w", err)
	}

	records := assetsrepo.NewRepository(remoteDB.DB)
	migrator := assets.NewMigrator(store, assets.Options{
		MaxSize:       ac.MaxSize,
		UploadsPerSec: ac.UploadsPerSec,
		UploadBurst:   ac.UploadBurst,
		Records:       records,
	})
	log.Printf("[ASSETS] Asset storage: bucket %s at %s", ac.Bucket, ac.Endpoint)
	return migrator, assets.NewCatalog(records, store), nil
}

// Close stops background work, flushes pending audit writes and closes
// every store in reverse order of opening.
func (a *App) Close() {
	if a.Coordinator != nil {
		a.Coordinator.Close()
	}
	if a.Audit != nil {
		a.Audit.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("Error closing store: %v", err)
		}
	}
	a.closers = nil
}

// shutdownTimeout is the grace period for in-flight work on exit.
func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.Global.ShutdownTimeoutInSeconds <= 0 {
		return 2 * time.Second
	}
	return time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second
}

// OpenCoordinator builds the app for a one-shot command. The returned
// cleanup waits for background work and closes every store.
func OpenCoordinator(ctx context.Context, cfg *config.Config) (*booksync.Coordinator, func(), error) {
	app, err := Build(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return app.Coordinator, func() {
		app.Coordinator.Drain()
		app.Close()
	}, nil
}
