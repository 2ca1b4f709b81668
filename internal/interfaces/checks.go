package interfaces

// This file contains compile-time interface implementation checks.
// These ensure that concrete types satisfy their interfaces at compile time,
// catching missing methods before runtime.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/mrlokans/booksync/internal/assets"
	"github.com/mrlokans/booksync/internal/audit"
	"github.com/mrlokans/booksync/internal/auth"
	"github.com/mrlokans/booksync/internal/booksync"
	"github.com/mrlokans/booksync/internal/cli"
	assetsrepo "github.com/mrlokans/booksync/internal/database/assets"
	"github.com/mrlokans/booksync/internal/database/entries"
	"github.com/mrlokans/booksync/internal/database/userbooks"
	"github.com/mrlokans/booksync/internal/http"
	"github.com/mrlokans/booksync/internal/rediscache"
	"github.com/mrlokans/booksync/internal/scheduler"
	"github.com/mrlokans/booksync/internal/storage"
	"github.com/mrlokans/booksync/internal/tasks"
)

// =============================================================================
// Stores
// =============================================================================

// LocalStore implementations
var _ booksync.LocalStore = (*entries.Repository)(nil)
var _ booksync.LocalStore = (*rediscache.Store)(nil)

// RemoteStore implementations
var _ booksync.RemoteStore = (*userbooks.Repository)(nil)

// ObjectStore implementations
var _ storage.ObjectStore = (*storage.MinioStore)(nil)
var _ storage.ObjectStore = (*storage.MemoryStore)(nil)

// =============================================================================
// Assets
// =============================================================================

var _ booksync.AssetMigrator = (*assets.Migrator)(nil)
var _ booksync.AssetCatalog = (*assets.Catalog)(nil)
var _ assets.AssetRecorder = (*assetsrepo.Repository)(nil)
var _ assets.CatalogRepository = (*assetsrepo.Repository)(nil)

// =============================================================================
// Identity and audit
// =============================================================================

var _ booksync.IdentityResolver = auth.ContextResolver{}
var _ auth.TokenVerifier = (*auth.JWTVerifier)(nil)
var _ booksync.Reporter = (*audit.Service)(nil)
var _ http.AuditLog = (*audit.Service)(nil)
var _ tasks.AuditPruner = (*audit.Service)(nil)

// =============================================================================
// Coordinator consumers
// =============================================================================

var _ http.BookService = (*booksync.Coordinator)(nil)
var _ http.SyncService = (*booksync.Coordinator)(nil)
var _ tasks.BookSyncer = (*booksync.Coordinator)(nil)
var _ scheduler.Syncer = (*booksync.Coordinator)(nil)
var _ cli.Syncer = (*booksync.Coordinator)(nil)

// TaskQueue implementations
var _ http.TaskQueue = (*tasks.Client)(nil)
var _ scheduler.Enqueuer = (*tasks.Client)(nil)
