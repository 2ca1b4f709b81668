// Package interfaces documents the core abstractions used throughout the application.
//
// # Interface Categories
//
// ## Stores
//
//   - LocalStore: string key/value cache (internal/booksync/stores.go),
//     implemented on sqlite (internal/database/entries) and Redis (internal/rediscache)
//   - RemoteStore: authoritative user_books table (internal/database/userbooks)
//   - ObjectStore: durable asset objects (internal/storage)
//
// ## Assets
//
//   - AssetMigrator: ephemeral reference to durable URL (internal/assets/migrator.go)
//   - AssetCatalog: per-book asset listing and purge (internal/assets/catalog.go)
//
// ## Coordinator consumers
//
//   - BookService, SyncService: HTTP surface (internal/http/stores.go)
//   - BookSyncer: queued sync tasks (internal/tasks/sync_book.go)
//   - Syncer: cron background sync (internal/scheduler) and batch CLI (internal/cli)
//
// # Adding a New Local Store
//
//  1. Implement Get, Set, Remove and Keys. Keys must return every key the
//     store holds; a missing key is reported as ok == false, not an error.
//
//  2. Add a driver to config.LocalStoreDriver and a case to
//     entrypoint.openLocalStore.
//
//  3. Add a compile-time check:
//
//     var _ booksync.LocalStore = (*MyStore)(nil)
//
// # Compile-Time Interface Checks
//
// All implementations should include compile-time checks to ensure they satisfy
// their interfaces:
//
//	var _ SomeInterface = (*MyImplementation)(nil)
//
// See checks.go.
package interfaces
