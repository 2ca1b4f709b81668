// Package database provides the data access layer for the sync service.
//
// # Architecture
//
// Two gorm connections are opened: the local cache database (always sqlite)
// and the remote document store (postgres or sqlite). Each domain lives in its
// own sub-package:
//
//	database/
//	├── database.go      # Connection setup and migrations
//	├── entries/         # Local key/value cache (LocalStore)
//	├── userbooks/       # Remote user_books records (RemoteStore)
//	├── assets/          # asset_metadata records
//	└── audit/           # Sync audit events
//
// # Using Sub-packages
//
//	local, err := database.NewDatabase("./booksync-cache.db")
//	remote, err := database.OpenRemote("postgres", dsn)
//
//	store := entries.NewRepository(local.DB)
//	books := userbooks.NewRepository(remote.DB)
//
// # Adding a New Domain
//
//  1. Create a new sub-package: internal/database/<domain>/
//  2. Define a Repository struct with a *gorm.DB field
//  3. Add NewRepository(db *gorm.DB) constructor
//  4. Add compile-time interface check in internal/interfaces
package database
