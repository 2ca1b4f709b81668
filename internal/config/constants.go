package config

import "time"

// Default paths for databases
const (
	// DefaultLocalDatabasePath is the default path for the local cache database
	DefaultLocalDatabasePath = "./booksync-cache.db"

	// DefaultRemoteDatabasePath is used when the remote store runs on sqlite
	DefaultRemoteDatabasePath = "./booksync-remote.db"
)

// Sync defaults
const (
	DefaultBookListFreshness    = 15 * time.Minute
	DefaultBookContentFreshness = 30 * time.Minute
	DefaultRecentCapacity       = 5
	DefaultBackgroundBatchSize  = 3
)

// Asset defaults
const (
	DefaultAssetBucket  = "book-assets"
	DefaultMaxAssetSize = 50 * 1024 * 1024
)
