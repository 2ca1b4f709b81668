package config

import (
	"time"

	"github.com/spf13/viper"
)

type AuthMode string

const (
	AuthModeNone AuthMode = "none" // Every request acts as DefaultUserID (default)
	AuthModeJWT  AuthMode = "jwt"  // HS256 bearer tokens, user id from the sub claim
)

type LocalStoreDriver string

const (
	LocalStoreSQLite LocalStoreDriver = "sqlite"
	LocalStoreRedis  LocalStoreDriver = "redis"
)

type (
	Config struct {
		HTTP
		Global
		Database
		Remote
		LocalStore
		Redis
		Assets
		Cache
		Sync
		Audit
		Tasks
		Auth
	}

	HTTP struct {
		Port int32
		Host string
	}

	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Database struct {
		Path string // Local cache database
	}
	Remote struct {
		Driver string // "postgres" or "sqlite"
		DSN    string
	}
	LocalStore struct {
		Driver LocalStoreDriver
	}
	Redis struct {
		Addr      string
		Password  string
		DB        int
		KeyPrefix string
	}
	Assets struct {
		Enabled         bool
		Endpoint        string
		AccessKey       string
		SecretKey       string
		Bucket          string
		UseSSL          bool
		PublicBaseURL   string // Overrides presigned URLs when the bucket is public
		MaxSize         int64
		UploadsPerSec   float64
		UploadBurst     int
		PresignLifetime time.Duration
	}
	Cache struct {
		BookListFreshness    time.Duration
		BookContentFreshness time.Duration
		RecentCapacity       int
		BackgroundBatchSize  int
	}
	Sync struct {
		Enabled          bool
		Schedule         string // Cron format: "*/30 * * * *" = every 30 minutes
		StartupSync      bool
		BackgroundUserID string // User the scheduler syncs for
	}
	Audit struct {
		RetentionDays int // Days to keep audit events (default: 30)
	}
	Tasks struct {
		Enabled         bool
		Workers         int
		ReleaseAfter    time.Duration // Redeliver a claimed task after this long
		CleanupInterval time.Duration
	}
	Auth struct {
		Mode          AuthMode
		DefaultUserID string
		JWTSecret     string
		JWTAudience   string
		JWTIssuer     string
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8188)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 2)
	v.SetDefault("database_path", DefaultLocalDatabasePath)

	// Remote store defaults
	v.SetDefault("remote_driver", "sqlite")
	v.SetDefault("remote_dsn", DefaultRemoteDatabasePath)

	// Local store defaults
	v.SetDefault("local_store_driver", string(LocalStoreSQLite))
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_key_prefix", "booksync:")

	// Asset storage defaults
	v.SetDefault("assets_enabled", false)
	v.SetDefault("assets_endpoint", "localhost:9000")
	v.SetDefault("assets_access_key", "")
	v.SetDefault("assets_secret_key", "")
	v.SetDefault("assets_bucket", DefaultAssetBucket)
	v.SetDefault("assets_use_ssl", false)
	v.SetDefault("assets_public_base_url", "")
	v.SetDefault("assets_max_size", DefaultMaxAssetSize)
	v.SetDefault("assets_uploads_per_sec", 5)
	v.SetDefault("assets_upload_burst", 5)
	v.SetDefault("assets_presign_lifetime", "168h") // 7 days, the S3 maximum

	// Cache freshness defaults
	v.SetDefault("cache_book_list_freshness", DefaultBookListFreshness.String())
	v.SetDefault("cache_book_content_freshness", DefaultBookContentFreshness.String())
	v.SetDefault("cache_recent_capacity", DefaultRecentCapacity)
	v.SetDefault("cache_background_batch_size", DefaultBackgroundBatchSize)

	// Background sync defaults
	v.SetDefault("sync_enabled", false)
	v.SetDefault("sync_schedule", "*/30 * * * *")
	v.SetDefault("sync_on_startup", false)
	v.SetDefault("sync_background_user_id", "")

	v.SetDefault("audit_retention_days", 30)

	// Auth defaults
	v.SetDefault("auth_mode", "none")
	v.SetDefault("auth_default_user_id", "local-user")
	v.SetDefault("auth_jwt_secret", "")
	v.SetDefault("auth_jwt_audience", "authenticated") // Supabase default audience
	v.SetDefault("auth_jwt_issuer", "")

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Remote: Remote{
			Driver: v.GetString("REMOTE_DRIVER"),
			DSN:    v.GetString("REMOTE_DSN"),
		},
		LocalStore: LocalStore{
			Driver: LocalStoreDriver(v.GetString("LOCAL_STORE_DRIVER")),
		},
		Redis: Redis{
			Addr:      v.GetString("REDIS_ADDR"),
			Password:  v.GetString("REDIS_PASSWORD"),
			DB:        v.GetInt("REDIS_DB"),
			KeyPrefix: v.GetString("REDIS_KEY_PREFIX"),
		},
		Assets: Assets{
			Enabled:         v.GetBool("ASSETS_ENABLED"),
			Endpoint:        v.GetString("ASSETS_ENDPOINT"),
			AccessKey:       v.GetString("ASSETS_ACCESS_KEY"),
			SecretKey:       v.GetString("ASSETS_SECRET_KEY"),
			Bucket:          v.GetString("ASSETS_BUCKET"),
			UseSSL:          v.GetBool("ASSETS_USE_SSL"),
			PublicBaseURL:   v.GetString("ASSETS_PUBLIC_BASE_URL"),
			MaxSize:         v.GetInt64("ASSETS_MAX_SIZE"),
			UploadsPerSec:   v.GetFloat64("ASSETS_UPLOADS_PER_SEC"),
			UploadBurst:     v.GetInt("ASSETS_UPLOAD_BURST"),
			PresignLifetime: v.GetDuration("ASSETS_PRESIGN_LIFETIME"),
		},
		Cache: Cache{
			BookListFreshness:    v.GetDuration("CACHE_BOOK_LIST_FRESHNESS"),
			BookContentFreshness: v.GetDuration("CACHE_BOOK_CONTENT_FRESHNESS"),
			RecentCapacity:       v.GetInt("CACHE_RECENT_CAPACITY"),
			BackgroundBatchSize:  v.GetInt("CACHE_BACKGROUND_BATCH_SIZE"),
		},
		Sync: Sync{
			Enabled:          v.GetBool("SYNC_ENABLED"),
			Schedule:         v.GetString("SYNC_SCHEDULE"),
			StartupSync:      v.GetBool("SYNC_ON_STARTUP"),
			BackgroundUserID: v.GetString("SYNC_BACKGROUND_USER_ID"),
		},
		Audit: Audit{
			RetentionDays: v.GetInt("AUDIT_RETENTION_DAYS"),
		},
		Tasks: Tasks{
			Enabled:         v.GetBool("TASKS_ENABLED"),
			Workers:         v.GetInt("TASK_WORKERS"),
			ReleaseAfter:    v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval: v.GetDuration("TASK_CLEANUP_INTERVAL"),
		},
		Auth: Auth{
			Mode:          AuthMode(v.GetString("AUTH_MODE")),
			DefaultUserID: v.GetString("AUTH_DEFAULT_USER_ID"),
			JWTSecret:     v.GetString("AUTH_JWT_SECRET"),
			JWTAudience:   v.GetString("AUTH_JWT_AUDIENCE"),
			JWTIssuer:     v.GetString("AUTH_JWT_ISSUER"),
		},
	}
}
