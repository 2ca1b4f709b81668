package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/booksync/internal/entities"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Database struct {
	DB *gorm.DB
}

// NewDatabase opens the local cache database. It holds the key/value entries
// of the book cache and the audit log.
func NewDatabase(dbPath string) (*Database, error) {
	db, err := openSQLite(dbPath, logger.Default.LogMode(logger.Warn))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	err = db.AutoMigrate(
		&entities.LocalEntry{},
		&entities.AuditEvent{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Printf("Database initialized successfully at %s", dbPath)

	return &Database{DB: db}, nil
}

// OpenRemote opens the remote document store: postgres in production, sqlite
// for development and tests.
func OpenRemote(driver, dsn string) (*Database, error) {
	gormLog := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var (
		db  *gorm.DB
		err error
	)
	switch driver {
	case DriverPostgres:
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	case DriverSQLite, "":
		db, err = openSQLite(dsn, gormLog)
	default:
		return nil, fmt.Errorf("unsupported remote driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to remote store: %w", err)
	}

	err = db.AutoMigrate(
		&entities.UserBookRecord{},
		&entities.AssetRecord{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate remote store: %w", err)
	}

	log.Printf("Remote store initialized (%s)", driverName(driver))

	return &Database{DB: db}, nil
}

func openSQLite(path string, gormLog logger.Interface) (*gorm.DB, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := gorm.Open(sqlite.Open(path+sep+"_busy_timeout=5000"), &gorm.Config{
		Logger: gormLog,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite serialises writers anyway; a single connection avoids "database is locked".
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func driverName(driver string) string {
	if driver == "" {
		return DriverSQLite
	}
	return driver
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks that the underlying connection is alive.
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
