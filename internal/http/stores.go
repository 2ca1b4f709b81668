package http

import (
	"context"

	"github.com/mikestefanello/backlite"

	auditrepo "github.com/mrlokans/booksync/internal/database/audit"
	"github.com/mrlokans/booksync/internal/entities"
)

// BookService is the book read/write surface of the sync coordinator.
type BookService interface {
	LoadBookList(ctx context.Context, userID string, forceRefresh bool) ([]entities.BookMetadata, error)
	LoadBookContent(ctx context.Context, bookID string, forceRefresh bool) (*entities.FullBookData, error)
	RefreshBook(ctx context.Context, bookID string) (*entities.FullBookData, error)
	DeleteBook(ctx context.Context, bookID string) error
	CacheBookData(ctx context.Context, bookID string, data *entities.FullBookData) error
	SyncBookToBackend(ctx context.Context, bookID string) entities.SyncResult
	HasBookAccess(ctx context.Context, bookID string) (bool, error)
	GetPublicBook(ctx context.Context, publicLink string) (*entities.FullBookData, error)
	SearchPublicBooks(ctx context.Context, query string, tags []string, limit int) ([]entities.BookMetadata, error)
}

// SyncService is the status and batch surface of the sync coordinator.
type SyncService interface {
	LoadingState() entities.LoadingState
	Status() entities.SyncStatus
	Subscribe(fn func(entities.LoadingState)) (unsubscribe func())
	RecentBooks() []string
	SyncAllUserBooks(ctx context.Context) entities.BatchResult
	LoadAllUserBooks(ctx context.Context) entities.BatchLoadResult
	ResetAndReload(ctx context.Context) entities.BatchLoadResult
	BackgroundSyncRecent(ctx context.Context, userID string)
	SetOnline(ctx context.Context, online bool)
	FailedMigrationStats() entities.MigrationStats
	ClearFailedMigrations()
}

// TaskQueue enqueues sync tasks and reports on them.
type TaskQueue interface {
	Enqueue(task backlite.Task) (string, error)
	Status(ctx context.Context, taskID string) (backlite.TaskStatus, error)
}

// AuditLog reads recorded sync events.
type AuditLog interface {
	GetEvents(filter auditrepo.Filter, limit, offset int) ([]entities.AuditEvent, int64, error)
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error
