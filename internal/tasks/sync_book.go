package tasks

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/booksync/internal/booksync"
	"github.com/mrlokans/booksync/internal/entities"
)

// BookSyncer is the part of the sync coordinator the sync tasks drive.
type BookSyncer interface {
	ForceSyncBook(ctx context.Context, bookID string) entities.SyncResult
	SyncAllUserBooks(ctx context.Context) entities.BatchResult
	BackgroundSyncRecent(ctx context.Context, userID string)
	CheckForBackendUpdates(ctx context.Context) (int, error)
}

// SyncBookTask pushes one locally cached book to the remote store.
type SyncBookTask struct {
	UserID string `json:"user_id"`
	BookID string `json:"book_id"`
}

// Config returns the queue configuration for book sync tasks.
func (t SyncBookTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "sync_book",
		MaxAttempts: 3,
		Backoff:     30 * time.Second,
		Timeout:     5 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// SyncBookProcessor creates a processor function for SyncBookTask.
// A failed sync returns an error so the queue retries it.
func SyncBookProcessor(syncer BookSyncer) backlite.QueueProcessor[SyncBookTask] {
	return func(ctx context.Context, task SyncBookTask) error {
		if syncer == nil {
			return fmt.Errorf("book syncer not configured")
		}
		if task.UserID == "" || task.BookID == "" {
			return fmt.Errorf("sync book: user and book are required")
		}

		result := syncer.ForceSyncBook(booksync.WithUser(ctx, task.UserID), task.BookID)
		if !result.Success {
			return fmt.Errorf("sync book %s: %s", task.BookID, strings.Join(result.Errors, "; "))
		}

		log.Printf("[TASK] Synced book %s: %d content entries, %d assets migrated",
			task.BookID, result.Synced.Templates, result.Synced.Assets)
		return nil
	}
}

// NewSyncBookQueue creates a backlite queue for book sync tasks.
func NewSyncBookQueue(syncer BookSyncer) backlite.Queue {
	return backlite.NewQueue(SyncBookProcessor(syncer))
}
