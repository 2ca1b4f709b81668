package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/booksync/internal/booksync"
)

// SyncAllBooksTask pushes every locally known book of a user.
type SyncAllBooksTask struct {
	UserID string `json:"user_id"`
}

// Config returns the queue configuration for bulk sync tasks.
func (t SyncAllBooksTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "sync_all_books",
		MaxAttempts: 1,
		Backoff:     time.Minute,
		Timeout:     30 * time.Minute, // Allow time to upload assets of every book
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// SyncAllBooksProcessor creates a processor function for SyncAllBooksTask.
func SyncAllBooksProcessor(syncer BookSyncer) backlite.QueueProcessor[SyncAllBooksTask] {
	return func(ctx context.Context, task SyncAllBooksTask) error {
		if syncer == nil {
			return fmt.Errorf("book syncer not configured")
		}

		result := syncer.SyncAllUserBooks(booksync.WithUser(ctx, task.UserID))
		log.Printf("[TASK] Sync all complete for %s: %d/%d synced, failed: %v",
			task.UserID, result.Synced, result.Total, result.Failed)

		if !result.Success {
			return fmt.Errorf("sync all books: %d of %d failed", len(result.Failed), result.Total)
		}
		return nil
	}
}

// NewSyncAllBooksQueue creates a backlite queue for bulk sync tasks.
func NewSyncAllBooksQueue(syncer BookSyncer) backlite.Queue {
	return backlite.NewQueue(SyncAllBooksProcessor(syncer))
}

// BackgroundSyncTask refreshes the book list and the recently opened books.
type BackgroundSyncTask struct {
	UserID string `json:"user_id"`
}

// Config returns the queue configuration for background refresh tasks.
func (t BackgroundSyncTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "background_sync_recent",
		MaxAttempts: 1,
		Backoff:     time.Minute,
		Timeout:     10 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   6 * time.Hour,
			OnlyFailed: true,
		},
	}
}

// BackgroundSyncProcessor creates a processor function for BackgroundSyncTask.
func BackgroundSyncProcessor(syncer BookSyncer) backlite.QueueProcessor[BackgroundSyncTask] {
	return func(ctx context.Context, task BackgroundSyncTask) error {
		if syncer == nil {
			return fmt.Errorf("book syncer not configured")
		}
		syncer.BackgroundSyncRecent(ctx, task.UserID)
		return nil
	}
}

// NewBackgroundSyncQueue creates a backlite queue for background refresh tasks.
func NewBackgroundSyncQueue(syncer BookSyncer) backlite.Queue {
	return backlite.NewQueue(BackgroundSyncProcessor(syncer))
}

// CheckUpdatesTask pulls books changed remotely since the last sync.
type CheckUpdatesTask struct {
	UserID string `json:"user_id"`
}

// Config returns the queue configuration for update check tasks.
func (t CheckUpdatesTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "check_backend_updates",
		MaxAttempts: 3,
		Backoff:     2 * time.Minute,
		Timeout:     10 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// CheckUpdatesProcessor creates a processor function for CheckUpdatesTask.
func CheckUpdatesProcessor(syncer BookSyncer) backlite.QueueProcessor[CheckUpdatesTask] {
	return func(ctx context.Context, task CheckUpdatesTask) error {
		if syncer == nil {
			return fmt.Errorf("book syncer not configured")
		}

		reloaded, err := syncer.CheckForBackendUpdates(booksync.WithUser(ctx, task.UserID))
		if err != nil {
			return fmt.Errorf("check backend updates: %w", err)
		}

		log.Printf("[TASK] Reloaded %d book(s) changed remotely for %s", reloaded, task.UserID)
		return nil
	}
}

// NewCheckUpdatesQueue creates a backlite queue for update check tasks.
func NewCheckUpdatesQueue(syncer BookSyncer) backlite.Queue {
	return backlite.NewQueue(CheckUpdatesProcessor(syncer))
}
