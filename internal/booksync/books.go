package booksync

import (
	"context"
	"fmt"
	"log"

	"github.com/mrlokans/booksync/internal/cachekeys"
	"github.com/mrlokans/booksync/internal/entities"
)

// DeleteBook removes the user's remote record, the book's assets and every
// local key of the book. ErrNotFound is returned only when the book existed
// neither remotely nor locally.
func (c *Coordinator) DeleteBook(ctx context.Context, bookID string) error {
	userID, err := c.resolveUser(ctx, "")
	if err != nil {
		return err
	}

	deletedRemote, err := c.remote.DeleteByIDAndOwner(ctx, bookID, userID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}

	if c.catalog != nil {
		if err := c.catalog.DeleteBookAssets(ctx, userID, bookID); err != nil {
			log.Printf("[SYNC] Failed to delete assets of %s: %v", bookID, err)
		}
	}

	deletedLocal, err := c.purgeLocalBook(ctx, bookID)
	if err != nil {
		return err
	}
	if !deletedRemote && !deletedLocal {
		return fmt.Errorf("%w: %s", ErrNotFound, bookID)
	}

	c.forgetRecent(bookID)
	c.updateLoading(func(s *entities.LoadingState) {
		delete(s.IsLoadingBook, bookID)
		delete(s.LastSync, bookID)
		delete(s.SyncErrors, bookID)
	})
	c.removePending(bookID)

	c.report(&entities.AuditEvent{
		UserID:      userID,
		EventType:   entities.AuditEventDelete,
		Action:      "book_delete",
		BookID:      bookID,
		Description: "Deleted book " + bookID,
		Status:      entities.AuditStatusSuccess,
	})
	return nil
}

// purgeLocalBook removes every cached key of a book and reports whether
// anything was there.
func (c *Coordinator) purgeLocalBook(ctx context.Context, bookID string) (bool, error) {
	name := ""
	doc, found, err := c.localBook(ctx, bookID)
	if err != nil {
		return false, err
	}
	if found {
		name = decodeStoredBook(doc).Name
	}

	entries, err := c.bookKeys(ctx, bookID, name)
	if err != nil {
		return false, err
	}
	keys := []string{
		cachekeys.Chapters(bookID),
		cachekeys.BookMetadata(bookID),
		cachekeys.BookIndex(bookID),
		cachekeys.BookAssets(bookID),
		cachekeys.SyncMetadata(bookID),
	}
	for key := range entries {
		keys = append(keys, key)
	}
	for _, key := range keys {
		if err := c.cacheOf(ctx).Remove(ctx, key); err != nil {
			return false, fmt.Errorf("failed to remove %s: %w", key, err)
		}
	}

	removed, err := c.removeCreatedBook(ctx, bookID)
	if err != nil {
		return false, err
	}
	return found || removed || len(entries) > 0, nil
}

// GetPublicBook returns a published book by its public link. No ownership
// check is made.
func (c *Coordinator) GetPublicBook(ctx context.Context, publicLink string) (*entities.FullBookData, error) {
	record, err := c.remote.GetPublished(ctx, publicLink)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: no published book at %q", ErrNotFound, publicLink)
	}
	data := bookFromRecord(record)
	if c.catalog != nil {
		if refs, err := c.catalog.ListBookAssets(ctx, record.UserID, record.ID); err == nil {
			data.Assets = refs
		}
	}
	return data, nil
}

// SearchPublicBooks searches published books by text and tags.
func (c *Coordinator) SearchPublicBooks(ctx context.Context, query string, tags []string, limit int) ([]entities.BookMetadata, error) {
	records, err := c.remote.Search(ctx, query, tags, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	books := make([]entities.BookMetadata, 0, len(records))
	for i := range records {
		books = append(books, metadataFromRecord(&records[i]))
	}
	return books, nil
}

// HasBookAccess reports whether the current user owns bookID remotely.
func (c *Coordinator) HasBookAccess(ctx context.Context, bookID string) (bool, error) {
	userID, err := c.resolveUser(ctx, "")
	if err != nil {
		return false, err
	}
	record, err := c.remote.GetByIDAndOwner(ctx, bookID, userID)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	return record != nil, nil
}
