package booksync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/mrlokans/booksync/internal/cachekeys"
	"github.com/mrlokans/booksync/internal/entities"
)

// LoadBookList returns the user's book list. A cached list younger than the
// list freshness window is returned immediately and refreshed in the
// background. When the remote store fails, a cached list of any age is used.
func (c *Coordinator) LoadBookList(ctx context.Context, userID string, forceRefresh bool) ([]entities.BookMetadata, error) {
	userID, err := c.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ctx = WithUser(ctx, userID)

	if !forceRefresh {
		if books, fresh, ok := c.cachedBookList(ctx, userID); ok && fresh {
			c.inBackground("refresh-book-list", userID, func(ctx context.Context) {
				select {
				case <-ctx.Done():
					return
				case <-time.After(c.refreshDelay):
				}
				if _, err := c.LoadBookList(ctx, userID, true); err != nil {
					log.Printf("[SYNC] Background book list refresh for %s failed: %v", userID, err)
				}
			})
			return books, nil
		}
	}

	c.setBookListLoading(true)
	defer c.setBookListLoading(false)

	records, err := c.remote.ListByOwner(ctx, userID)
	if err != nil {
		c.setSyncError(entities.BookListErrorKey, err.Error())
		if books, _, ok := c.cachedBookList(ctx, userID); ok {
			log.Printf("[SYNC] Serving cached book list for %s: %v", userID, err)
			return books, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}

	books := make([]entities.BookMetadata, 0, len(records))
	for i := range records {
		books = append(books, metadataFromRecord(&records[i]))
	}

	if err := c.setJSON(ctx, cachekeys.BookList(userID), books); err != nil {
		log.Printf("[SYNC] Failed to cache book list: %v", err)
	} else if err := c.cacheOf(ctx).Set(ctx, cachekeys.BookListTimestamp(userID), strconv.FormatInt(c.now().UnixMilli(), 10)); err != nil {
		log.Printf("[SYNC] Failed to stamp book list: %v", err)
	}

	c.updateLoading(func(s *entities.LoadingState) {
		delete(s.SyncErrors, entities.BookListErrorKey)
	})
	return books, nil
}

// cachedBookList reads the cached list and reports whether it is still fresh.
func (c *Coordinator) cachedBookList(ctx context.Context, userID string) (books []entities.BookMetadata, fresh bool, ok bool) {
	text, found, err := c.cacheOf(ctx).Get(ctx, cachekeys.BookList(userID))
	if err != nil || !found {
		return nil, false, false
	}
	if err := json.Unmarshal([]byte(text), &books); err != nil {
		log.Printf("[SYNC] Cached book list of %s is unreadable: %v", userID, err)
		return nil, false, false
	}
	if books == nil {
		books = []entities.BookMetadata{}
	}

	stamp, found, err := c.cacheOf(ctx).Get(ctx, cachekeys.BookListTimestamp(userID))
	if err != nil || !found {
		return books, false, true
	}
	ms, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		return books, false, true
	}
	age := c.now().Sub(time.UnixMilli(ms))
	return books, age < c.listFreshness, true
}

// LoadBookContent returns the full book. A synced cache entry younger than
// the content freshness window is served without contacting the remote store.
func (c *Coordinator) LoadBookContent(ctx context.Context, bookID string, forceRefresh bool) (*entities.FullBookData, error) {
	c.touchRecent(bookID)
	return c.loadBookContent(ctx, bookID, forceRefresh)
}

func (c *Coordinator) loadBookContent(ctx context.Context, bookID string, forceRefresh bool) (*entities.FullBookData, error) {
	userID, err := c.resolveUser(ctx, "")
	if err != nil {
		return nil, err
	}
	ctx = WithUser(ctx, userID)

	if !forceRefresh {
		if meta, ok := c.readSyncMetadata(ctx, bookID); ok &&
			meta.Status == entities.SyncStateSynced &&
			c.now().Sub(meta.LastSync) < c.contentFreshness {
			data, found, err := c.ReconstructFromCache(ctx, bookID)
			if err == nil && found {
				return data, nil
			}
			if err != nil {
				log.Printf("[SYNC] Cache read for %s failed, going remote: %v", bookID, err)
			}
		}
	}

	c.setBookLoading(bookID, true)
	defer c.setBookLoading(bookID, false)

	record, err := c.remote.GetByIDAndOwner(ctx, bookID, userID)
	switch {
	case err != nil:
		err = fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	case record == nil:
		err = fmt.Errorf("%w: %s", ErrNotFound, bookID)
	}
	if err != nil {
		c.setSyncError(bookID, err.Error())
		if data, found, cacheErr := c.ReconstructFromCache(ctx, bookID); cacheErr == nil && found {
			log.Printf("[SYNC] Serving cached copy of %s: %v", bookID, err)
			return data, nil
		}
		return nil, err
	}

	data := bookFromRecord(record)
	if c.catalog != nil {
		refs, err := c.catalog.ListBookAssets(ctx, userID, bookID)
		if err != nil {
			log.Printf("[SYNC] Failed to list assets of %s: %v", bookID, err)
		} else {
			data.Assets = refs
		}
	}

	if err := c.CacheBookData(ctx, bookID, data); err != nil {
		log.Printf("[SYNC] Failed to cache %s: %v", bookID, err)
	}
	c.markBookLoaded(bookID)
	return data, nil
}

// RefreshBook reloads a book from the remote store, ignoring the cache.
func (c *Coordinator) RefreshBook(ctx context.Context, bookID string) (*entities.FullBookData, error) {
	return c.LoadBookContent(ctx, bookID, true)
}

// BackgroundSyncRecent refreshes the book list and then the most recently
// accessed books one after another. Failures are logged and skipped.
func (c *Coordinator) BackgroundSyncRecent(ctx context.Context, userID string) {
	userID, err := c.resolveUser(ctx, userID)
	if err != nil {
		log.Printf("[SYNC] Background sync skipped: %v", err)
		return
	}
	ctx = WithUser(ctx, userID)

	if _, err := c.LoadBookList(ctx, userID, true); err != nil {
		log.Printf("[SYNC] Background book list refresh failed: %v", err)
	}

	recent := c.RecentBooks()
	if len(recent) > c.batchSize {
		recent = recent[:c.batchSize]
	}
	refreshed := 0
	for _, bookID := range recent {
		if ctx.Err() != nil {
			return
		}
		if _, err := c.loadBookContent(ctx, bookID, true); err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Printf("[SYNC] Background refresh of %s failed: %v", bookID, err)
			}
			continue
		}
		refreshed++
	}
	log.Printf("[SYNC] Background sync for %s refreshed %d/%d recent books", userID, refreshed, len(recent))
}
