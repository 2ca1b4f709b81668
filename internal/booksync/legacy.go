package booksync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/datatypes"

	"github.com/mrlokans/booksync/internal/assets"
	"github.com/mrlokans/booksync/internal/cachekeys"
	"github.com/mrlokans/booksync/internal/entities"
)

// bookkeeping keys are local state and never part of the content bag.
func isBookkeepingKey(key, bookID string) bool {
	switch key {
	case cachekeys.Chapters(bookID), cachekeys.BookMetadata(bookID), cachekeys.BookIndex(bookID),
		cachekeys.SyncMetadata(bookID), cachekeys.BookAssets(bookID):
		return true
	}
	return false
}

// localBook finds the metadata document of a book, preferring the
// created_books list over the loader's metadata key.
func (c *Coordinator) localBook(ctx context.Context, bookID string) (json.RawMessage, bool, error) {
	books, err := c.createdBooks(ctx)
	if err != nil {
		return nil, false, err
	}
	if doc, ok := findCreatedBook(books, bookID); ok {
		return doc, true, nil
	}
	text, ok, err := c.cacheOf(ctx).Get(ctx, cachekeys.BookMetadata(bookID))
	if err != nil {
		return nil, false, fmt.Errorf("failed to read metadata of %s: %w", bookID, err)
	}
	if !ok {
		return nil, false, nil
	}
	return json.RawMessage(text), true, nil
}

// bookKeys collects the content keys of a book. The index is authoritative;
// only caches written without one are scanned.
func (c *Coordinator) bookKeys(ctx context.Context, bookID, bookName string) (map[string]cachekeys.IndexEntry, error) {
	found := make(map[string]cachekeys.IndexEntry)

	index, ok, err := c.readIndex(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if ok {
		for _, entry := range index.Entries {
			if !isBookkeepingKey(entry.Key, bookID) {
				found[entry.Key] = entry
			}
		}
		return found, nil
	}

	entries, err := c.scanEntries(ctx, bookID, bookName)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		found[entry.Key] = entry
	}
	return found, nil
}

// SyncBookToBackend pushes one locally cached book to the remote store,
// migrating ephemeral asset references on the way. It never returns an
// error; failures are listed in the result.
func (c *Coordinator) SyncBookToBackend(ctx context.Context, bookID string) entities.SyncResult {
	result := entities.SyncResult{BookID: bookID, Errors: []string{}}

	c.beginSyncing()
	defer c.endSyncing()

	userID, err := c.resolveUser(ctx, "")
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	defer func() {
		c.reportResult(userID, entities.AuditEventSync, "sync_book", bookID,
			fmt.Sprintf("Synced %d content entries and %d assets", result.Synced.Templates, result.Synced.Assets), result.Errors)
	}()

	doc, ok, err := c.localBook(ctx, bookID)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	if !ok {
		result.Errors = append(result.Errors, "book not found in local cache")
		return result
	}
	book := decodeStoredBook(doc)

	chapters := json.RawMessage("[]")
	if text, ok, err := c.cacheOf(ctx).Get(ctx, cachekeys.Chapters(bookID)); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to read chapters: %v", err))
		return result
	} else if ok && json.Valid([]byte(text)) {
		chapters = json.RawMessage(text)
	}

	entries, err := c.bookKeys(ctx, bookID, book.Name)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	run := c.newMigrationRun()
	bag := make(map[string]json.RawMessage, len(entries))
	for key, entry := range entries {
		text, ok, err := c.cacheOf(ctx).Get(ctx, key)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to read %s: %v", key, err))
			return result
		}
		if !ok {
			continue
		}

		mc := assets.MigrationContext{UserID: userID, BookID: bookID, ChapterID: entry.Chapter, TabID: entry.Tab}
		if migrated, changed := run.text(ctx, text, mc); changed {
			if err := c.cacheOf(ctx).Set(ctx, key, migrated); err != nil {
				log.Printf("[SYNC] Failed to store migrated value of %s: %v", key, err)
			}
			text = migrated
		}

		if value, ok := bagValue(text); ok {
			bag[key] = value
		}
	}
	if run.failures > 0 {
		log.Printf("[SYNC] %d asset(s) of %s could not be migrated and were kept as-is", run.failures, bookID)
	}

	content, err := json.Marshal(bag)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to encode content: %v", err))
		return result
	}

	record := &entities.UserBookRecord{
		ID:           bookID,
		UserID:       userID,
		BookData:     datatypes.JSON(doc),
		ChaptersData: datatypes.JSON(chapters),
		ContentData:  datatypes.JSON(content),
		IsPublished:  book.IsPublished,
		LastSynced:   c.now(),
	}
	if book.PublicLink != "" {
		link := book.PublicLink
		record.PublicLink = &link
	}

	if err := c.remote.Upsert(ctx, record); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("sync failed: %v", err))
		return result
	}

	if err := c.writeSyncMetadata(ctx, bookID, record.UpdatedAt); err != nil {
		log.Printf("[SYNC] Failed to write sync metadata of %s: %v", bookID, err)
	}
	c.markSynced(bookID)

	result.Success = true
	result.Synced = entities.SyncedParts{
		Metadata:  true,
		Chapters:  true,
		Templates: len(bag),
		Assets:    len(run.migrated),
		UserData:  true,
	}
	log.Printf("[SYNC] Synced %s: %d content entries, %d assets migrated", bookID, len(bag), len(run.migrated))
	return result
}

// ForceSyncBook marks a book pending and syncs it.
func (c *Coordinator) ForceSyncBook(ctx context.Context, bookID string) entities.SyncResult {
	c.addPending(bookID)
	return c.SyncBookToBackend(ctx, bookID)
}

// SyncAllUserBooks syncs every book in the local created_books list.
// Books that fail stay pending.
func (c *Coordinator) SyncAllUserBooks(ctx context.Context) entities.BatchResult {
	result := entities.BatchResult{Failed: []string{}}

	c.beginSyncing()
	defer c.endSyncing()

	userID, err := c.resolveUser(ctx, "")
	if err != nil {
		log.Printf("[SYNC] Sync all skipped: %v", err)
		return result
	}
	ctx = WithUser(ctx, userID)

	books, err := c.createdBooks(ctx)
	if err != nil {
		log.Printf("[SYNC] Sync all failed: %v", err)
		return result
	}

	result.Total = len(books)
	for _, doc := range books {
		bookID := documentID(doc)
		if bookID == "" {
			result.Failed = append(result.Failed, decodeStoredBook(doc).Name)
			continue
		}
		if r := c.SyncBookToBackend(ctx, bookID); r.Success {
			result.Synced++
		} else {
			result.Failed = append(result.Failed, bookID)
			c.addPending(bookID)
		}
	}
	result.Success = len(result.Failed) == 0

	now := c.now()
	c.updateStatus(func(s *entities.SyncStatus) {
		s.LastSync = &now
	})
	if err := c.cacheOf(ctx).Set(ctx, cachekeys.LastSyncTimeKey, now.UTC().Format(time.RFC3339Nano)); err != nil {
		log.Printf("[SYNC] Failed to record last sync time: %v", err)
	}

	log.Printf("[SYNC] Synced %d/%d books for %s", result.Synced, result.Total, userID)
	if c.reporter != nil {
		c.reporter.LogBatch(userID, "sync_all", result.Synced, result.Total, result.Failed)
	}
	return result
}

// LoadBookFromBackend restores one book from the remote store into the
// local cache.
func (c *Coordinator) LoadBookFromBackend(ctx context.Context, bookID string) entities.LoadResult {
	result := entities.LoadResult{BookID: bookID, Errors: []string{}}

	userID, err := c.resolveUser(ctx, "")
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	record, err := c.remote.GetByIDAndOwner(ctx, bookID, userID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%v: %v", ErrRemoteUnavailable, err))
		return result
	}
	if record == nil {
		result.Errors = append(result.Errors, "book not found in backend")
		return result
	}
	return c.restoreRecord(ctx, userID, record)
}

// restoreRecord writes a remote record into the local cache.
func (c *Coordinator) restoreRecord(ctx context.Context, userID string, record *entities.UserBookRecord) entities.LoadResult {
	result := entities.LoadResult{BookID: record.ID, Errors: []string{}}
	bookID := record.ID
	defer func() {
		c.reportResult(userID, entities.AuditEventLoad, "load_book", bookID,
			fmt.Sprintf("Restored %d content entries", result.Restored.Templates), result.Errors)
	}()

	doc := json.RawMessage(record.BookData)
	if len(doc) == 0 || !json.Valid(doc) {
		doc = json.RawMessage(`{}`)
	}
	if documentID(doc) != bookID {
		// documents written by other clients may lack the id
		var fields map[string]any
		if err := json.Unmarshal(doc, &fields); err != nil || fields == nil {
			fields = map[string]any{}
		}
		fields["id"] = bookID
		patched, err := json.Marshal(fields)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to encode metadata: %v", err))
			return result
		}
		doc = patched
	}
	if err := c.upsertCreatedBook(ctx, bookID, doc); err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	result.Restored.Metadata = true

	metadata := metadataFromRecord(record)
	if err := c.setJSON(ctx, cachekeys.BookMetadata(bookID), metadata); err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	chapters := json.RawMessage(record.ChaptersData)
	if len(chapters) == 0 || !json.Valid(chapters) {
		chapters = json.RawMessage("[]")
	}
	if err := c.cacheOf(ctx).Set(ctx, cachekeys.Chapters(bookID), string(chapters)); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to cache chapters: %v", err))
		return result
	}
	result.Restored.Chapters = true

	// keys were built from the stored name, not the display default
	storedName := decodeStoredBook(record.BookData).Name
	index := cachekeys.Index{BookID: bookID, BookName: storedName, Entries: []cachekeys.IndexEntry{}}
	for key, raw := range decodeBag(record.ContentData) {
		if isBookkeepingKey(key, bookID) {
			continue
		}
		if err := c.cacheOf(ctx).Set(ctx, key, bagText(raw)); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to cache %s: %v", key, err))
			continue
		}
		result.Restored.Templates++
		index.Entries = append(index.Entries, classifyBagKey(key, bookID, storedName))
	}
	if err := c.setJSON(ctx, cachekeys.BookIndex(bookID), index); err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
	if err := c.writeSyncMetadata(ctx, bookID, record.UpdatedAt); err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
	result.Restored.UserData = true
	result.Success = len(result.Errors) == 0
	if result.Success {
		c.markBookLoaded(bookID)
	}
	return result
}

// LoadAllUserBooks replaces the local book list with every remote book of
// the user.
func (c *Coordinator) LoadAllUserBooks(ctx context.Context) entities.BatchLoadResult {
	result := entities.BatchLoadResult{Failed: []string{}}

	userID, err := c.resolveUser(ctx, "")
	if err != nil {
		result.Failed = append(result.Failed, err.Error())
		return result
	}

	records, err := c.remote.ListByOwner(ctx, userID)
	if err != nil {
		log.Printf("[SYNC] Load all for %s failed: %v", userID, err)
		result.Failed = append(result.Failed, "failed to fetch books from backend")
		return result
	}

	c.createdMu.Lock()
	err = c.setJSON(ctx, cachekeys.CreatedBooksKey, []json.RawMessage{})
	c.createdMu.Unlock()
	if err != nil {
		result.Failed = append(result.Failed, err.Error())
		return result
	}

	result.Total = len(records)
	for i := range records {
		r := c.restoreRecord(ctx, userID, &records[i])
		if r.Success {
			result.Loaded++
			continue
		}
		result.Failed = append(result.Failed, records[i].ID)
	}
	result.Success = len(result.Failed) == 0
	log.Printf("[SYNC] Loaded %d/%d books for %s", result.Loaded, result.Total, userID)
	if c.reporter != nil {
		c.reporter.LogBatch(userID, "load_all", result.Loaded, result.Total, result.Failed)
	}
	return result
}

// lastSyncTime reads the last_sync_time key.
func (c *Coordinator) lastSyncTime(ctx context.Context) (time.Time, bool) {
	text, ok, err := c.cacheOf(ctx).Get(ctx, cachekeys.LastSyncTimeKey)
	if err != nil || !ok {
		return time.Time{}, false
	}
	return parseTime(text)
}

// CheckForBackendUpdates reloads every remote book changed since the last
// sync-all. It returns how many books were reloaded.
func (c *Coordinator) CheckForBackendUpdates(ctx context.Context) (int, error) {
	since, ok := c.lastSyncTime(ctx)
	if !ok {
		return 0, nil
	}
	return c.reloadUpdatedSince(ctx, since, nil)
}

func (c *Coordinator) reloadUpdatedSince(ctx context.Context, since time.Time, skip map[string]bool) (int, error) {
	userID, err := c.resolveUser(ctx, "")
	if err != nil {
		return 0, err
	}
	records, err := c.remote.ListUpdatedSince(ctx, userID, since)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}

	reloaded := 0
	for i := range records {
		if skip[records[i].ID] {
			continue
		}
		if r := c.restoreRecord(ctx, userID, &records[i]); r.Success {
			reloaded++
		} else {
			log.Printf("[SYNC] Failed to reload %s: %v", records[i].ID, r.Errors)
		}
	}
	if reloaded > 0 {
		log.Printf("[SYNC] Reloaded %d book(s) updated since %s", reloaded, since.Format(time.RFC3339))
	}
	return reloaded, nil
}

// StartupResult reports what PerformStartupSync did.
type StartupResult struct {
	Mode    string                    `json:"mode"` // "load" or "sync"
	Loaded  *entities.BatchLoadResult `json:"loaded,omitempty"`
	Synced  *entities.BatchResult     `json:"synced,omitempty"`
	Updated int                       `json:"updated"`
}

// PerformStartupSync loads everything from the remote store when nothing is
// cached locally, and otherwise pushes local books and pulls remote changes.
func (c *Coordinator) PerformStartupSync(ctx context.Context) (StartupResult, error) {
	userID, err := c.resolveUser(ctx, "")
	if err != nil {
		return StartupResult{}, err
	}
	ctx = WithUser(ctx, userID)

	books, err := c.createdBooks(ctx)
	if err != nil {
		return StartupResult{}, err
	}
	if len(books) == 0 {
		loaded := c.LoadAllUserBooks(ctx)
		return StartupResult{Mode: "load", Loaded: &loaded}, nil
	}

	since, hadSync := c.lastSyncTime(ctx)
	synced := c.SyncAllUserBooks(ctx)
	result := StartupResult{Mode: "sync", Synced: &synced}
	if !hadSync {
		return result, nil
	}

	// books pushed just now are already current remotely
	skip := make(map[string]bool, len(books))
	for _, doc := range books {
		skip[documentID(doc)] = true
	}
	for _, id := range synced.Failed {
		delete(skip, id)
	}
	updated, err := c.reloadUpdatedSince(ctx, since, skip)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[SYNC] Update check after startup sync failed: %v", err)
	}
	result.Updated = updated
	return result, nil
}

// ResetAndReload clears the local cache, except preserved keys, and loads
// every remote book again.
func (c *Coordinator) ResetAndReload(ctx context.Context) entities.BatchLoadResult {
	keys, err := c.cacheOf(ctx).Keys(ctx)
	if err != nil {
		return entities.BatchLoadResult{Failed: []string{err.Error()}}
	}
	for _, key := range keys {
		if c.preserved[key] {
			continue
		}
		if err := c.cacheOf(ctx).Remove(ctx, key); err != nil {
			log.Printf("[SYNC] Failed to clear %s: %v", key, err)
		}
	}
	c.mu.Lock()
	c.recent = nil
	c.mu.Unlock()
	c.updateLoading(func(s *entities.LoadingState) {
		*s = entities.NewLoadingState()
	})
	return c.LoadAllUserBooks(ctx)
}
