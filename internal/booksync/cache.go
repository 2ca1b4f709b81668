package booksync

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"maps"
	"slices"
	"time"

	"github.com/mrlokans/booksync/internal/cachekeys"
	"github.com/mrlokans/booksync/internal/entities"
)

// CacheBookData writes a full book into the local cache: chapter list,
// every template payload, custom tab and highlight list under its own key,
// the metadata, the key index and finally the sync metadata. Chapter keys are
// stored normalized. Keys written by a previous call that are no longer part
// of the book are removed.
func (c *Coordinator) CacheBookData(ctx context.Context, bookID string, data *entities.FullBookData) error {
	if data == nil {
		return fmt.Errorf("%w: no data", ErrInvalidBook)
	}
	if err := data.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBook, err)
	}

	metadata := data.Metadata
	metadata.ID = bookID
	if metadata.Tags == nil {
		metadata.Tags = []string{}
	}
	name := metadata.Name

	previous, _, err := c.readIndex(ctx, bookID)
	if err != nil {
		return err
	}

	index := cachekeys.Index{BookID: bookID, BookName: name, Entries: []cachekeys.IndexEntry{}}
	values := make(map[string]string)
	add := func(entry cachekeys.IndexEntry, value string) {
		index.Entries = append(index.Entries, entry)
		values[entry.Key] = value
	}

	for _, kind := range entities.TemplateKinds {
		payloads := data.TemplateData[kind]
		chapters, err := normalizeChapters(string(kind), payloads)
		if err != nil {
			return err
		}
		for _, ch := range chapters {
			add(cachekeys.IndexEntry{
				Key:     cachekeys.Template(kind, name, ch.key),
				Domain:  cachekeys.DomainTemplate,
				Kind:    kind,
				Chapter: ch.key,
			}, string(payloads[ch.raw]))
		}
	}
	tabChapters, err := normalizeChapters("customTabs", data.CustomTabs)
	if err != nil {
		return err
	}
	for _, ch := range tabChapters {
		tabs := data.CustomTabs[ch.raw]
		for _, tab := range slices.Sorted(maps.Keys(tabs)) {
			if tab == "" {
				return fmt.Errorf("%w: chapter %q has a custom tab without a name", ErrInvalidBook, ch.raw)
			}
			add(cachekeys.IndexEntry{
				Key:     cachekeys.CustomTab(name, ch.key, tab),
				Domain:  cachekeys.DomainCustomTab,
				Chapter: ch.key,
				Tab:     tab,
			}, tabs[tab])
		}
	}
	highlightChapters, err := normalizeChapters("highlights", data.Highlights)
	if err != nil {
		return err
	}
	for _, ch := range highlightChapters {
		highlights := data.Highlights[ch.raw]
		if highlights == nil {
			highlights = []entities.Highlight{}
		}
		encoded, err := json.Marshal(highlights)
		if err != nil {
			return fmt.Errorf("failed to encode highlights of %q: %w", ch.raw, err)
		}
		add(cachekeys.IndexEntry{
			Key:     cachekeys.Highlights(name, ch.key),
			Domain:  cachekeys.DomainHighlights,
			Chapter: ch.key,
		}, string(encoded))
	}

	chapters := data.Chapters
	if chapters == nil {
		chapters = []entities.Chapter{}
	}
	assetRefs := data.Assets
	if assetRefs == nil {
		assetRefs = []entities.AssetReference{}
	}
	fixed := []struct {
		key   string
		value any
	}{
		{cachekeys.Chapters(bookID), chapters},
		{cachekeys.BookMetadata(bookID), metadata},
		{cachekeys.BookAssets(bookID), assetRefs},
	}
	for _, f := range fixed {
		if err := c.setJSON(ctx, f.key, f.value); err != nil {
			return err
		}
	}

	for _, entry := range index.Entries {
		if err := c.cacheOf(ctx).Set(ctx, entry.Key, values[entry.Key]); err != nil {
			return fmt.Errorf("failed to cache %s: %w", entry.Key, err)
		}
	}
	if previous != nil {
		for _, key := range previous.Keys() {
			if _, still := values[key]; still {
				continue
			}
			if err := c.cacheOf(ctx).Remove(ctx, key); err != nil {
				log.Printf("[SYNC] Failed to remove stale key %s: %v", key, err)
			}
		}
	}
	if err := c.setJSON(ctx, cachekeys.BookIndex(bookID), index); err != nil {
		return err
	}

	metaDoc, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := c.upsertCreatedBook(ctx, bookID, metaDoc); err != nil {
		return err
	}

	return c.writeSyncMetadata(ctx, bookID, metadata.UpdatedAt)
}

type chapterKey struct {
	raw string
	key string
}

// normalizeChapters maps the chapter keys of one chapter-keyed map to their
// cache form, sorted by raw key. Two keys that normalize alike are rejected.
func normalizeChapters[V any](field string, m map[string]V) ([]chapterKey, error) {
	seen := make(map[string]string, len(m))
	out := make([]chapterKey, 0, len(m))
	for _, raw := range slices.Sorted(maps.Keys(m)) {
		key := cachekeys.Normalize(raw)
		if key == "" {
			return nil, fmt.Errorf("%w: %s has an empty chapter key", ErrInvalidBook, field)
		}
		if prev, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: %s chapters %q and %q both map to %q", ErrInvalidBook, field, prev, raw, key)
		}
		seen[key] = raw
		out = append(out, chapterKey{raw: raw, key: key})
	}
	return out, nil
}

// ReconstructFromCache rebuilds a book purely from the local cache. The
// boolean is false when the book's metadata is not cached.
func (c *Coordinator) ReconstructFromCache(ctx context.Context, bookID string) (*entities.FullBookData, bool, error) {
	metaText, ok, err := c.cacheOf(ctx).Get(ctx, cachekeys.BookMetadata(bookID))
	if err != nil {
		return nil, false, fmt.Errorf("failed to read metadata of %s: %w", bookID, err)
	}
	if !ok {
		return nil, false, nil
	}
	var metadata entities.BookMetadata
	if err := json.Unmarshal([]byte(metaText), &metadata); err != nil {
		log.Printf("[SYNC] Cached metadata of %s is unreadable: %v", bookID, err)
		return nil, false, nil
	}
	if metadata.Tags == nil {
		metadata.Tags = []string{}
	}

	data := entities.NewFullBookData(metadata)
	if text, ok, err := c.cacheOf(ctx).Get(ctx, cachekeys.Chapters(bookID)); err != nil {
		return nil, false, fmt.Errorf("failed to read chapters of %s: %w", bookID, err)
	} else if ok {
		data.Chapters = decodeChapters([]byte(text))
	}
	if text, ok, err := c.cacheOf(ctx).Get(ctx, cachekeys.BookAssets(bookID)); err != nil {
		return nil, false, fmt.Errorf("failed to read assets of %s: %w", bookID, err)
	} else if ok {
		if err := json.Unmarshal([]byte(text), &data.Assets); err != nil || data.Assets == nil {
			data.Assets = []entities.AssetReference{}
		}
	}

	index, found, err := c.readIndex(ctx, bookID)
	if err != nil {
		return nil, false, err
	}
	var entries []cachekeys.IndexEntry
	if found {
		entries = index.Entries
	} else {
		entries, err = c.scanEntries(ctx, bookID, metadata.Name)
		if err != nil {
			return nil, false, err
		}
	}

	for _, entry := range entries {
		value, ok, err := c.cacheOf(ctx).Get(ctx, entry.Key)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read %s: %w", entry.Key, err)
		}
		if !ok {
			continue
		}
		applyEntry(data, entry, value)
	}
	return data, true, nil
}

func (c *Coordinator) readIndex(ctx context.Context, bookID string) (*cachekeys.Index, bool, error) {
	text, ok, err := c.cacheOf(ctx).Get(ctx, cachekeys.BookIndex(bookID))
	if err != nil {
		return nil, false, fmt.Errorf("failed to read index of %s: %w", bookID, err)
	}
	if !ok {
		return nil, false, nil
	}
	var index cachekeys.Index
	if err := json.Unmarshal([]byte(text), &index); err != nil {
		log.Printf("[SYNC] Index of %s is unreadable, falling back to a key scan: %v", bookID, err)
		return nil, false, nil
	}
	return &index, true, nil
}

// scanEntries classifies every cached key by prefix. Used for caches written
// before the index existed. Keys that also parse under a longer known book
// name belong to that book.
func (c *Coordinator) scanEntries(ctx context.Context, bookID, bookName string) ([]cachekeys.IndexEntry, error) {
	keys, err := c.cacheOf(ctx).Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache keys: %w", err)
	}
	books, err := c.createdBooks(ctx)
	if err != nil {
		return nil, err
	}
	others := make([]string, 0, len(books))
	for _, doc := range books {
		if documentID(doc) != bookID {
			others = append(others, decodeStoredBook(doc).Name)
		}
	}

	var entries []cachekeys.IndexEntry
	for _, key := range keys {
		entry, ok := cachekeys.ParseAmong(key, bookID, bookName, others)
		if !ok || !entry.Domain.IsContent() {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (c *Coordinator) setJSON(ctx context.Context, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := c.cacheOf(ctx).Set(ctx, key, string(encoded)); err != nil {
		return fmt.Errorf("failed to cache %s: %w", key, err)
	}
	return nil
}

func (c *Coordinator) writeSyncMetadata(ctx context.Context, bookID string, remoteVersion time.Time) error {
	now := c.now()
	if remoteVersion.IsZero() {
		remoteVersion = now
	}
	return c.setJSON(ctx, cachekeys.SyncMetadata(bookID), entities.SyncMetadata{
		BookID:        bookID,
		LastSync:      now,
		LocalVersion:  now.UnixMilli(),
		RemoteVersion: remoteVersion.UnixMilli(),
		Status:        entities.SyncStateSynced,
	})
}

func (c *Coordinator) readSyncMetadata(ctx context.Context, bookID string) (*entities.SyncMetadata, bool) {
	text, ok, err := c.cacheOf(ctx).Get(ctx, cachekeys.SyncMetadata(bookID))
	if err != nil || !ok {
		return nil, false
	}
	var meta entities.SyncMetadata
	if err := json.Unmarshal([]byte(text), &meta); err != nil {
		return nil, false
	}
	return &meta, true
}

// createdBooks returns the raw documents of the created_books list.
func (c *Coordinator) createdBooks(ctx context.Context) ([]json.RawMessage, error) {
	text, ok, err := c.cacheOf(ctx).Get(ctx, cachekeys.CreatedBooksKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read local book list: %w", err)
	}
	books := []json.RawMessage{}
	if !ok || text == "" {
		return books, nil
	}
	if err := json.Unmarshal([]byte(text), &books); err != nil {
		log.Printf("[SYNC] Local book list is unreadable, treating it as empty: %v", err)
		return []json.RawMessage{}, nil
	}
	return books, nil
}

func documentID(doc json.RawMessage) string {
	var head struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(doc, &head)
	return head.ID
}

func findCreatedBook(books []json.RawMessage, bookID string) (json.RawMessage, bool) {
	for _, doc := range books {
		if documentID(doc) == bookID {
			return doc, true
		}
	}
	return nil, false
}

// upsertCreatedBook replaces or appends doc in the created_books list.
func (c *Coordinator) upsertCreatedBook(ctx context.Context, bookID string, doc json.RawMessage) error {
	c.createdMu.Lock()
	defer c.createdMu.Unlock()

	books, err := c.createdBooks(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i, existing := range books {
		if documentID(existing) == bookID {
			books[i] = doc
			replaced = true
			break
		}
	}
	if !replaced {
		books = append(books, doc)
	}
	return c.setJSON(ctx, cachekeys.CreatedBooksKey, books)
}

func (c *Coordinator) removeCreatedBook(ctx context.Context, bookID string) (bool, error) {
	c.createdMu.Lock()
	defer c.createdMu.Unlock()

	books, err := c.createdBooks(ctx)
	if err != nil {
		return false, err
	}
	kept := slices.DeleteFunc(books, func(doc json.RawMessage) bool { return documentID(doc) == bookID })
	if len(kept) == len(books) {
		return false, nil
	}
	return true, c.setJSON(ctx, cachekeys.CreatedBooksKey, kept)
}
