package assets

import (
	"context"
	"fmt"
	"log"

	"github.com/mrlokans/booksync/internal/entities"
	"github.com/mrlokans/booksync/internal/storage"
)

// CatalogRepository is the asset metadata storage used by Catalog.
type CatalogRepository interface {
	ListForBook(ctx context.Context, userID, bookID string) ([]entities.AssetRecord, error)
	DeleteForBook(ctx context.Context, userID, bookID string) ([]entities.AssetRecord, error)
}

// Catalog exposes the durable assets of books.
type Catalog struct {
	repo  CatalogRepository
	store storage.ObjectStore
}

func NewCatalog(repo CatalogRepository, store storage.ObjectStore) *Catalog {
	return &Catalog{repo: repo, store: store}
}

func (c *Catalog) ListBookAssets(ctx context.Context, userID, bookID string) ([]entities.AssetReference, error) {
	records, err := c.repo.ListForBook(ctx, userID, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	refs := make([]entities.AssetReference, 0, len(records))
	for _, r := range records {
		refs = append(refs, entities.AssetReference{
			ID:        r.ID,
			URL:       r.PublicURL,
			Type:      r.AssetType,
			BookID:    r.BookID,
			ChapterID: r.ChapterID,
			Size:      r.FileSize,
		})
	}
	return refs, nil
}

// DeleteBookAssets removes the metadata rows and then the stored objects.
// Object deletion failures are logged; the rows are already gone.
func (c *Catalog) DeleteBookAssets(ctx context.Context, userID, bookID string) error {
	records, err := c.repo.DeleteForBook(ctx, userID, bookID)
	if err != nil {
		return fmt.Errorf("failed to delete asset records: %w", err)
	}
	if c.store == nil {
		return nil
	}
	for _, r := range records {
		if err := c.store.Delete(ctx, r.StorageKey); err != nil {
			log.Printf("[ASSETS] Failed to delete object %s: %v", r.StorageKey, err)
		}
	}
	if len(records) > 0 {
		log.Printf("[ASSETS] Deleted %d asset(s) of book %s", len(records), bookID)
	}
	return nil
}
