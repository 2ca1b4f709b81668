// Package assets stores metadata of uploaded book assets.
package assets

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/booksync/internal/entities"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// SaveAsset records an uploaded asset.
func (r *Repository) SaveAsset(ctx context.Context, asset *entities.AssetRecord) error {
	if asset.UploadedAt.IsZero() {
		asset.UploadedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(asset).Error
}

// GetAsset returns nil, nil when the asset is unknown.
func (r *Repository) GetAsset(ctx context.Context, id string) (*entities.AssetRecord, error) {
	var asset entities.AssetRecord
	err := r.db.WithContext(ctx).First(&asset, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

// ListForBook returns the assets of a book, oldest first.
func (r *Repository) ListForBook(ctx context.Context, userID, bookID string) ([]entities.AssetRecord, error) {
	var assets []entities.AssetRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND book_id = ?", userID, bookID).
		Order("uploaded_at ASC").
		Find(&assets).Error
	return assets, err
}

// DeleteForBook removes every asset record of a book and returns them so the
// caller can delete the stored objects.
func (r *Repository) DeleteForBook(ctx context.Context, userID, bookID string) ([]entities.AssetRecord, error) {
	assets, err := r.ListForBook(ctx, userID, bookID)
	if err != nil {
		return nil, err
	}
	if len(assets) == 0 {
		return nil, nil
	}
	err = r.db.WithContext(ctx).
		Where("user_id = ? AND book_id = ?", userID, bookID).
		Delete(&entities.AssetRecord{}).Error
	return assets, err
}

// UsageForUser returns the number of assets and their total size.
func (r *Repository) UsageForUser(ctx context.Context, userID string) (count int64, totalSize int64, err error) {
	var row struct {
		Count int64
		Total int64
	}
	err = r.db.WithContext(ctx).Model(&entities.AssetRecord{}).
		Select("COUNT(*) AS count, COALESCE(SUM(file_size), 0) AS total").
		Where("user_id = ?", userID).
		Scan(&row).Error
	return row.Count, row.Total, err
}
