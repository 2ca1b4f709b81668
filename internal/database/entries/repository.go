// Package entries stores the local book cache as key/value rows.
//
// # Usage
//
//	store := entries.NewRepository(db)
//	err := store.Set(ctx, "chapters_b1", `[...]`)
//	value, ok, err := store.Get(ctx, "chapters_b1")
package entries

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/booksync/internal/entities"
)

// Repository handles all local cache entry operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new entries repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Get returns the value stored under key. ok is false when the key is absent.
func (r *Repository) Get(ctx context.Context, key string) (string, bool, error) {
	var entry entities.LocalEntry
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

// Set creates or updates the value under key.
func (r *Repository) Set(ctx context.Context, key, value string) error {
	entry := entities.LocalEntry{Key: key, Value: value}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}

// Remove deletes key. Removing a missing key is not an error.
func (r *Repository) Remove(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Where("key = ?", key).Delete(&entities.LocalEntry{}).Error
}

// Keys lists every stored key in insertion order.
func (r *Repository) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := r.db.WithContext(ctx).Model(&entities.LocalEntry{}).Order("id ASC").Pluck("key", &keys).Error
	return keys, err
}

// Count returns the number of stored entries.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.LocalEntry{}).Count(&count).Error
	return count, err
}
