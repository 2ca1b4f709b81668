// Package userbooks is the remote document store of books, one user_books
// row per book.
package userbooks

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/booksync/internal/entities"
)

// ErrOwnershipConflict is returned when an upsert targets a book id owned by
// another user.
var ErrOwnershipConflict = errors.New("book is owned by another user")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ListByOwner returns every book of a user, most recently updated first.
func (r *Repository) ListByOwner(ctx context.Context, userID string) ([]entities.UserBookRecord, error) {
	var records []entities.UserBookRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&records).Error
	return records, err
}

// GetByIDAndOwner returns nil, nil when the user has no such book.
func (r *Repository) GetByIDAndOwner(ctx context.Context, id, userID string) (*entities.UserBookRecord, error) {
	var record entities.UserBookRecord
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Upsert inserts the record or replaces every column but created_at.
func (r *Repository) Upsert(ctx context.Context, record *entities.UserBookRecord) error {
	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"book_data", "chapters_data", "content_data",
			"is_published", "public_link", "last_synced", "updated_at",
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "user_books.user_id = excluded.user_id"},
		}},
	}).Create(record)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOwnershipConflict
	}
	return nil
}

// DeleteByIDAndOwner reports whether a row was removed.
func (r *Repository) DeleteByIDAndOwner(ctx context.Context, id, userID string) (bool, error) {
	result := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&entities.UserBookRecord{})
	return result.RowsAffected > 0, result.Error
}

// ListUpdatedSince returns the user's books updated strictly after since.
func (r *Repository) ListUpdatedSince(ctx context.Context, userID string, since time.Time) ([]entities.UserBookRecord, error) {
	var records []entities.UserBookRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND updated_at > ?", userID, since).
		Order("updated_at ASC").
		Find(&records).Error
	return records, err
}

// GetPublished looks a book up by public link without an owner check. Only
// published books are returned; nil, nil otherwise.
func (r *Repository) GetPublished(ctx context.Context, publicLink string) (*entities.UserBookRecord, error) {
	var record entities.UserBookRecord
	err := r.db.WithContext(ctx).
		Where("public_link = ? AND is_published = ?", publicLink, true).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Search matches published books by name, author or description, and
// optionally requires every tag in tags. A limit <= 0 means 50.
func (r *Repository) Search(ctx context.Context, query string, tags []string, limit int) ([]entities.UserBookRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var candidates []entities.UserBookRecord
	err := r.db.WithContext(ctx).
		Where("is_published = ?", true).
		Order("updated_at DESC").
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	var matched []entities.UserBookRecord
	for _, record := range candidates {
		var meta searchFields
		if len(record.BookData) > 0 {
			if err := json.Unmarshal(record.BookData, &meta); err != nil {
				continue
			}
		}
		if !meta.matches(needle, tags) {
			continue
		}
		matched = append(matched, record)
		if len(matched) == limit {
			break
		}
	}
	return matched, nil
}

type searchFields struct {
	Name        string   `json:"name"`
	AuthorName  string   `json:"authorName"`
	CreatorName string   `json:"creatorName"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

func (s searchFields) matches(needle string, tags []string) bool {
	if needle != "" {
		haystack := strings.ToLower(strings.Join([]string{s.Name, s.AuthorName, s.CreatorName, s.Description}, "\n"))
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	for _, want := range tags {
		found := false
		for _, have := range s.Tags {
			if strings.EqualFold(want, have) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
