package entities

import (
	"time"

	"gorm.io/datatypes"
)

// UserBookRecord is the remote, authoritative copy of a book. BookData holds
// the metadata document, ChaptersData the chapter list and ContentData the
// flattened local-key to value bag.
type UserBookRecord struct {
	ID           string         `gorm:"primaryKey;size:100" json:"id"`
	UserID       string         `gorm:"index;size:100;not null" json:"user_id"`
	BookData     datatypes.JSON `json:"book_data"`
	ChaptersData datatypes.JSON `json:"chapters_data"`
	ContentData  datatypes.JSON `json:"content_data"`
	IsPublished  bool           `gorm:"index" json:"is_published"`
	PublicLink   *string        `gorm:"uniqueIndex;size:200" json:"public_link,omitempty"`
	LastSynced   time.Time      `json:"last_synced"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `gorm:"index" json:"updated_at"`
}

func (UserBookRecord) TableName() string {
	return "user_books"
}
