package entities

import (
	"time"
)

// AssetRecord describes an uploaded asset in the object store.
type AssetRecord struct {
	ID         string    `gorm:"primaryKey;size:64" json:"id"`
	UserID     string    `gorm:"index;size:100" json:"user_id"`
	BookID     string    `gorm:"index;size:100" json:"book_id"`
	ChapterID  string    `gorm:"size:200" json:"chapter_id"`
	TabID      string    `gorm:"size:200" json:"tab_id"`
	FileName   string    `gorm:"size:255" json:"file_name"`
	FileSize   int64     `json:"file_size"`
	MimeType   string    `gorm:"size:100" json:"mime_type"`
	AssetType  AssetType `gorm:"size:20" json:"asset_type"`
	StorageKey string    `gorm:"size:512" json:"storage_key"`
	PublicURL  string    `gorm:"type:text" json:"public_url"`
	UploadedAt time.Time `json:"uploaded_at"`
}

func (AssetRecord) TableName() string {
	return "asset_metadata"
}
