package entities

import (
	"time"
)

// LocalEntry is one key/value pair of the local book cache.
type LocalEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"uniqueIndex;size:512" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (LocalEntry) TableName() string {
	return "local_entries"
}
