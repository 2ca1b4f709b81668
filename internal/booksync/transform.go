package booksync

import (
	"bytes"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/mrlokans/booksync/internal/cachekeys"
	"github.com/mrlokans/booksync/internal/entities"
)

const (
	defaultBookName   = "Untitled Book"
	defaultAuthorName = "Unknown Author"
)

// storedBook is the loosely typed metadata document found in book_data.
// Other clients write it, so timestamps are kept as strings and parsed leniently.
type storedBook struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	AuthorName     string   `json:"authorName"`
	CreatorName    string   `json:"creatorName"`
	CoverImage     string   `json:"coverImage"`
	Description    string   `json:"description"`
	University     string   `json:"university"`
	Semester       string   `json:"semester"`
	SubjectCode    string   `json:"subjectCode"`
	Language       string   `json:"language"`
	Version        string   `json:"version"`
	Difficulty     string   `json:"difficulty"`
	EstimatedHours float64  `json:"estimatedHours"`
	IsPublished    bool     `json:"isPublished"`
	PublicLink     string   `json:"publicLink"`
	Tags           []string `json:"tags"`
	CreatedAt      string   `json:"createdAt"`
}

func decodeStoredBook(raw []byte) storedBook {
	var b storedBook
	if len(bytes.TrimSpace(raw)) == 0 {
		return b
	}
	if err := json.Unmarshal(raw, &b); err != nil {
		log.Printf("[SYNC] Ignoring malformed book document: %v", err)
		return storedBook{}
	}
	return b
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000Z", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// compactLen is the size of raw as compact JSON.
func compactLen(raw []byte) int64 {
	if len(raw) == 0 {
		return 0
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return int64(len(raw))
	}
	return int64(buf.Len())
}

func decodeChapters(raw []byte) []entities.Chapter {
	chapters := []entities.Chapter{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return chapters
	}
	if err := json.Unmarshal(raw, &chapters); err != nil {
		log.Printf("[SYNC] Ignoring malformed chapter list: %v", err)
		return []entities.Chapter{}
	}
	if chapters == nil {
		chapters = []entities.Chapter{}
	}
	return chapters
}

// metadataFromRecord builds list metadata from a remote record.
func metadataFromRecord(record *entities.UserBookRecord) entities.BookMetadata {
	b := decodeStoredBook(record.BookData)
	chapters := decodeChapters(record.ChaptersData)

	m := entities.BookMetadata{
		ID:             record.ID,
		Name:           b.Name,
		AuthorName:     b.AuthorName,
		CreatorName:    b.CreatorName,
		CoverImage:     b.CoverImage,
		Description:    b.Description,
		University:     b.University,
		Semester:       b.Semester,
		SubjectCode:    b.SubjectCode,
		Language:       b.Language,
		Version:        b.Version,
		Difficulty:     b.Difficulty,
		EstimatedHours: b.EstimatedHours,
		ChapterCount:   len(chapters),
		IsPublished:    b.IsPublished || record.IsPublished,
		PublicLink:     b.PublicLink,
		Tags:           b.Tags,
		FileSize:       compactLen(record.BookData) + compactLen(record.ChaptersData),
		LastModified:   record.UpdatedAt,
		CreatedAt:      record.UpdatedAt,
		UpdatedAt:      record.UpdatedAt,
	}
	if m.Name == "" {
		m.Name = defaultBookName
	}
	if b.CreatorName != "" {
		m.AuthorName = b.CreatorName
	}
	if m.AuthorName == "" {
		m.AuthorName = defaultAuthorName
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}
	if m.PublicLink == "" && record.PublicLink != nil {
		m.PublicLink = *record.PublicLink
	}
	if m.LastModified.IsZero() {
		m.LastModified = record.LastSynced
	}
	if t, ok := parseTime(b.CreatedAt); ok {
		m.CreatedAt = t
	}
	return m
}

// bookFromRecord expands a remote record into a full bundle. Content-bag
// entries are bucketed by key prefix; entries that do not parse are skipped.
func bookFromRecord(record *entities.UserBookRecord) *entities.FullBookData {
	data := entities.NewFullBookData(metadataFromRecord(record))
	data.Chapters = decodeChapters(record.ChaptersData)

	// keys were built from the stored name, not the display default
	bookName := decodeStoredBook(record.BookData).Name

	bag := decodeBag(record.ContentData)
	for key, raw := range bag {
		applyEntry(data, classifyBagKey(key, record.ID, bookName), bagText(raw))
	}
	return data
}

// classifyBagKey locates a content-bag key of the book. Every bag key
// belongs to the record it came from, so keys of unknown layout become
// DomainOther entries instead of being dropped.
func classifyBagKey(key, bookID, bookName string) cachekeys.IndexEntry {
	if entry, ok := cachekeys.Parse(key, bookID, bookName); ok && entry.Domain.IsContent() {
		return entry
	}
	if rest, legacy := strings.CutPrefix(key, "highlights_"); legacy && rest != "" {
		return cachekeys.IndexEntry{Key: key, Domain: cachekeys.DomainHighlights, Chapter: rest}
	}
	return cachekeys.IndexEntry{Key: key, Domain: cachekeys.DomainOther}
}

// applyEntry stores a raw cache value into the bundle slot entry points at.
func applyEntry(data *entities.FullBookData, entry cachekeys.IndexEntry, value string) {
	switch entry.Domain {
	case cachekeys.DomainTemplate:
		raw := json.RawMessage(value)
		if err := entities.ValidateTemplatePayload(entry.Kind, raw); err != nil {
			log.Printf("[SYNC] Skipping %s: %v", entry.Key, err)
			return
		}
		if data.TemplateData[entry.Kind] == nil {
			data.TemplateData[entry.Kind] = make(map[string]json.RawMessage)
		}
		data.TemplateData[entry.Kind][entry.Chapter] = raw
	case cachekeys.DomainCustomTab:
		if data.CustomTabs[entry.Chapter] == nil {
			data.CustomTabs[entry.Chapter] = make(map[string]string)
		}
		data.CustomTabs[entry.Chapter][entry.Tab] = value
	case cachekeys.DomainHighlights:
		var highlights []entities.Highlight
		if err := json.Unmarshal([]byte(value), &highlights); err != nil {
			log.Printf("[SYNC] Skipping %s: %v", entry.Key, err)
			return
		}
		data.Highlights[entry.Chapter] = highlights
	}
}

func decodeBag(raw []byte) map[string]json.RawMessage {
	bag := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return bag
	}
	if err := json.Unmarshal(raw, &bag); err != nil {
		log.Printf("[SYNC] Ignoring malformed content bag: %v", err)
		return map[string]json.RawMessage{}
	}
	return bag
}

// bagText converts a content-bag value back to the string the local cache
// holds: JSON strings are unquoted, everything else stays JSON text.
func bagText(raw json.RawMessage) string {
	var s string
	if len(raw) > 0 && raw[0] == '"' && json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

// bagValue is the inverse of bagText for a value read from the local cache.
func bagValue(text string) (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || trimmed == "null" {
		return nil, false
	}
	if json.Valid([]byte(trimmed)) && !strings.HasPrefix(trimmed, `"`) {
		return json.RawMessage(trimmed), true
	}
	encoded, err := json.Marshal(text)
	if err != nil {
		return nil, false
	}
	return encoded, true
}
