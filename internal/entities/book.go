package entities

import (
	"encoding/json"
	"time"
)

// TemplateKind is one of the fixed learning-aid categories attached to chapters.
type TemplateKind string

const (
	TemplateFlashcards TemplateKind = "flashcards"
	TemplateMCQ        TemplateKind = "mcq"
	TemplateQA         TemplateKind = "qa"
	TemplateNotes      TemplateKind = "notes"
	TemplateMindMaps   TemplateKind = "mindmaps"
	TemplateVideos     TemplateKind = "videos"
)

// TemplateKinds lists every template kind in a stable order.
var TemplateKinds = []TemplateKind{
	TemplateFlashcards,
	TemplateMCQ,
	TemplateQA,
	TemplateNotes,
	TemplateMindMaps,
	TemplateVideos,
}

// IsValid reports whether k is a known template kind.
func (k TemplateKind) IsValid() bool {
	for _, known := range TemplateKinds {
		if k == known {
			return true
		}
	}
	return false
}

type AssetType string

const (
	AssetTypeImage    AssetType = "image"
	AssetTypePDF      AssetType = "pdf"
	AssetTypeVideo    AssetType = "video"
	AssetTypeAudio    AssetType = "audio"
	AssetTypeDocument AssetType = "document"
)

// BookMetadata is the lightweight summary used to render book lists.
type BookMetadata struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	AuthorName     string    `json:"authorName"`
	CreatorName    string    `json:"creatorName,omitempty"`
	CoverImage     string    `json:"coverImage,omitempty"`
	Description    string    `json:"description,omitempty"`
	University     string    `json:"university,omitempty"`
	Semester       string    `json:"semester,omitempty"`
	SubjectCode    string    `json:"subjectCode,omitempty"`
	Language       string    `json:"language,omitempty"`
	Version        string    `json:"version,omitempty"`
	Difficulty     string    `json:"difficulty,omitempty"`
	EstimatedHours float64   `json:"estimatedHours,omitempty"`
	ChapterCount   int       `json:"chapterCount"`
	IsPublished    bool      `json:"isPublished"`
	PublicLink     string    `json:"publicLink,omitempty"`
	Tags           []string  `json:"tags"`
	FileSize       int64     `json:"fileSize"`
	LastModified   time.Time `json:"lastModified"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type Chapter struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Order     int    `json:"order"`
	WordCount int    `json:"wordCount,omitempty"`
}

// Highlight is a single text annotation inside a chapter.
type Highlight struct {
	ID             string          `json:"id"`
	Text           string          `json:"text"`
	Color          string          `json:"color,omitempty"`
	ChapterID      string          `json:"chapterId,omitempty"`
	Note           string          `json:"note,omitempty"`
	StartOffset    int             `json:"startOffset,omitempty"`
	EndOffset      int             `json:"endOffset,omitempty"`
	StartWordIndex *int            `json:"startWordIndex,omitempty"`
	EndWordIndex   *int            `json:"endWordIndex,omitempty"`
	Timestamp      json.RawMessage `json:"timestamp,omitempty"`
	CreatedAt      json.RawMessage `json:"createdAt,omitempty"`
}

// AssetReference points at durable media belonging to a book.
type AssetReference struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Type      AssetType `json:"type"`
	BookID    string    `json:"bookId"`
	ChapterID string    `json:"chapterId,omitempty"`
	Size      int64     `json:"size,omitempty"`
}

// TemplateData maps template kind -> chapter key -> payload.
type TemplateData map[TemplateKind]map[string]json.RawMessage

// CustomTabs maps chapter key -> tab name -> free-form text.
type CustomTabs map[string]map[string]string

// Highlights maps chapter key -> highlights of that chapter.
type Highlights map[string][]Highlight

// FullBookData is the complete content bundle of a book.
type FullBookData struct {
	Metadata     BookMetadata     `json:"metadata"`
	Chapters     []Chapter        `json:"chapters"`
	TemplateData TemplateData     `json:"templateData"`
	CustomTabs   CustomTabs       `json:"customTabs"`
	Highlights   Highlights       `json:"highlights"`
	Assets       []AssetReference `json:"assets"`
}

// NewFullBookData returns a bundle with every map initialised, including an
// empty bucket per template kind.
func NewFullBookData(metadata BookMetadata) *FullBookData {
	templates := make(TemplateData, len(TemplateKinds))
	for _, kind := range TemplateKinds {
		templates[kind] = make(map[string]json.RawMessage)
	}
	return &FullBookData{
		Metadata:     metadata,
		Chapters:     []Chapter{},
		TemplateData: templates,
		CustomTabs:   make(CustomTabs),
		Highlights:   make(Highlights),
		Assets:       []AssetReference{},
	}
}
