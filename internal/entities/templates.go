package entities

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Typed learning-aid items. Payloads are kept as raw JSON inside TemplateData so
// fields written by other clients survive a round-trip; these types are a
// read view of each kind in the shape the editors write. Dates are kept as raw
// JSON because clients write them as ISO strings or epoch numbers.

type Flashcard struct {
	ID         string          `json:"id"`
	Question   string          `json:"question,omitempty"`
	Answer     string          `json:"answer,omitempty"`
	Front      string          `json:"front,omitempty"`
	Back       string          `json:"back,omitempty"`
	Difficulty string          `json:"difficulty,omitempty"`
	Interval   float64         `json:"interval,omitempty"`
	EaseFactor float64         `json:"easeFactor,omitempty"`
	Reviews    int             `json:"reviews,omitempty"`
	Lapses     int             `json:"lapses,omitempty"`
	Created    json.RawMessage `json:"created,omitempty"`
}

type MCQOption struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

type MCQ struct {
	ID          string      `json:"id"`
	Question    string      `json:"question"`
	Options     []MCQOption `json:"options"`
	Explanation string      `json:"explanation,omitempty"`
	Category    string      `json:"category,omitempty"`
	Difficulty  string      `json:"difficulty,omitempty"`
}

// Correct returns the options marked correct.
func (q MCQ) Correct() []MCQOption {
	var correct []MCQOption
	for _, o := range q.Options {
		if o.IsCorrect {
			correct = append(correct, o)
		}
	}
	return correct
}

type QAPair struct {
	ID         string          `json:"id"`
	Question   string          `json:"question"`
	Answer     string          `json:"answer"`
	Marks      float64         `json:"marks,omitempty"`
	Category   string          `json:"category,omitempty"`
	Difficulty string          `json:"difficulty,omitempty"`
	Timestamp  json.RawMessage `json:"timestamp,omitempty"`
}

type Note struct {
	ID        string          `json:"id"`
	Topic     string          `json:"topic"`
	Content   string          `json:"content"`
	CreatedAt json.RawMessage `json:"createdAt,omitempty"`
	UpdatedAt json.RawMessage `json:"updatedAt,omitempty"`
}

type MindMap struct {
	ID        string          `json:"id"`
	Label     string          `json:"label"`
	Type      string          `json:"type,omitempty"` // "image" or "pdf"
	FileURL   string          `json:"fileUrl"`
	FileName  string          `json:"fileName,omitempty"`
	FileSize  string          `json:"fileSize,omitempty"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

type Video struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	YouTubeURL     string          `json:"youtubeUrl"`
	Thumbnail      string          `json:"thumbnail,omitempty"`
	Duration       string          `json:"duration,omitempty"`
	Category       string          `json:"category,omitempty"`
	Description    string          `json:"description,omitempty"`
	StartTime      *float64        `json:"startTime,omitempty"`
	EndTime        *float64        `json:"endTime,omitempty"`
	IsPlaylist     bool            `json:"isPlaylist,omitempty"`
	PlaylistVideos []Video         `json:"playlistVideos,omitempty"`
	AddedDate      json.RawMessage `json:"addedDate,omitempty"`
	Timestamp      json.RawMessage `json:"timestamp,omitempty"`
}

// ValidateTemplatePayload checks that raw is a JSON array of item objects
// (or JSON null). Item fields are not checked, so any shape a client writes
// is stored as-is.
func ValidateTemplatePayload(kind TemplateKind, raw json.RawMessage) error {
	if !kind.IsValid() {
		return fmt.Errorf("unknown template kind %q", kind)
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return fmt.Errorf("%s payload is empty", kind)
	}
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return fmt.Errorf("invalid %s payload: %w", kind, err)
	}
	for i, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			return fmt.Errorf("invalid %s payload: item %d is not an object", kind, i)
		}
	}
	return nil
}

// DecodeTemplate decodes a payload into a slice of typed items.
func DecodeTemplate[T any](raw json.RawMessage) ([]T, error) {
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Validate checks every payload of the bundle.
func (d *FullBookData) Validate() error {
	for kind, chapters := range d.TemplateData {
		for chapterKey, raw := range chapters {
			if err := ValidateTemplatePayload(kind, raw); err != nil {
				return fmt.Errorf("chapter %q: %w", chapterKey, err)
			}
		}
	}
	return nil
}
