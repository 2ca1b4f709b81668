// Package cachekeys builds and parses the keys of the local book cache.
// Every book name and chapter key goes through Normalize here and nowhere else.
package cachekeys

import (
	"regexp"
	"strings"

	"github.com/mrlokans/booksync/internal/entities"
)

// Domain identifies what kind of value a cache key holds.
type Domain string

const (
	DomainChapters          Domain = "chapters"
	DomainTemplate          Domain = "template"
	DomainCustomTab         Domain = "customtab"
	DomainHighlights        Domain = "highlights"
	DomainBookMetadata      Domain = "book_metadata"
	DomainBookIndex         Domain = "book_index"
	DomainBookAssets        Domain = "book_assets"
	DomainSyncMetadata      Domain = "sync_metadata"
	DomainBookList          Domain = "cached_book_list"
	DomainBookListTimestamp Domain = "cached_book_list_timestamp"
	DomainCreatedBooks      Domain = "created_books"
	DomainLastSyncTime      Domain = "last_sync_time"
	// DomainOther marks a book key of unknown layout. It is carried along
	// on sync and purge but never decoded.
	DomainOther Domain = "other"
)

const (
	CreatedBooksKey = "created_books"
	LastSyncTimeKey = "last_sync_time"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Normalize trims s and collapses each run of whitespace into a single underscore.
func Normalize(s string) string {
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(s), "_")
}

var (
	tabEscaper   = strings.NewReplacer("%", "%25", "_", "%5F")
	tabUnescaper = strings.NewReplacer("%25", "%", "%5F", "_")
)

// EscapeTab makes a custom tab name free of underscores so it can always be
// split off the end of a customtab key.
func EscapeTab(name string) string {
	return tabEscaper.Replace(name)
}

func UnescapeTab(escaped string) string {
	return tabUnescaper.Replace(escaped)
}

// UserScope is the prefix under which one user's keys live in a shared cache.
func UserScope(userID string) string {
	return "user:" + userID + ":"
}

// Key is a structured cache key. Only the fields relevant to Domain are used.
type Key struct {
	Domain     Domain
	BookID     string
	BookName   string
	ChapterKey string
	TabName    string
	Kind       entities.TemplateKind
	UserID     string
}

// String renders the key. Book names and chapter keys are normalized.
func (k Key) String() string {
	switch k.Domain {
	case DomainChapters:
		return "chapters_" + k.BookID
	case DomainTemplate:
		return string(k.Kind) + "_" + Normalize(k.BookName) + "_" + Normalize(k.ChapterKey)
	case DomainCustomTab:
		return "customtab_" + Normalize(k.BookName) + "_" + Normalize(k.ChapterKey) + "_" + EscapeTab(k.TabName)
	case DomainHighlights:
		return "highlights_" + Normalize(k.BookName) + "_" + Normalize(k.ChapterKey)
	case DomainBookMetadata:
		return "book_metadata_" + k.BookID
	case DomainBookIndex:
		return "book_index_" + k.BookID
	case DomainBookAssets:
		return "book_assets_" + k.BookID
	case DomainSyncMetadata:
		return "sync_metadata_" + k.BookID
	case DomainBookList:
		return "cached_book_list_" + k.UserID
	case DomainBookListTimestamp:
		return "cached_book_list_" + k.UserID + "_timestamp"
	case DomainCreatedBooks:
		return CreatedBooksKey
	case DomainLastSyncTime:
		return LastSyncTimeKey
	}
	return ""
}

func Chapters(bookID string) string {
	return Key{Domain: DomainChapters, BookID: bookID}.String()
}

func Template(kind entities.TemplateKind, bookName, chapterKey string) string {
	return Key{Domain: DomainTemplate, Kind: kind, BookName: bookName, ChapterKey: chapterKey}.String()
}

func CustomTab(bookName, chapterKey, tabName string) string {
	return Key{Domain: DomainCustomTab, BookName: bookName, ChapterKey: chapterKey, TabName: tabName}.String()
}

func Highlights(bookName, chapterKey string) string {
	return Key{Domain: DomainHighlights, BookName: bookName, ChapterKey: chapterKey}.String()
}

func BookMetadata(bookID string) string {
	return Key{Domain: DomainBookMetadata, BookID: bookID}.String()
}

func BookIndex(bookID string) string {
	return Key{Domain: DomainBookIndex, BookID: bookID}.String()
}

func BookAssets(bookID string) string {
	return Key{Domain: DomainBookAssets, BookID: bookID}.String()
}

func SyncMetadata(bookID string) string {
	return Key{Domain: DomainSyncMetadata, BookID: bookID}.String()
}

func BookList(userID string) string {
	return Key{Domain: DomainBookList, UserID: userID}.String()
}

func BookListTimestamp(userID string) string {
	return Key{Domain: DomainBookListTimestamp, UserID: userID}.String()
}
