package cachekeys

import (
	"strings"

	"github.com/mrlokans/booksync/internal/entities"
)

// IndexEntry records one key written for a book together with the map
// coordinates it was written from, so reconstruction never has to split keys.
type IndexEntry struct {
	Key     string                `json:"key"`
	Domain  Domain                `json:"domain"`
	Kind    entities.TemplateKind `json:"kind,omitempty"`
	Chapter string                `json:"chapter,omitempty"`
	Tab     string                `json:"tab,omitempty"`
}

// Index is the per-book index document stored under BookIndex(bookID).
type Index struct {
	BookID   string       `json:"bookId"`
	BookName string       `json:"bookName"`
	Entries  []IndexEntry `json:"entries"`
}

// Keys returns every key listed in the index.
func (idx *Index) Keys() []string {
	keys := make([]string, 0, len(idx.Entries))
	for _, e := range idx.Entries {
		keys = append(keys, e.Key)
	}
	return keys
}

// Parse classifies a key belonging to the book identified by bookID and
// bookName. Chapter keys are everything after the book name prefix; for
// custom tabs the escaped tab name follows the last underscore.
func Parse(key, bookID, bookName string) (IndexEntry, bool) {
	name := Normalize(bookName)
	entry := IndexEntry{Key: key}

	switch key {
	case Chapters(bookID):
		entry.Domain = DomainChapters
		return entry, true
	case BookMetadata(bookID):
		entry.Domain = DomainBookMetadata
		return entry, true
	case BookIndex(bookID):
		entry.Domain = DomainBookIndex
		return entry, true
	case SyncMetadata(bookID):
		entry.Domain = DomainSyncMetadata
		return entry, true
	case BookAssets(bookID):
		entry.Domain = DomainBookAssets
		return entry, true
	}
	if name == "" {
		return IndexEntry{}, false
	}

	if rest, ok := strings.CutPrefix(key, "highlights_"+name+"_"); ok && rest != "" {
		entry.Domain = DomainHighlights
		entry.Chapter = rest
		return entry, true
	}
	if rest, ok := strings.CutPrefix(key, "customtab_"+name+"_"); ok {
		cut := strings.LastIndex(rest, "_")
		if cut <= 0 || cut == len(rest)-1 {
			return IndexEntry{}, false
		}
		entry.Domain = DomainCustomTab
		entry.Chapter = rest[:cut]
		entry.Tab = UnescapeTab(rest[cut+1:])
		return entry, true
	}
	for _, kind := range entities.TemplateKinds {
		if rest, ok := strings.CutPrefix(key, string(kind)+"_"+name+"_"); ok && rest != "" {
			entry.Domain = DomainTemplate
			entry.Kind = kind
			entry.Chapter = rest
			return entry, true
		}
	}
	return IndexEntry{}, false
}

// ParseAmong is Parse for a cache shared by several books. A key that also
// parses under a longer book name from others is left to that book, so
// "Physics" never claims the keys of "Physics II".
func ParseAmong(key, bookID, bookName string, others []string) (IndexEntry, bool) {
	entry, ok := Parse(key, bookID, bookName)
	if !ok || !entry.Domain.IsContent() {
		return entry, ok
	}
	name := Normalize(bookName)
	for _, other := range others {
		longer := Normalize(other)
		if len(longer) <= len(name) || !strings.HasPrefix(longer, name+"_") {
			continue
		}
		if _, claimed := Parse(key, "", longer); claimed {
			return IndexEntry{}, false
		}
	}
	return entry, true
}

// IsContent reports whether d holds chapter-keyed book content.
func (d Domain) IsContent() bool {
	switch d {
	case DomainTemplate, DomainCustomTab, DomainHighlights:
		return true
	}
	return false
}
