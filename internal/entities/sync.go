package entities

import (
	"time"
)

// SyncState is the per-book cache state recorded in SyncMetadata.
type SyncState string

const (
	SyncStateSynced   SyncState = "synced"
	SyncStatePending  SyncState = "pending"
	SyncStateConflict SyncState = "conflict"
	SyncStateError    SyncState = "error"
	SyncStateLoading  SyncState = "loading"
)

// SyncMetadata is written after every successful load or write of a book.
// Versions are best-effort unix-millisecond stamps, not vector clocks.
type SyncMetadata struct {
	BookID        string    `json:"bookId"`
	LastSync      time.Time `json:"lastSync"`
	LocalVersion  int64     `json:"localVersion"`
	RemoteVersion int64     `json:"remoteVersion"`
	Status        SyncState `json:"status"`
}

// BookListErrorKey is the SyncErrors key used for book list failures.
const BookListErrorKey = "bookList"

// LoadingState is the UI-facing progress view of the coordinator.
type LoadingState struct {
	IsLoadingBookList bool                 `json:"isLoadingBookList"`
	IsLoadingBook     map[string]bool      `json:"isLoadingBook"`
	LastSync          map[string]time.Time `json:"lastSync"`
	SyncErrors        map[string]string    `json:"syncErrors"`
}

func NewLoadingState() LoadingState {
	return LoadingState{
		IsLoadingBook: make(map[string]bool),
		LastSync:      make(map[string]time.Time),
		SyncErrors:    make(map[string]string),
	}
}

// Clone returns a deep copy safe to hand to observers.
func (s LoadingState) Clone() LoadingState {
	out := LoadingState{
		IsLoadingBookList: s.IsLoadingBookList,
		IsLoadingBook:     make(map[string]bool, len(s.IsLoadingBook)),
		LastSync:          make(map[string]time.Time, len(s.LastSync)),
		SyncErrors:        make(map[string]string, len(s.SyncErrors)),
	}
	for k, v := range s.IsLoadingBook {
		out.IsLoadingBook[k] = v
	}
	for k, v := range s.LastSync {
		out.LastSync[k] = v
	}
	for k, v := range s.SyncErrors {
		out.SyncErrors[k] = v
	}
	return out
}

// SyncStatus is the coarse global status used for badges.
type SyncStatus struct {
	IsOnline    bool       `json:"isOnline"`
	IsSyncing   bool       `json:"isSyncing"`
	PendingSync []string   `json:"pendingSync"`
	LastSync    *time.Time `json:"lastSync,omitempty"`
}

func (s SyncStatus) Clone() SyncStatus {
	out := s
	out.PendingSync = append([]string{}, s.PendingSync...)
	if s.LastSync != nil {
		t := *s.LastSync
		out.LastSync = &t
	}
	return out
}

// SyncedParts records which parts of a book reached the remote store.
type SyncedParts struct {
	Metadata  bool `json:"metadata"`
	Chapters  bool `json:"chapters"`
	Templates int  `json:"templates"`
	Assets    int  `json:"assets"`
	UserData  bool `json:"userdata"`
}

// SyncResult is the outcome of pushing one book to the remote store.
type SyncResult struct {
	Success bool        `json:"success"`
	BookID  string      `json:"bookId"`
	Synced  SyncedParts `json:"synced"`
	Errors  []string    `json:"errors"`
}

// RestoredParts records which parts of a book were restored locally.
type RestoredParts struct {
	Metadata  bool `json:"metadata"`
	Chapters  bool `json:"chapters"`
	Templates int  `json:"templates"`
	UserData  bool `json:"userdata"`
}

// LoadResult is the outcome of restoring one book from the remote store.
type LoadResult struct {
	Success  bool          `json:"success"`
	BookID   string        `json:"bookId"`
	Restored RestoredParts `json:"restored"`
	Errors   []string      `json:"errors"`
}

// BatchResult summarises a sync-all run. Synced + len(Failed) == Total.
type BatchResult struct {
	Success bool     `json:"success"`
	Synced  int      `json:"syncedBooks"`
	Failed  []string `json:"failedBooks"`
	Total   int      `json:"totalBooks"`
}

// BatchLoadResult summarises a load-all run.
type BatchLoadResult struct {
	Success bool     `json:"success"`
	Loaded  int      `json:"loadedBooks"`
	Failed  []string `json:"failedBooks"`
	Total   int      `json:"totalBooks"`
}

// MigrationStats describes the failed-migration set.
type MigrationStats struct {
	Count int      `json:"count"`
	URLs  []string `json:"urls"`
}
