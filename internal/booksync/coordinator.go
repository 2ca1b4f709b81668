// Package booksync coordinates study-book data between a local key/value
// cache and the remote document store. It serves reads progressively (book
// list, then content on demand, then background refresh), writes whole books
// back with asset migration, and reports progress to subscribers.
package booksync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mrlokans/booksync/internal/entities"
)

const (
	DefaultBookListFreshness    = 15 * time.Minute
	DefaultBookContentFreshness = 30 * time.Minute
	DefaultRecentCapacity       = 5
	DefaultBackgroundBatchSize  = 3
	DefaultRefreshDelay         = time.Second
)

// Options tunes a Coordinator. Zero values fall back to the defaults above.
type Options struct {
	BookListFreshness    time.Duration
	BookContentFreshness time.Duration
	RecentCapacity       int
	BackgroundBatchSize  int
	// RefreshDelay postpones the background refresh after a cache hit.
	RefreshDelay time.Duration

	// PreservedKeys survive ResetAndReload.
	PreservedKeys []string

	// SharedCache lets every user read and write the whole local store.
	// Without it each user's keys live under cachekeys.UserScope.
	SharedCache bool

	Assets   AssetCatalog
	Reporter Reporter
	Clock    Clock
}

// Coordinator is safe for concurrent use.
type Coordinator struct {
	local    LocalStore
	remote   RemoteStore
	migrator AssetMigrator
	identity IdentityResolver
	catalog  AssetCatalog
	reporter Reporter
	clock    Clock

	listFreshness    time.Duration
	contentFreshness time.Duration
	recentCapacity   int
	batchSize        int
	refreshDelay     time.Duration
	preserved        map[string]bool
	sharedCache      bool

	mu               sync.Mutex
	loading          entities.LoadingState
	status           entities.SyncStatus
	syncDepth        int
	recent           []string
	failedMigrations map[string]struct{}
	observers        map[int]func(entities.LoadingState)
	statusObservers  map[int]func(entities.SyncStatus)
	nextObserverID   int

	// createdMu serialises read-modify-write cycles of the created_books list.
	createdMu sync.Mutex

	runner *runner
}

func New(local LocalStore, remote RemoteStore, migrator AssetMigrator, identity IdentityResolver, opts Options) *Coordinator {
	c := &Coordinator{
		local:            local,
		remote:           remote,
		migrator:         migrator,
		identity:         identity,
		catalog:          opts.Assets,
		reporter:         opts.Reporter,
		clock:            opts.Clock,
		listFreshness:    opts.BookListFreshness,
		contentFreshness: opts.BookContentFreshness,
		recentCapacity:   opts.RecentCapacity,
		batchSize:        opts.BackgroundBatchSize,
		refreshDelay:     opts.RefreshDelay,
		preserved:        make(map[string]bool, len(opts.PreservedKeys)),
		sharedCache:      opts.SharedCache,
		loading:          entities.NewLoadingState(),
		status:           entities.SyncStatus{IsOnline: true, PendingSync: []string{}},
		failedMigrations: make(map[string]struct{}),
		observers:        make(map[int]func(entities.LoadingState)),
		statusObservers:  make(map[int]func(entities.SyncStatus)),
		runner:           newRunner(),
	}
	if c.clock == nil {
		c.clock = systemClock{}
	}
	if c.listFreshness <= 0 {
		c.listFreshness = DefaultBookListFreshness
	}
	if c.contentFreshness <= 0 {
		c.contentFreshness = DefaultBookContentFreshness
	}
	if c.recentCapacity <= 0 {
		c.recentCapacity = DefaultRecentCapacity
	}
	if c.batchSize <= 0 {
		c.batchSize = DefaultBackgroundBatchSize
	}
	if c.refreshDelay <= 0 {
		c.refreshDelay = DefaultRefreshDelay
	}
	for _, k := range opts.PreservedKeys {
		c.preserved[k] = true
	}
	return c
}

// Close cancels background work and waits for it to finish.
func (c *Coordinator) Close() {
	c.runner.Close()
}

// Drain waits for in-flight background work without cancelling it.
func (c *Coordinator) Drain() {
	c.runner.Wait()
}

func (c *Coordinator) resolveUser(ctx context.Context, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if id, ok := userFromContext(ctx); ok {
		return id, nil
	}
	if c.identity != nil {
		if id, ok := c.identity.ResolveUserID(ctx); ok && id != "" {
			return id, nil
		}
	}
	return "", ErrNotAuthenticated
}

func (c *Coordinator) now() time.Time {
	return c.clock.Now()
}

func (c *Coordinator) report(event *entities.AuditEvent) {
	if c.reporter == nil {
		return
	}
	c.reporter.LogAsync(event)
}

func (c *Coordinator) reportResult(userID string, eventType entities.AuditEventType, action, bookID, description string, errs []string) {
	event := &entities.AuditEvent{
		UserID:      userID,
		EventType:   eventType,
		Action:      action,
		BookID:      bookID,
		Description: description,
		Status:      entities.AuditStatusSuccess,
	}
	if len(errs) > 0 {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(fmt.Sprint(errs), 500)
	}
	c.report(event)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
