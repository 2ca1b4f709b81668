package http

import (
	"context"
	"errors"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/booksync/internal/auth"
	"github.com/mrlokans/booksync/internal/config"
	auditrepo "github.com/mrlokans/booksync/internal/database/audit"
	"github.com/mrlokans/booksync/internal/entities"
)

const testUser = "user-1"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeBooks struct {
	list       []entities.BookMetadata
	book       *entities.FullBookData
	err        error
	syncResult entities.SyncResult
	access     bool

	listUser     string
	ctxUser      string
	forceRefresh bool
	cached       *entities.FullBookData
	cachedID     string
	deletedID    string
	searchQuery  string
	searchTags   []string
	searchLimit  int
}

func (f *fakeBooks) LoadBookList(ctx context.Context, userID string, forceRefresh bool) ([]entities.BookMetadata, error) {
	f.listUser = userID
	f.ctxUser, _ = auth.UserIDFromContext(ctx)
	f.forceRefresh = forceRefresh
	return f.list, f.err
}

func (f *fakeBooks) LoadBookContent(ctx context.Context, bookID string, forceRefresh bool) (*entities.FullBookData, error) {
	f.forceRefresh = forceRefresh
	return f.book, f.err
}

func (f *fakeBooks) RefreshBook(ctx context.Context, bookID string) (*entities.FullBookData, error) {
	f.forceRefresh = true
	return f.book, f.err
}

func (f *fakeBooks) DeleteBook(ctx context.Context, bookID string) error {
	f.deletedID = bookID
	return f.err
}

func (f *fakeBooks) CacheBookData(ctx context.Context, bookID string, data *entities.FullBookData) error {
	f.cachedID = bookID
	f.cached = data
	return f.err
}

func (f *fakeBooks) SyncBookToBackend(ctx context.Context, bookID string) entities.SyncResult {
	res := f.syncResult
	res.BookID = bookID
	return res
}

func (f *fakeBooks) HasBookAccess(ctx context.Context, bookID string) (bool, error) {
	return f.access, f.err
}

func (f *fakeBooks) GetPublicBook(ctx context.Context, publicLink string) (*entities.FullBookData, error) {
	return f.book, f.err
}

func (f *fakeBooks) SearchPublicBooks(ctx context.Context, query string, tags []string, limit int) ([]entities.BookMetadata, error) {
	f.searchQuery = query
	f.searchTags = tags
	f.searchLimit = limit
	return f.list, f.err
}

type fakeSync struct {
	mu         sync.Mutex
	state      entities.LoadingState
	status     entities.SyncStatus
	batch      entities.BatchResult
	loadBatch  entities.BatchLoadResult
	migrations entities.MigrationStats

	observers      []func(entities.LoadingState)
	subscribed     chan struct{}
	unsubscribed   bool
	online         *bool
	backgroundUser string
	cleared        bool
	reset          bool
}

func newFakeSync() *fakeSync {
	return &fakeSync{
		state:      entities.NewLoadingState(),
		subscribed: make(chan struct{}, 1),
	}
}

func (f *fakeSync) LoadingState() entities.LoadingState { return f.state.Clone() }
func (f *fakeSync) Status() entities.SyncStatus         { return f.status.Clone() }
func (f *fakeSync) RecentBooks() []string               { return []string{"b2", "b1"} }

func (f *fakeSync) Subscribe(fn func(entities.LoadingState)) func() {
	f.mu.Lock()
	f.observers = append(f.observers, fn)
	f.mu.Unlock()
	f.subscribed <- struct{}{}
	return func() {
		f.mu.Lock()
		f.unsubscribed = true
		f.mu.Unlock()
	}
}

func (f *fakeSync) emit(state entities.LoadingState) {
	f.mu.Lock()
	observers := append([]func(entities.LoadingState){}, f.observers...)
	f.mu.Unlock()
	for _, fn := range observers {
		fn(state)
	}
}

func (f *fakeSync) SyncAllUserBooks(ctx context.Context) entities.BatchResult { return f.batch }
func (f *fakeSync) LoadAllUserBooks(ctx context.Context) entities.BatchLoadResult {
	return f.loadBatch
}

func (f *fakeSync) ResetAndReload(ctx context.Context) entities.BatchLoadResult {
	f.reset = true
	return f.loadBatch
}

func (f *fakeSync) BackgroundSyncRecent(ctx context.Context, userID string) {
	f.backgroundUser = userID
}

func (f *fakeSync) SetOnline(ctx context.Context, online bool) {
	f.online = &online
	f.status.IsOnline = online
}

func (f *fakeSync) FailedMigrationStats() entities.MigrationStats { return f.migrations }
func (f *fakeSync) ClearFailedMigrations() {
	f.cleared = true
	f.migrations = entities.MigrationStats{URLs: []string{}}
}

type fakeQueue struct {
	tasks  []backlite.Task
	status backlite.TaskStatus
	err    error
}

func (f *fakeQueue) Enqueue(task backlite.Task) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.tasks = append(f.tasks, task)
	return "task-1", nil
}

func (f *fakeQueue) Status(ctx context.Context, taskID string) (backlite.TaskStatus, error) {
	return f.status, f.err
}

type fakeAudit struct {
	filter auditrepo.Filter
	limit  int
	offset int
	events []entities.AuditEvent
}

func (f *fakeAudit) GetEvents(filter auditrepo.Filter, limit, offset int) ([]entities.AuditEvent, int64, error) {
	f.filter, f.limit, f.offset = filter, limit, offset
	return f.events, int64(len(f.events)), nil
}

func newTestRouter(books *fakeBooks, syncSvc *fakeSync, queue *fakeQueue) *gin.Engine {
	cfg := RouterConfig{
		Books:          books,
		Sync:           syncSvc,
		Audit:          &fakeAudit{},
		AuthMiddleware: auth.NewMiddleware(nil, config.Auth{Mode: config.AuthModeNone, DefaultUserID: testUser}),
		HealthChecks: map[string]HealthCheck{
			"local": func(context.Context) error { return nil },
		},
		Version: "test",
	}
	if queue != nil {
		cfg.Tasks = queue
	}
	return NewRouter(cfg)
}

var errBoom = errors.New("boom")
