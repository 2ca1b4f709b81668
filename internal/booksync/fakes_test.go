package booksync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mrlokans/booksync/internal/assets"
	"github.com/mrlokans/booksync/internal/entities"
)

var errRemoteDown = errors.New("connection refused")

type memoryLocal struct {
	mu     sync.Mutex
	values map[string]string
	order  []string
}

func newMemoryLocal() *memoryLocal {
	return &memoryLocal{values: make(map[string]string)}
}

func (m *memoryLocal) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memoryLocal) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; !ok {
		m.order = append(m.order, key)
	}
	m.values[key] = value
	return nil
}

func (m *memoryLocal) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		delete(m.values, key)
		m.order = slices.DeleteFunc(m.order, func(k string) bool { return k == key })
	}
	return nil
}

func (m *memoryLocal) Keys(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.order), nil
}

func (m *memoryLocal) has(key string) bool {
	_, ok, _ := m.Get(context.Background(), key)
	return ok
}

type fakeRemote struct {
	mu          sync.Mutex
	records     map[string]entities.UserBookRecord
	err         error
	failUpsert  map[string]bool
	listCalls   int
	getCalls    int
	upsertCalls int
	now         func() time.Time
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		records:    make(map[string]entities.UserBookRecord),
		failUpsert: make(map[string]bool),
		now:        time.Now,
	}
}

func (f *fakeRemote) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeRemote) calls() (list, get int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.getCalls
}

func (f *fakeRemote) put(record entities.UserBookRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = f.now()
	}
	f.records[record.ID] = record
}

func (f *fakeRemote) get(id string) (entities.UserBookRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	return r, ok
}

func (f *fakeRemote) ListByOwner(_ context.Context, userID string) ([]entities.UserBookRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.err != nil {
		return nil, f.err
	}
	var out []entities.UserBookRecord
	for _, r := range f.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (f *fakeRemote) GetByIDAndOwner(_ context.Context, id, userID string) (*entities.UserBookRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.records[id]
	if !ok || r.UserID != userID {
		return nil, nil
	}
	return &r, nil
}

func (f *fakeRemote) Upsert(_ context.Context, record *entities.UserBookRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	if f.err != nil {
		return f.err
	}
	if f.failUpsert[record.ID] {
		return fmt.Errorf("write rejected for %s", record.ID)
	}
	if existing, ok := f.records[record.ID]; ok && existing.UserID != record.UserID {
		return errors.New("owned by another user")
	}
	record.UpdatedAt = f.now()
	f.records[record.ID] = *record
	return nil
}

func (f *fakeRemote) DeleteByIDAndOwner(_ context.Context, id, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	r, ok := f.records[id]
	if !ok || r.UserID != userID {
		return false, nil
	}
	delete(f.records, id)
	return true, nil
}

func (f *fakeRemote) ListUpdatedSince(_ context.Context, userID string, since time.Time) ([]entities.UserBookRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []entities.UserBookRecord
	for _, r := range f.records {
		if r.UserID == userID && r.UpdatedAt.After(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRemote) GetPublished(_ context.Context, link string) (*entities.UserBookRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.IsPublished && r.PublicLink != nil && *r.PublicLink == link {
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeRemote) Search(_ context.Context, query string, _ []string, _ int) ([]entities.UserBookRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entities.UserBookRecord
	for _, r := range f.records {
		if r.IsPublished && strings.Contains(strings.ToLower(string(r.BookData)), strings.ToLower(query)) {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeMigrator struct {
	mu    sync.Mutex
	calls map[string]int
	fail  bool
}

func newFakeMigrator() *fakeMigrator {
	return &fakeMigrator{calls: make(map[string]int)}
}

func (m *fakeMigrator) Migrate(_ context.Context, ref string, mc assets.MigrationContext) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[ref]++
	if m.fail {
		return "", errors.New("upload failed")
	}
	return fmt.Sprintf("https://cdn.test/%s/%s/asset-%d", mc.UserID, mc.BookID, len(m.calls)), nil
}

func (m *fakeMigrator) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

type fixedUser string

func (u fixedUser) ResolveUserID(context.Context) (string, bool) {
	return string(u), u != ""
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// userView is one user's part of a shared memoryLocal.
type userView struct {
	*scopedStore
}

func viewOf(m *memoryLocal, userID string) userView {
	return userView{newScopedStore(m, userID)}
}

func (v userView) has(key string) bool {
	_, ok, _ := v.Get(context.Background(), key)
	return ok
}

type testEnv struct {
	coord *Coordinator
	// raw is the whole store; local is the part belonging to user-1.
	raw      *memoryLocal
	local    userView
	remote   *fakeRemote
	migrator *fakeMigrator
	clock    *fakeClock
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	env := &testEnv{
		raw:      newMemoryLocal(),
		remote:   newFakeRemote(),
		migrator: newFakeMigrator(),
		clock:    newFakeClock(),
	}
	env.local = viewOf(env.raw, "user-1")
	env.remote.now = env.clock.Now
	if opts.Clock == nil {
		opts.Clock = env.clock
	}
	env.coord = New(env.raw, env.remote, env.migrator, fixedUser("user-1"), opts)
	t.Cleanup(env.coord.Close)
	return env
}

func remoteBook(id, userID, bookJSON, chaptersJSON, contentJSON string) entities.UserBookRecord {
	return entities.UserBookRecord{
		ID:           id,
		UserID:       userID,
		BookData:     []byte(bookJSON),
		ChaptersData: []byte(chaptersJSON),
		ContentData:  []byte(contentJSON),
	}
}

func requireCached(t *testing.T, local LocalStore, key string) string {
	t.Helper()
	v, ok, err := local.Get(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok, "expected %s in cache", key)
	return v
}

type batchRecord struct {
	action           string
	succeeded, total int
	failed           []string
}

type fakeReporter struct {
	mu      sync.Mutex
	events  []entities.AuditEvent
	batches []batchRecord
}

func (r *fakeReporter) LogAsync(event *entities.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
}

func (r *fakeReporter) LogBatch(_ string, action string, succeeded, total int, failed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, batchRecord{action: action, succeeded: succeeded, total: total, failed: failed})
}
