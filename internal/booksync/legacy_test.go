package booksync

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/booksync/internal/cachekeys"
	"github.com/mrlokans/booksync/internal/entities"
)

const pngRef = "data:image/png;base64,iVBORw0KGgo="

func seedLocalBook(t *testing.T, env *testEnv, id, name string, content map[string]string) {
	t.Helper()
	ctx := context.Background()
	doc, err := json.Marshal(map[string]any{"id": id, "name": name, "authorName": "Someone", "customField": 42})
	require.NoError(t, err)
	require.NoError(t, env.coord.upsertCreatedBook(ctx, id, doc))
	require.NoError(t, env.local.Set(ctx, cachekeys.Chapters(id), `[{"id":"c1","title":"Intro","order":1}]`))
	for k, v := range content {
		require.NoError(t, env.local.Set(ctx, k, v))
	}
}

func decodeContent(t *testing.T, record entities.UserBookRecord) map[string]json.RawMessage {
	t.Helper()
	var bag map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(record.ContentData, &bag))
	return bag
}

func TestSyncBookToBackend(t *testing.T) {
	env := newTestEnv(t, Options{})
	seedLocalBook(t, env, "b1", "Physics", map[string]string{
		"flashcards_Physics_Intro":       `[{"id":"f1","front":"F","back":"ma"}]`,
		"customtab_Physics_Intro_formula": "F = ma",
		"unrelated_key":                   "ignored",
	})

	result := env.coord.SyncBookToBackend(context.Background(), "b1")
	require.True(t, result.Success, result.Errors)
	assert.Equal(t, entities.SyncedParts{Metadata: true, Chapters: true, Templates: 2, UserData: true}, result.Synced)
	assert.Empty(t, result.Errors)

	record, ok := env.remote.get("b1")
	require.True(t, ok)
	assert.Equal(t, "user-1", record.UserID)
	assert.Contains(t, string(record.BookData), `"customField":42`, "unknown metadata fields survive")
	assert.JSONEq(t, `[{"id":"c1","title":"Intro","order":1}]`, string(record.ChaptersData))

	bag := decodeContent(t, record)
	assert.Len(t, bag, 2)
	assert.JSONEq(t, `[{"id":"f1","front":"F","back":"ma"}]`, string(bag["flashcards_Physics_Intro"]))
	assert.JSONEq(t, `"F = ma"`, string(bag["customtab_Physics_Intro_formula"]))

	status := env.coord.Status()
	assert.False(t, status.IsSyncing)
	assert.Empty(t, status.PendingSync)
	require.NotNil(t, status.LastSync)
	assert.Equal(t, env.clock.Now(), *status.LastSync)
}

func TestSyncBookToBackend_Failures(t *testing.T) {
	env := newTestEnv(t, Options{})

	result := env.coord.SyncBookToBackend(context.Background(), "missing")
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "not found")

	anonymous := New(newMemoryLocal(), newFakeRemote(), nil, fixedUser(""), Options{})
	defer anonymous.Close()
	result = anonymous.SyncBookToBackend(context.Background(), "b1")
	assert.False(t, result.Success)
	assert.Contains(t, result.Errors[0], ErrNotAuthenticated.Error())

	seedLocalBook(t, env, "b1", "Physics", nil)
	env.remote.setErr(errRemoteDown)
	result = env.coord.SyncBookToBackend(context.Background(), "b1")
	assert.False(t, result.Success)
	assert.Contains(t, result.Errors[0], "sync failed")
	assert.False(t, env.coord.Status().IsSyncing)
}

func TestSyncBookToBackend_MigratesEachReferenceOnce(t *testing.T) {
	env := newTestEnv(t, Options{})
	cards := `[{"id":"f1","front":"<img src>","back":"x","image":"` + pngRef + `"},{"id":"f2","front":"y","back":"z","image":"` + pngRef + `"}]`
	seedLocalBook(t, env, "b1", "Anatomy", map[string]string{
		"flashcards_Anatomy_Intro":       cards,
		"customtab_Anatomy_Intro_figure": pngRef,
	})
	ctx := context.Background()

	result := env.coord.SyncBookToBackend(ctx, "b1")
	require.True(t, result.Success, result.Errors)
	assert.Equal(t, 1, result.Synced.Assets)
	assert.Equal(t, 1, env.migrator.total())

	record, _ := env.remote.get("b1")
	bag := decodeContent(t, record)
	assert.NotContains(t, string(bag["flashcards_Anatomy_Intro"]), "data:image")
	assert.Contains(t, string(bag["flashcards_Anatomy_Intro"]), "https://cdn.test/user-1/b1/")
	assert.Contains(t, string(bag["flashcards_Anatomy_Intro"]), `"<img src>"`)

	tab := requireCached(t, env.local, "customtab_Anatomy_Intro_figure")
	assert.True(t, strings.HasPrefix(tab, "https://cdn.test/"), "migrated values are written back locally")

	result = env.coord.SyncBookToBackend(ctx, "b1")
	require.True(t, result.Success)
	assert.Equal(t, 0, result.Synced.Assets)
	assert.Equal(t, 1, env.migrator.total())
}

func TestSyncBookToBackend_RemembersFailedMigrations(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.migrator.fail = true
	seedLocalBook(t, env, "b1", "Anatomy", map[string]string{
		"notes_Anatomy_Intro": `[{"id":"n1","title":"Figure","content":"` + pngRef + `"}]`,
	})
	ctx := context.Background()

	result := env.coord.SyncBookToBackend(ctx, "b1")
	assert.True(t, result.Success, "a failed migration does not fail the sync")
	assert.Equal(t, 0, result.Synced.Assets)

	env.coord.SyncBookToBackend(ctx, "b1")
	assert.Equal(t, 1, env.migrator.total())

	stats := env.coord.FailedMigrationStats()
	assert.Equal(t, 1, stats.Count)
	assert.Equal(t, []string{pngRef}, stats.URLs)

	env.coord.ClearFailedMigrations()
	assert.Equal(t, 0, env.coord.FailedMigrationStats().Count)
	env.coord.SyncBookToBackend(ctx, "b1")
	assert.Equal(t, 2, env.migrator.total())
}

func TestFailedMigrationStats_TruncatesURLs(t *testing.T) {
	env := newTestEnv(t, Options{})
	long := "data:image/png;base64," + strings.Repeat("A", 100)
	env.coord.recordFailedMigration(long)

	stats := env.coord.FailedMigrationStats()
	require.Len(t, stats.URLs, 1)
	assert.Equal(t, long[:50]+"...", stats.URLs[0])
}

func TestSyncAllUserBooks_PartialFailure(t *testing.T) {
	env := newTestEnv(t, Options{})
	seedLocalBook(t, env, "b1", "One", nil)
	seedLocalBook(t, env, "b2", "Two", nil)
	seedLocalBook(t, env, "b3", "Three", nil)
	env.remote.failUpsert["b2"] = true

	var syncingSeen bool
	env.coord.SubscribeStatus(func(s entities.SyncStatus) {
		if s.IsSyncing {
			syncingSeen = true
		}
	})

	result := env.coord.SyncAllUserBooks(context.Background())
	assert.False(t, result.Success)
	assert.Equal(t, 2, result.Synced)
	assert.Equal(t, []string{"b2"}, result.Failed)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, result.Total, result.Synced+len(result.Failed))

	status := env.coord.Status()
	assert.True(t, syncingSeen)
	assert.False(t, status.IsSyncing)
	assert.Equal(t, []string{"b2"}, status.PendingSync)

	stamp := requireCached(t, env.local, cachekeys.LastSyncTimeKey)
	parsed, err := time.Parse(time.RFC3339Nano, stamp)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(env.clock.Now()))
}

func TestSyncAllUserBooks_Empty(t *testing.T) {
	env := newTestEnv(t, Options{})

	result := env.coord.SyncAllUserBooks(context.Background())
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.Total)
	assert.Empty(t, result.Failed)
}

func TestForceSyncBook_KeepsFailedBookPending(t *testing.T) {
	env := newTestEnv(t, Options{})
	seedLocalBook(t, env, "b1", "One", nil)
	env.remote.failUpsert["b1"] = true

	result := env.coord.ForceSyncBook(context.Background(), "b1")
	assert.False(t, result.Success)
	assert.Equal(t, []string{"b1"}, env.coord.Status().PendingSync)

	delete(env.remote.failUpsert, "b1")
	result = env.coord.ForceSyncBook(context.Background(), "b1")
	assert.True(t, result.Success)
	assert.Empty(t, env.coord.Status().PendingSync)
}

func TestLoadAllUserBooks_RestoresFromRemote(t *testing.T) {
	source := newTestEnv(t, Options{})
	ctx := context.Background()
	book := entities.NewFullBookData(entities.BookMetadata{Name: "Linear Algebra", AuthorName: "Gil"})
	book.Chapters = []entities.Chapter{{ID: "c1", Title: "Vectors", Order: 1}}
	book.TemplateData[entities.TemplateQA]["Vectors"] = json.RawMessage(`[{"id":"q1","question":"Dot product?","answer":"Sum of products"}]`)
	book.CustomTabs["Vectors"] = map[string]string{"cheatsheet": "a.b = |a||b|cos"}
	book.Highlights["Vectors"] = []entities.Highlight{{ID: "h1", Text: "basis", StartOffset: 1, EndOffset: 6}}
	require.NoError(t, source.coord.CacheBookData(ctx, "la", book))
	require.True(t, source.coord.SyncBookToBackend(ctx, "la").Success)

	target := New(newMemoryLocal(), source.remote, nil, fixedUser("user-1"), Options{Clock: source.clock})
	defer target.Close()
	stale, _ := json.Marshal(map[string]string{"id": "gone", "name": "Gone"})
	require.NoError(t, target.upsertCreatedBook(ctx, "gone", stale))

	result := target.LoadAllUserBooks(ctx)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Loaded)
	assert.Equal(t, 1, result.Total)

	books, err := target.createdBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "la", documentID(books[0]))

	want, _, err := source.coord.ReconstructFromCache(ctx, "la")
	require.NoError(t, err)
	got, found, err := target.ReconstructFromCache(ctx, "la")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want.TemplateData, got.TemplateData)
	assert.Equal(t, want.CustomTabs, got.CustomTabs)
	assert.Equal(t, want.Highlights, got.Highlights)
	assert.Equal(t, want.Chapters, got.Chapters)
	assert.Equal(t, "Linear Algebra", got.Metadata.Name)
}

func TestLoadBookFromBackend(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	result := env.coord.LoadBookFromBackend(ctx, "b1")
	assert.False(t, result.Success)
	assert.Equal(t, []string{"book not found in backend"}, result.Errors)

	env.remote.put(remoteBook("b1", "user-1",
		`{"name":"Bio 101"}`,
		`[{"id":"c1","title":"Cells","order":1}]`,
		`{"flashcards_Bio_101_Cells":[{"id":"f1","front":"a","back":"b"}],"customtab_Bio_101_Cells_tab":"text","chapters_b1":[]}`))

	result = env.coord.LoadBookFromBackend(ctx, "b1")
	require.True(t, result.Success, result.Errors)
	assert.Equal(t, entities.RestoredParts{Metadata: true, Chapters: true, Templates: 2, UserData: true}, result.Restored)

	assert.Equal(t, "text", requireCached(t, env.local, "customtab_Bio_101_Cells_tab"))
	assert.JSONEq(t, `[{"id":"c1","title":"Cells","order":1}]`, requireCached(t, env.local, "chapters_b1"))

	books, err := env.coord.createdBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "b1", documentID(books[0]), "the id is added to documents that lack it")

	data, found, err := env.coord.ReconstructFromCache(ctx, "b1")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `[{"id":"f1","front":"a","back":"b"}]`, string(data.TemplateData[entities.TemplateFlashcards]["Cells"]))
}

func TestCheckForBackendUpdates(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	n, err := env.coord.CheckForBackendUpdates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "nothing to compare against before the first sync")

	seedLocalBook(t, env, "b1", "One", nil)
	require.True(t, env.coord.SyncAllUserBooks(ctx).Success)

	env.clock.Advance(time.Minute)
	env.remote.put(remoteBook("b2", "user-1", `{"name":"From another device"}`, `[]`, `{}`))

	n, err = env.coord.CheckForBackendUpdates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, env.local.has(cachekeys.BookMetadata("b2")))
}

func TestPerformStartupSync(t *testing.T) {
	t.Run("loads everything when nothing is cached", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		env.remote.put(remoteBook("b1", "user-1", `{"name":"One"}`, `[]`, `{}`))

		result, err := env.coord.PerformStartupSync(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "load", result.Mode)
		require.NotNil(t, result.Loaded)
		assert.Equal(t, 1, result.Loaded.Loaded)
	})

	t.Run("pushes local books and pulls remote changes", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		ctx := context.Background()
		seedLocalBook(t, env, "b1", "One", nil)
		require.True(t, env.coord.SyncAllUserBooks(ctx).Success)

		env.clock.Advance(time.Minute)
		env.remote.put(remoteBook("b2", "user-1", `{"name":"Two"}`, `[]`, `{}`))
		env.clock.Advance(time.Minute)

		result, err := env.coord.PerformStartupSync(ctx)
		require.NoError(t, err)
		assert.Equal(t, "sync", result.Mode)
		require.NotNil(t, result.Synced)
		assert.Equal(t, 1, result.Synced.Synced)
		assert.Equal(t, 1, result.Updated)
		assert.True(t, env.local.has(cachekeys.BookMetadata("b2")))
	})

	t.Run("requires a user", func(t *testing.T) {
		coord := New(newMemoryLocal(), newFakeRemote(), nil, nil, Options{})
		defer coord.Close()
		_, err := coord.PerformStartupSync(context.Background())
		assert.ErrorIs(t, err, ErrNotAuthenticated)
	})
}

func TestResetAndReload(t *testing.T) {
	env := newTestEnv(t, Options{PreservedKeys: []string{"theme"}})
	ctx := context.Background()
	require.NoError(t, env.local.Set(ctx, "theme", "dark"))
	require.NoError(t, env.local.Set(ctx, "junk", "x"))
	env.remote.put(remoteBook("b1", "user-1", `{"name":"One"}`, `[]`, `{}`))

	result := env.coord.ResetAndReload(ctx)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Loaded)
	assert.True(t, env.local.has("theme"))
	assert.False(t, env.local.has("junk"))
	assert.True(t, env.local.has(cachekeys.Chapters("b1")))
}

func TestSetOnline_SyncsWhenBackOnline(t *testing.T) {
	env := newTestEnv(t, Options{})
	seedLocalBook(t, env, "b1", "One", nil)
	ctx := context.Background()

	var online []bool
	env.coord.SubscribeStatus(func(s entities.SyncStatus) {
		if len(online) == 0 || online[len(online)-1] != s.IsOnline {
			online = append(online, s.IsOnline)
		}
	})

	env.coord.SetOnline(ctx, false)
	_, synced := env.remote.get("b1")
	assert.False(t, synced)

	env.coord.SetOnline(ctx, true)
	env.coord.Drain()

	_, synced = env.remote.get("b1")
	assert.True(t, synced)
	assert.Equal(t, []bool{false, true}, online[:2])
	assert.True(t, env.coord.Status().IsOnline)
}

func TestDeleteBook(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	require.NoError(t, env.coord.CacheBookData(ctx, "b1", sampleBook()))
	require.True(t, env.coord.SyncBookToBackend(ctx, "b1").Success)
	require.NoError(t, env.local.Set(ctx, "theme", "dark"))

	require.NoError(t, env.coord.DeleteBook(ctx, "b1"))

	_, ok := env.remote.get("b1")
	assert.False(t, ok)
	keys, err := env.local.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"theme", cachekeys.CreatedBooksKey}, keys)

	books, err := env.coord.createdBooks(ctx)
	require.NoError(t, err)
	assert.Empty(t, books)

	assert.ErrorIs(t, env.coord.DeleteBook(ctx, "b1"), ErrNotFound)
}

func TestPublicBooksAndAccess(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	link := "bio-101"
	record := remoteBook("b1", "author-9", `{"name":"Bio 101","isPublished":true}`, `[]`,
		`{"customtab_Bio_101_Cells_tab":"shared"}`)
	record.IsPublished = true
	record.PublicLink = &link
	env.remote.put(record)

	data, err := env.coord.GetPublicBook(ctx, "bio-101")
	require.NoError(t, err)
	assert.Equal(t, "shared", data.CustomTabs["Cells"]["tab"])
	assert.Equal(t, "bio-101", data.Metadata.PublicLink)

	_, err = env.coord.GetPublicBook(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	found, err := env.coord.SearchPublicBooks(ctx, "bio", nil, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Bio 101", found[0].Name)

	access, err := env.coord.HasBookAccess(ctx, "b1")
	require.NoError(t, err)
	assert.False(t, access, "published books are not owned by the reader")

	env.remote.put(remoteBook("b2", "user-1", `{"name":"Mine"}`, `[]`, `{}`))
	access, err = env.coord.HasBookAccess(ctx, "b2")
	require.NoError(t, err)
	assert.True(t, access)
}

func TestSyncReportsAuditEvents(t *testing.T) {
	reporter := &fakeReporter{}
	env := newTestEnv(t, Options{Reporter: reporter})
	seedLocalBook(t, env, "b1", "One", nil)
	seedLocalBook(t, env, "b2", "Two", nil)
	env.remote.failUpsert["b2"] = true

	env.coord.SyncAllUserBooks(context.Background())

	require.Len(t, reporter.batches, 1)
	assert.Equal(t, batchRecord{action: "sync_all", succeeded: 1, total: 2, failed: []string{"b2"}}, reporter.batches[0])

	require.Len(t, reporter.events, 2)
	statuses := map[string]entities.AuditStatus{}
	for _, e := range reporter.events {
		assert.Equal(t, "sync_book", e.Action)
		statuses[e.BookID] = e.Status
	}
	assert.Equal(t, entities.AuditStatusSuccess, statuses["b1"])
	assert.Equal(t, entities.AuditStatusFailed, statuses["b2"])
}

func TestBooksWithSharedNamePrefix(t *testing.T) {
	seed := func(t *testing.T) *testEnv {
		env := newTestEnv(t, Options{})
		seedLocalBook(t, env, "b1", "Physics", map[string]string{
			"flashcards_Physics_Intro": `[{"id":"f1","question":"F?","answer":"ma"}]`,
		})
		seedLocalBook(t, env, "b2", "Physics II", map[string]string{
			"flashcards_Physics_II_Waves":       `[{"id":"f2","question":"v?","answer":"f times lambda"}]`,
			"customtab_Physics_II_Waves_sketch": "sine",
		})
		return env
	}

	t.Run("sync without an index", func(t *testing.T) {
		env := seed(t)
		require.True(t, env.coord.SyncBookToBackend(context.Background(), "b1").Success)

		record, _ := env.remote.get("b1")
		bag := decodeContent(t, record)
		assert.Len(t, bag, 1)
		assert.Contains(t, bag, "flashcards_Physics_Intro")
	})

	t.Run("delete without an index", func(t *testing.T) {
		env := seed(t)
		ctx := context.Background()
		require.NoError(t, env.coord.DeleteBook(ctx, "b1"))

		assert.False(t, env.local.has("flashcards_Physics_Intro"))
		assert.True(t, env.local.has("flashcards_Physics_II_Waves"))
		assert.True(t, env.local.has("customtab_Physics_II_Waves_sketch"))
	})

	t.Run("reconstruct without an index", func(t *testing.T) {
		env := seed(t)
		ctx := context.Background()
		require.NoError(t, env.local.Set(ctx, cachekeys.BookMetadata("b1"), `{"id":"b1","name":"Physics","tags":[]}`))

		data, found, err := env.coord.ReconstructFromCache(ctx, "b1")
		require.NoError(t, err)
		require.True(t, found)
		assert.Len(t, data.TemplateData[entities.TemplateFlashcards], 1)
		assert.Contains(t, data.TemplateData[entities.TemplateFlashcards], "Intro")
		assert.Empty(t, data.CustomTabs)
	})

	t.Run("indexed books", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		ctx := context.Background()
		short := entities.NewFullBookData(entities.BookMetadata{Name: "Physics"})
		short.TemplateData[entities.TemplateNotes]["Intro"] = json.RawMessage(`[]`)
		long := entities.NewFullBookData(entities.BookMetadata{Name: "Physics II"})
		long.TemplateData[entities.TemplateNotes]["Waves"] = json.RawMessage(`[]`)
		require.NoError(t, env.coord.CacheBookData(ctx, "b1", short))
		require.NoError(t, env.coord.CacheBookData(ctx, "b2", long))

		require.True(t, env.coord.SyncBookToBackend(ctx, "b1").Success)
		record, _ := env.remote.get("b1")
		assert.Equal(t, []string{"notes_Physics_Intro"}, mapsKeys(decodeContent(t, record)))

		require.NoError(t, env.coord.DeleteBook(ctx, "b1"))
		data, found, err := env.coord.ReconstructFromCache(ctx, "b2")
		require.NoError(t, err)
		require.True(t, found)
		assert.Contains(t, data.TemplateData[entities.TemplateNotes], "Waves")
	})
}

func mapsKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func TestLoadBookFromBackend_KeepsKeysOfUnknownLayout(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	env.remote.put(remoteBook("b1", "user-1", `{"authorName":"Anon"}`, `[]`,
		`{"quiz_Cells":[{"id":"x"}],"flashcards__Cells":[]}`))

	result := env.coord.LoadBookFromBackend(ctx, "b1")
	require.True(t, result.Success, result.Errors)
	assert.Equal(t, 2, result.Restored.Templates)

	index, ok, err := env.coord.readIndex(ctx, "b1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, index.BookName, "the index carries the stored name, not the display default")
	assert.ElementsMatch(t, []string{"quiz_Cells", "flashcards__Cells"}, index.Keys())

	require.True(t, env.coord.SyncBookToBackend(ctx, "b1").Success)
	record, _ := env.remote.get("b1")
	assert.ElementsMatch(t, []string{"quiz_Cells", "flashcards__Cells"}, mapsKeys(decodeContent(t, record)))

	require.NoError(t, env.coord.DeleteBook(ctx, "b1"))
	assert.False(t, env.local.has("quiz_Cells"))
	assert.False(t, env.local.has("flashcards__Cells"))
}
