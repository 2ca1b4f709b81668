package booksync

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/booksync/internal/cachekeys"
	"github.com/mrlokans/booksync/internal/entities"
)

const bioContent = `{
	"flashcards_Bio_101_Cell_Structure": [{"id":"f1","front":"What is a cell?","back":"The unit of life"}],
	"mcq_Bio_101_Cell_Structure": {"not":"a list"},
	"customtab_Bio_101_Cell_Structure_summary": "cells are small",
	"highlights_Bio_101_Cell_Structure": [{"id":"h1","text":"mitochondria","startOffset":3,"endOffset":15,"createdAt":"2024-01-01T00:00:00Z"}]
}`

func seedBio(env *testEnv) {
	env.remote.put(remoteBook("b1", "user-1",
		`{"id":"b1","name":"Bio 101","authorName":"Dr. Green"}`,
		`[{"id":"c1","title":"Cell Structure","content":"...","order":1}]`,
		bioContent))
}

func TestLoadBookList_ExampleScenario(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.remote.put(remoteBook("b1", "user-1", `{"name":"Biology","authorName":"Ann"}`, `[]`, `{}`))
	env.remote.put(remoteBook("b2", "user-1", `{"name":"Chemistry"}`, `[{"id":"c1","title":"Atoms","order":1}]`, `{}`))
	ctx := context.Background()

	books, err := env.coord.LoadBookList(ctx, "user-1", false)
	require.NoError(t, err)
	assert.Len(t, books, 2)

	requireCached(t, env.local, "cached_book_list_user-1")
	stamp := requireCached(t, env.local, "cached_book_list_user-1_timestamp")
	ms, err := strconv.ParseInt(stamp, 10, 64)
	require.NoError(t, err)
	assert.WithinDuration(t, env.clock.Now(), time.UnixMilli(ms), time.Second)

	again, err := env.coord.LoadBookList(ctx, "user-1", false)
	require.NoError(t, err)
	assert.Equal(t, books, again)

	listCalls, _ := env.remote.calls()
	assert.Equal(t, 1, listCalls)
}

func TestLoadBookList_CacheHitRefreshesInBackground(t *testing.T) {
	env := newTestEnv(t, Options{RefreshDelay: time.Millisecond})
	env.remote.put(remoteBook("b1", "user-1", `{"name":"Biology"}`, `[]`, `{}`))
	ctx := context.Background()

	_, err := env.coord.LoadBookList(ctx, "user-1", false)
	require.NoError(t, err)
	env.remote.put(remoteBook("b2", "user-1", `{"name":"Chemistry"}`, `[]`, `{}`))

	books, err := env.coord.LoadBookList(ctx, "user-1", false)
	require.NoError(t, err)
	assert.Len(t, books, 1, "cache hit serves the cached list")

	env.coord.Drain()
	listCalls, _ := env.remote.calls()
	assert.Equal(t, 2, listCalls)

	text := requireCached(t, env.local, cachekeys.BookList("user-1"))
	assert.Contains(t, text, "Chemistry")
}

func TestLoadBookList_StaleCacheGoesRemote(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.remote.put(remoteBook("b1", "user-1", `{"name":"Biology"}`, `[]`, `{}`))
	ctx := context.Background()

	_, err := env.coord.LoadBookList(ctx, "user-1", false)
	require.NoError(t, err)

	env.clock.Advance(16 * time.Minute)
	_, err = env.coord.LoadBookList(ctx, "user-1", false)
	require.NoError(t, err)

	listCalls, _ := env.remote.calls()
	assert.Equal(t, 2, listCalls)
}

func TestLoadBookList_FallsBackToStaleCache(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.remote.put(remoteBook("b1", "user-1", `{"name":"Biology"}`, `[]`, `{}`))
	ctx := context.Background()

	first, err := env.coord.LoadBookList(ctx, "user-1", false)
	require.NoError(t, err)

	env.clock.Advance(2 * time.Hour)
	env.remote.setErr(errRemoteDown)

	books, err := env.coord.LoadBookList(ctx, "user-1", false)
	require.NoError(t, err)
	assert.Equal(t, first, books)

	state := env.coord.LoadingState()
	assert.False(t, state.IsLoadingBookList)
	assert.Contains(t, state.SyncErrors[entities.BookListErrorKey], "connection refused")

	env.remote.setErr(nil)
	_, err = env.coord.LoadBookList(ctx, "user-1", true)
	require.NoError(t, err)
	assert.NotContains(t, env.coord.LoadingState().SyncErrors, entities.BookListErrorKey)
}

func TestLoadBookList_RemoteFailureWithoutCache(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.remote.setErr(errRemoteDown)

	_, err := env.coord.LoadBookList(context.Background(), "user-1", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemoteUnavailable)
	assert.ErrorIs(t, err, errRemoteDown)
	assert.False(t, env.coord.LoadingState().IsLoadingBookList)
}

func TestLoadBookList_RequiresIdentity(t *testing.T) {
	coord := New(newMemoryLocal(), newFakeRemote(), nil, fixedUser(""), Options{})
	defer coord.Close()

	_, err := coord.LoadBookList(context.Background(), "", false)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = coord.LoadBookList(WithUser(context.Background(), "user-2"), "", false)
	assert.NoError(t, err)
}

func TestLoadBookList_MetadataDefaults(t *testing.T) {
	env := newTestEnv(t, Options{})
	bookJSON := `{"authorName":"Ann","creatorName":"Carl","tags":null,"createdAt":"2023-01-02T03:04:05Z"}`
	chaptersJSON := `[{"id":"c1","title":"One","order":1},{"id":"c2","title":"Two","order":2}]`
	env.remote.put(remoteBook("b1", "user-1", bookJSON, chaptersJSON, `{}`))

	books, err := env.coord.LoadBookList(context.Background(), "user-1", true)
	require.NoError(t, err)
	require.Len(t, books, 1)

	book := books[0]
	assert.Equal(t, "b1", book.ID)
	assert.Equal(t, "Untitled Book", book.Name)
	assert.Equal(t, "Carl", book.AuthorName)
	assert.Equal(t, 2, book.ChapterCount)
	assert.Equal(t, []string{}, book.Tags)
	assert.False(t, book.IsPublished)
	assert.Equal(t, int64(len(bookJSON)+len(chaptersJSON)), book.FileSize)
	assert.Equal(t, time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC), book.CreatedAt)
	assert.Equal(t, env.clock.Now(), book.LastModified)
}

func TestLoadBookList_UnknownAuthor(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.remote.put(remoteBook("b1", "user-1", `{"name":"Notes"}`, `[]`, `{}`))

	books, err := env.coord.LoadBookList(context.Background(), "user-1", true)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "Unknown Author", books[0].AuthorName)
}

func TestLoadBookContent_CacheFreshness(t *testing.T) {
	env := newTestEnv(t, Options{})
	seedBio(env)
	ctx := context.Background()

	first, err := env.coord.LoadBookContent(ctx, "b1", false)
	require.NoError(t, err)
	_, gets := env.remote.calls()
	assert.Equal(t, 1, gets)

	assert.Len(t, first.TemplateData[entities.TemplateFlashcards], 1)
	assert.Empty(t, first.TemplateData[entities.TemplateMCQ], "invalid payloads are dropped")
	assert.Equal(t, "cells are small", first.CustomTabs["Cell_Structure"]["summary"])
	require.Len(t, first.Highlights["Cell_Structure"], 1)
	assert.Equal(t, "mitochondria", first.Highlights["Cell_Structure"][0].Text)

	env.clock.Advance(29 * time.Minute)
	second, err := env.coord.LoadBookContent(ctx, "b1", false)
	require.NoError(t, err)
	_, gets = env.remote.calls()
	assert.Equal(t, 1, gets, "fresh cache must not reach the remote store")
	assert.Equal(t, first.TemplateData, second.TemplateData)
	assert.Equal(t, first.CustomTabs, second.CustomTabs)
	assert.Equal(t, first.Highlights, second.Highlights)
	assert.Equal(t, first.Chapters, second.Chapters)
	assert.Equal(t, first.Metadata, second.Metadata)

	env.clock.Advance(2 * time.Minute)
	_, err = env.coord.LoadBookContent(ctx, "b1", false)
	require.NoError(t, err)
	_, gets = env.remote.calls()
	assert.Equal(t, 2, gets)
}

func TestLoadBookContent_ForceRefreshOverwritesCache(t *testing.T) {
	env := newTestEnv(t, Options{})
	seedBio(env)
	ctx := context.Background()

	_, err := env.coord.LoadBookContent(ctx, "b1", false)
	require.NoError(t, err)

	env.clock.Advance(time.Minute)
	env.remote.put(remoteBook("b1", "user-1",
		`{"id":"b1","name":"Bio 101"}`,
		`[{"id":"c1","title":"Cell Structure","order":1}]`,
		`{"customtab_Bio_101_Cell_Structure_summary":"updated"}`))

	data, err := env.coord.LoadBookContent(ctx, "b1", true)
	require.NoError(t, err)
	assert.Equal(t, "updated", data.CustomTabs["Cell_Structure"]["summary"])
	_, gets := env.remote.calls()
	assert.Equal(t, 2, gets)

	meta, ok := env.coord.readSyncMetadata(ctx, "b1")
	require.True(t, ok)
	assert.Equal(t, env.clock.Now(), meta.LastSync)
	assert.Equal(t, entities.SyncStateSynced, meta.Status)

	cached, found, err := env.coord.ReconstructFromCache(ctx, "b1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "updated", cached.CustomTabs["Cell_Structure"]["summary"])
	assert.Empty(t, cached.TemplateData[entities.TemplateFlashcards], "stale keys are removed")
	assert.Empty(t, cached.Highlights)
	assert.False(t, env.local.has("flashcards_Bio_101_Cell_Structure"))
}

func TestLoadBookContent_FallsBackToCache(t *testing.T) {
	env := newTestEnv(t, Options{})
	seedBio(env)
	ctx := context.Background()

	cached, err := env.coord.LoadBookContent(ctx, "b1", false)
	require.NoError(t, err)

	env.remote.setErr(errRemoteDown)
	data, err := env.coord.LoadBookContent(ctx, "b1", true)
	require.NoError(t, err)
	assert.Equal(t, cached.CustomTabs, data.CustomTabs)

	state := env.coord.LoadingState()
	assert.Contains(t, state.SyncErrors["b1"], "connection refused")
	assert.False(t, state.IsLoadingBook["b1"])
}

func TestLoadBookContent_NoFallback(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.remote.setErr(errRemoteDown)

	_, err := env.coord.LoadBookContent(context.Background(), "b1", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemoteUnavailable)

	state := env.coord.LoadingState()
	assert.False(t, state.IsLoadingBook["b1"])
	assert.NotEmpty(t, state.SyncErrors["b1"])
}

func TestLoadBookContent_NotFound(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.remote.put(remoteBook("b1", "someone-else", `{"name":"Private"}`, `[]`, `{}`))

	_, err := env.coord.LoadBookContent(context.Background(), "b1", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadBookContent_NotifiesObservers(t *testing.T) {
	env := newTestEnv(t, Options{})
	seedBio(env)

	var seen []bool
	unsubscribe := env.coord.Subscribe(func(s entities.LoadingState) {
		if loading, ok := s.IsLoadingBook["b1"]; ok {
			seen = append(seen, loading)
		}
	})

	_, err := env.coord.LoadBookContent(context.Background(), "b1", true)
	require.NoError(t, err)
	require.NotEmpty(t, seen)
	assert.True(t, seen[0])
	assert.False(t, seen[len(seen)-1])

	unsubscribe()
	unsubscribe()
	count := len(seen)
	_, err = env.coord.LoadBookContent(context.Background(), "b1", true)
	require.NoError(t, err)
	assert.Len(t, seen, count)
}

func TestRecentBooksAreBounded(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d", "e", "f", "b"} {
		_, _ = env.coord.LoadBookContent(ctx, id, false)
	}
	assert.Equal(t, []string{"b", "f", "e", "d", "c"}, env.coord.RecentBooks())
}

func TestBackgroundSyncRecent(t *testing.T) {
	env := newTestEnv(t, Options{BackgroundBatchSize: 2})
	ctx := context.Background()
	for _, id := range []string{"b1", "b2", "b3"} {
		env.remote.put(remoteBook(id, "user-1", `{"name":"Book `+id+`"}`, `[]`, `{}`))
		_, err := env.coord.LoadBookContent(ctx, id, false)
		require.NoError(t, err)
	}
	env.remote.put(remoteBook("b3", "user-1", `{"name":"Renamed"}`, `[]`, `{}`))
	lists, gets := env.remote.calls()

	env.coord.BackgroundSyncRecent(ctx, "user-1")

	newLists, newGets := env.remote.calls()
	assert.Equal(t, lists+1, newLists)
	assert.Equal(t, gets+2, newGets, "only the batch size of recent books is refreshed")

	data, found, err := env.coord.ReconstructFromCache(ctx, "b3")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Renamed", data.Metadata.Name)
	assert.Equal(t, []string{"b3", "b2", "b1"}, env.coord.RecentBooks())
}

func TestBackgroundSyncRecent_SkipsFailures(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.remote.setErr(errRemoteDown)
	_, _ = env.coord.LoadBookContent(context.Background(), "missing", false)

	assert.NotPanics(t, func() {
		env.coord.BackgroundSyncRecent(context.Background(), "user-1")
	})
}
