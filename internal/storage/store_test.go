package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/deusflow/newsagg/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFactory func(t *testing.T) Store

func newSQLite(t *testing.T) Store {
	t.Helper()
	s, err := OpenSQL(context.Background(), DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newMemory(t *testing.T) Store {
	t.Helper()
	return NewMemory("")
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, newMemory)
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, newSQLite)
}

func runStoreSuite(t *testing.T, factory storeFactory) {
	t.Run("insert and find by url", func(t *testing.T) { testInsertFind(t, factory(t)) })
	t.Run("duplicate url", func(t *testing.T) { testDuplicateURL(t, factory(t)) })
	t.Run("get or create is idempotent", func(t *testing.T) { testGetOrCreate(t, factory(t)) })
	t.Run("explicit create rejects duplicates", func(t *testing.T) { testCreateDuplicates(t, factory(t)) })
	t.Run("uncategorized and update", func(t *testing.T) { testUncategorized(t, factory(t)) })
	t.Run("list filters and order", func(t *testing.T) { testList(t, factory(t)) })
	t.Run("soft delete", func(t *testing.T) { testDelete(t, factory(t)) })
	t.Run("users and preferences", func(t *testing.T) { testUsers(t, factory(t)) })
	t.Run("stats", func(t *testing.T) { testStats(t, factory(t)) })
	t.Run("concurrent get or create", func(t *testing.T) { testConcurrentGetOrCreate(t, factory(t)) })
}

func seedArticle(t *testing.T, s Store, url, category string, published time.Time) model.Article {
	t.Helper()
	ctx := context.Background()

	src, err := s.GetOrCreateSource(ctx, model.Source{Name: "Lenta", URL: "https://lenta.ru"})
	require.NoError(t, err)

	a := model.Article{
		Title:       "title " + url,
		Body:        "body",
		URL:         url,
		SourceID:    src.ID,
		PublishedAt: published,
		Active:      true,
	}
	if category != "" {
		c, err := s.GetOrCreateCategory(ctx, category)
		require.NoError(t, err)
		a.CategoryID = c.ID
	}
	out, err := s.Insert(ctx, a)
	require.NoError(t, err)
	return out
}

func testInsertFind(t *testing.T, s Store) {
	ctx := context.Background()
	published := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

	inserted := seedArticle(t, s, "https://a/1", "economy", published)

	assert.NotZero(t, inserted.ID)
	assert.False(t, inserted.CreatedAt.IsZero())
	assert.Equal(t, "economy", inserted.Category)
	assert.Equal(t, "Lenta", inserted.Source)

	found, err := s.FindByURL(ctx, "https://a/1")
	require.NoError(t, err)
	assert.Equal(t, inserted.ID, found.ID)
	assert.True(t, found.PublishedAt.Equal(published), "published %v", found.PublishedAt)
	assert.True(t, found.Active)

	_, err = s.FindByURL(ctx, "https://a/missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get(ctx, inserted.ID+100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func testDuplicateURL(t *testing.T, s Store) {
	ctx := context.Background()
	seedArticle(t, s, "https://a/dup", "", time.Now())

	_, err := s.Insert(ctx, model.Article{Title: "again", URL: "https://a/dup", PublishedAt: time.Now()})
	assert.ErrorIs(t, err, ErrDuplicateURL)

	list, err := s.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func testGetOrCreate(t *testing.T, s Store) {
	ctx := context.Background()

	first, err := s.GetOrCreateCategory(ctx, "Наука")
	require.NoError(t, err)
	second, err := s.GetOrCreateCategory(ctx, "Наука")
	require.NoError(t, err)
	other, err := s.GetOrCreateCategory(ctx, "наука")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotEqual(t, first.ID, other.ID, "names match case-sensitively")

	src1, err := s.GetOrCreateSource(ctx, model.Source{Name: "RIA", URL: "https://ria.ru"})
	require.NoError(t, err)
	src2, err := s.GetOrCreateSource(ctx, model.Source{Name: "RIA", URL: "https://other"})
	require.NoError(t, err)
	assert.Equal(t, src1, src2)
	assert.Equal(t, "https://ria.ru", src2.URL)

	cats, err := s.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, 2)
	srcs, err := s.ListSources(ctx)
	require.NoError(t, err)
	assert.Len(t, srcs, 1)
}

func testCreateDuplicates(t *testing.T, s Store) {
	ctx := context.Background()

	c, err := s.CreateCategory(ctx, "sports")
	require.NoError(t, err)
	assert.NotZero(t, c.ID)
	_, err = s.CreateCategory(ctx, "sports")
	assert.ErrorIs(t, err, ErrDuplicateName)

	src, err := s.CreateSource(ctx, model.Source{Name: "BBC", URL: "https://bbc.com", FeedURL: "https://bbc.com/rss"})
	require.NoError(t, err)
	assert.Equal(t, "https://bbc.com/rss", src.FeedURL)
	_, err = s.CreateSource(ctx, model.Source{Name: "BBC"})
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func testUncategorized(t *testing.T, s Store) {
	ctx := context.Background()
	a := seedArticle(t, s, "https://a/u1", "", time.Now())
	seedArticle(t, s, "https://a/c1", "politics", time.Now())

	pending, err := s.FindUncategorized(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a.ID, pending[0].ID)
	assert.False(t, pending[0].Categorized())

	cat, err := s.GetOrCreateCategory(ctx, "science")
	require.NoError(t, err)
	a.CategoryID = cat.ID
	a.Title = "updated"
	require.NoError(t, s.Update(ctx, a))

	pending, err = s.FindUncategorized(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "science", got.Category)
	assert.Equal(t, "updated", got.Title)

	assert.ErrorIs(t, s.Update(ctx, model.Article{ID: 9999, URL: "https://x"}), ErrNotFound)

	a.URL = "https://a/c1"
	assert.ErrorIs(t, s.Update(ctx, a), ErrDuplicateURL)
}

func testList(t *testing.T, s Store) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		cat := "economy"
		if i%2 == 1 {
			cat = "sports"
		}
		seedArticle(t, s, fmt.Sprintf("https://a/%d", i), cat, base.Add(time.Duration(i)*time.Hour))
	}

	all, err := s.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "https://a/4", all[0].URL, "newest first")

	page, err := s.List(ctx, ListOptions{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "https://a/3", page[0].URL)

	sports, err := s.List(ctx, ListOptions{Category: "sports"})
	require.NoError(t, err)
	assert.Len(t, sports, 2)

	bySource, err := s.List(ctx, ListOptions{Source: "Lenta"})
	require.NoError(t, err)
	assert.Len(t, bySource, 5)

	none, err := s.List(ctx, ListOptions{Source: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testDelete(t *testing.T, s Store) {
	ctx := context.Background()
	a := seedArticle(t, s, "https://a/del", "", time.Now())

	require.NoError(t, s.Delete(ctx, a.ID))
	assert.ErrorIs(t, s.Delete(ctx, a.ID+100), ErrNotFound)

	active, err := s.List(ctx, ListOptions{ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = s.Insert(ctx, model.Article{Title: "x", URL: "https://a/del", PublishedAt: time.Now()})
	assert.ErrorIs(t, err, ErrDuplicateURL)
}

func testUsers(t *testing.T, s Store) {
	ctx := context.Background()

	u, err := s.CreateUser(ctx, model.User{Email: "a@example.com", Username: "alice", PasswordHash: "hash", Active: true})
	require.NoError(t, err)
	assert.NotZero(t, u.ID)

	_, err = s.CreateUser(ctx, model.User{Email: "a@example.com", Username: "other", PasswordHash: "h"})
	assert.ErrorIs(t, err, ErrDuplicateUser)
	_, err = s.CreateUser(ctx, model.User{Email: "b@example.com", Username: "alice", PasswordHash: "h"})
	assert.ErrorIs(t, err, ErrDuplicateUser)

	byName, err := s.FindUserByLogin(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)
	assert.Equal(t, "hash", byName.PasswordHash)

	byEmail, err := s.FindUserByLogin(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = s.FindUserByLogin(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FindUserByID(ctx, u.ID+1)
	assert.ErrorIs(t, err, ErrNotFound)

	prefs, err := s.Preferences(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, prefs.Categories)
	assert.Empty(t, prefs.Sources)

	require.NoError(t, s.SetPreferences(ctx, u.ID, model.Preferences{
		Categories: []string{"economy", "sports", "economy", ""},
		Sources:    []string{" Lenta ", "RIA"},
	}))
	prefs, err = s.Preferences(ctx, u.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"economy", "sports"}, prefs.Categories)
	assert.ElementsMatch(t, []string{"Lenta", "RIA"}, prefs.Sources)

	require.NoError(t, s.SetPreferences(ctx, u.ID, model.Preferences{Categories: []string{"science"}}))
	prefs, err = s.Preferences(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"science"}, prefs.Categories)
	assert.Empty(t, prefs.Sources)

	assert.ErrorIs(t, s.SetPreferences(ctx, u.ID+1, model.Preferences{}), ErrNotFound)
}

func testStats(t *testing.T, s Store) {
	ctx := context.Background()
	seedArticle(t, s, "https://a/s1", "", time.Now())
	seedArticle(t, s, "https://a/s2", "economy", time.Now())

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Articles: 2, Active: 2, Uncategorized: 1, Categories: 1, Sources: 1}, st)
}

func testConcurrentGetOrCreate(t *testing.T, s Store) {
	ctx := context.Background()
	var wg sync.WaitGroup
	ids := make([]int64, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := s.GetOrCreateCategory(ctx, "shared")
			assert.NoError(t, err)
			ids[i] = c.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestMemory_SaveAndLoad(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "data.json")
	ctx := context.Background()
	m := NewMemory(path)
	a := seedArticle(t, m, "https://a/persist", "economy", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	u, err := m.CreateUser(ctx, model.User{Email: "p@x", Username: "p", PasswordHash: "secret", Active: true})
	require.NoError(t, err)
	require.NoError(t, m.SetPreferences(ctx, u.ID, model.Preferences{Categories: []string{"economy"}}))

	// Act
	require.NoError(t, m.Close())
	restored := NewMemory(path)
	require.NoError(t, restored.Load())

	// Assert
	got, err := restored.FindByURL(ctx, "https://a/persist")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, "economy", got.Category)

	user, err := restored.FindUserByLogin(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, "secret", user.PasswordHash)

	prefs, err := restored.Preferences(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"economy"}, prefs.Categories)

	next := seedArticle(t, restored, "https://a/next", "", time.Now())
	assert.Greater(t, next.ID, a.ID)
}

func TestMemory_LoadMissingFile(t *testing.T) {
	m := NewMemory(filepath.Join(t.TempDir(), "absent.json"))
	assert.NoError(t, m.Load())
}

func TestParseDBTime(t *testing.T) {
	want := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	inputs := []any{
		want,
		"2024-03-04T05:06:07Z",
		"2024-03-04 05:06:07+00:00",
		[]byte("2024-03-04 05:06:07"),
	}
	for _, in := range inputs {
		assert.True(t, parseDBTime(in).Equal(want), "input %v", in)
	}
	assert.True(t, parseDBTime(nil).IsZero())
	assert.True(t, parseDBTime("garbage").IsZero())
}

func TestPlaceholderFor(t *testing.T) {
	cases := map[string]string{
		DialectPostgres: "SELECT id FROM articles WHERE url = $1 AND active = $2",
		DialectSQLite:   "SELECT id FROM articles WHERE url = ? AND active = ?",
	}
	for dialect, want := range cases {
		query, args, err := sq.Select("id").From("articles").
			Where(sq.Eq{"url": "https://x/1"}).
			Where(sq.Eq{"active": true}).
			PlaceholderFormat(placeholderFor(dialect)).
			ToSql()
		require.NoError(t, err)
		assert.Equal(t, want, query, dialect)
		assert.Len(t, args, 2)
	}
}
