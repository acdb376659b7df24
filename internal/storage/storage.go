// Package storage persists articles, their categories and sources, and the
// users whose preferences drive ranking.
package storage

import (
	"context"
	"errors"

	"github.com/deusflow/newsagg/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrDuplicateURL is returned by Insert when an article with the same URL
	// is already stored. Ingestion treats it as a skip.
	ErrDuplicateURL  = errors.New("article url already exists")
	ErrDuplicateName = errors.New("name already exists")
	ErrDuplicateUser = errors.New("email or username already registered")
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 100
)

type ListOptions struct {
	Limit      int
	Offset     int
	Category   string
	Source     string
	ActiveOnly bool
}

func (o ListOptions) limit() int {
	switch {
	case o.Limit <= 0:
		return DefaultListLimit
	case o.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return o.Limit
	}
}

func (o ListOptions) offset() int {
	if o.Offset < 0 {
		return 0
	}
	return o.Offset
}

// ArticleStore is keyed by URL. Insert assigns ID and CreatedAt; the
// category and source of an article are set through CategoryID and
// SourceID, the names are filled in on read.
type ArticleStore interface {
	FindByURL(ctx context.Context, url string) (model.Article, error)
	Insert(ctx context.Context, a model.Article) (model.Article, error)
	FindUncategorized(ctx context.Context) ([]model.Article, error)
	Update(ctx context.Context, a model.Article) error
	Get(ctx context.Context, id int64) (model.Article, error)
	List(ctx context.Context, opts ListOptions) ([]model.Article, error)
	// Delete deactivates the article; the row and its URL stay reserved.
	Delete(ctx context.Context, id int64) error
}

// TaxonomyStore resolves categories and sources by exact, case-sensitive name.
type TaxonomyStore interface {
	GetOrCreateCategory(ctx context.Context, name string) (model.Category, error)
	GetOrCreateSource(ctx context.Context, src model.Source) (model.Source, error)
	CreateCategory(ctx context.Context, name string) (model.Category, error)
	CreateSource(ctx context.Context, src model.Source) (model.Source, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
	ListSources(ctx context.Context) ([]model.Source, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, u model.User) (model.User, error)
	// FindUserByLogin matches either the email or the username.
	FindUserByLogin(ctx context.Context, login string) (model.User, error)
	FindUserByID(ctx context.Context, id int64) (model.User, error)
	Preferences(ctx context.Context, userID int64) (model.Preferences, error)
	SetPreferences(ctx context.Context, userID int64, prefs model.Preferences) error
}

type Stats struct {
	Articles      int `json:"articles"`
	Active        int `json:"active"`
	Uncategorized int `json:"uncategorized"`
	Categories    int `json:"categories"`
	Sources       int `json:"sources"`
	Users         int `json:"users"`
}

type Store interface {
	ArticleStore
	TaxonomyStore
	UserStore
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
