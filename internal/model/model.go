// Package model holds the shapes shared by ingestion, storage and the HTTP API.
package model

import (
	"strings"
	"time"
)

// Article is a stored news item. URL is unique across the store.
// Category is empty until the article has been categorized.
type Article struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	URL         string    `json:"url"`
	SourceID    int64     `json:"source_id,omitempty"`
	Source      string    `json:"source"`
	CategoryID  int64     `json:"category_id,omitempty"`
	Category    string    `json:"category,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

func (a Article) Categorized() bool {
	return a.Category != ""
}

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Source struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	FeedURL string `json:"feed_url,omitempty"`
}

// Feed source kinds
const (
	KindRSS  = "rss"
	KindHTML = "html"
)

// FeedSource describes where entries come from and how to read them.
type FeedSource struct {
	Name            string `yaml:"name" json:"name"`
	URL             string `yaml:"url" json:"url"`
	FeedURL         string `yaml:"feed_url" json:"feed_url,omitempty"`
	Kind            string `yaml:"kind" json:"kind,omitempty"`
	DefaultCategory string `yaml:"default_category" json:"default_category,omitempty"`
	// Selector overrides the heading selector in html mode.
	Selector string `yaml:"selector" json:"selector,omitempty"`
}

// Target is the document to fetch: the feed URL when set, the page URL otherwise.
func (f FeedSource) Target() string {
	if f.FeedURL != "" {
		return f.FeedURL
	}
	return f.URL
}

// ResolvedKind returns the normalized kind, rss when unset.
func (f FeedSource) ResolvedKind() string {
	k := strings.ToLower(strings.TrimSpace(f.Kind))
	if k == "" {
		return KindRSS
	}
	return k
}

// Source converts the descriptor into the entity stored alongside articles.
func (f FeedSource) Source() Source {
	return Source{Name: f.Name, URL: f.URL, FeedURL: f.FeedURL}
}

// Entry is one article-like record extracted from a fetched document.
type Entry struct {
	Title       string
	Summary     string
	Link        string
	PublishedAt time.Time
}

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Preferences are the ranking inputs a user chose.
type Preferences struct {
	Categories []string `json:"preferred_categories"`
	Sources    []string `json:"preferred_sources"`
}
