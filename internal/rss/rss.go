package rss

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/deusflow/newsagg/internal/model"
	"github.com/deusflow/newsagg/internal/scraper"
	"github.com/mmcdole/gofeed"
)

const DefaultMaxEntries = 10

var (
	// ErrFetch covers network failures, non-2xx answers and documents that
	// are not a feed.
	ErrFetch = errors.New("fetch feed")
	// ErrParse marks a single entry that lacks a link or a title.
	ErrParse = errors.New("parse entry")
)

// Fetcher downloads a feed and hands back its first entries.
type Fetcher struct {
	client     *http.Client
	maxEntries int
	userAgent  string
	now        func() time.Time
}

type Option func(*Fetcher)

func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithMaxEntries caps how many items of each feed are considered.
func WithMaxEntries(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxEntries = n
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.userAgent = ua }
}

func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:     http.DefaultClient,
		maxEntries: DefaultMaxEntries,
		userAgent:  "newsagg/1.0",
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves and parses the feed of src. Errors wrap ErrFetch; the
// returned sequence yields ErrParse for entries that must be skipped.
func (f *Fetcher) Fetch(ctx context.Context, src model.FeedSource) (iter.Seq2[model.Entry, error], error) {
	target := src.Target()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetch, target, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetch, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s: HTTP %d", ErrFetch, target, resp.StatusCode)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: malformed document: %v", ErrFetch, target, err)
	}
	return Entries(feed, f.maxEntries, f.now()), nil
}

// Entries walks the first limit items of feed (all when limit <= 0).
// now stands in for items without a usable date.
func Entries(feed *gofeed.Feed, limit int, now time.Time) iter.Seq2[model.Entry, error] {
	return func(yield func(model.Entry, error) bool) {
		if feed == nil {
			return
		}
		for i, item := range feed.Items {
			if limit > 0 && i >= limit {
				return
			}
			if !yield(entryFromItem(item, now)) {
				return
			}
		}
	}
}

func entryFromItem(item *gofeed.Item, now time.Time) (model.Entry, error) {
	if item == nil {
		return model.Entry{}, fmt.Errorf("%w: empty item", ErrParse)
	}

	title := scraper.PlainText(item.Title)
	link := strings.TrimSpace(item.Link)
	if link == "" {
		for _, l := range item.Links {
			if l = strings.TrimSpace(l); l != "" {
				link = l
				break
			}
		}
	}

	if link == "" {
		return model.Entry{}, fmt.Errorf("%w: item %q has no link", ErrParse, title)
	}
	if title == "" {
		return model.Entry{}, fmt.Errorf("%w: item %s has no title", ErrParse, link)
	}

	return model.Entry{
		Title:       title,
		Summary:     firstNonEmpty(scraper.PlainText(item.Description), scraper.PlainText(item.Content), title),
		Link:        link,
		PublishedAt: publishedAt(item, now),
	}, nil
}

func publishedAt(item *gofeed.Item, now time.Time) time.Time {
	switch {
	case item.PublishedParsed != nil && !item.PublishedParsed.IsZero():
		return item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil && !item.UpdatedParsed.IsZero():
		return item.UpdatedParsed.UTC()
	default:
		return now.UTC()
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
