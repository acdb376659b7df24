package scraper

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/deusflow/newsagg/internal/model"
)

const (
	// MinTextLength is the noise threshold: headings with this many
	// characters or fewer are dropped.
	MinTextLength   = 10
	DefaultSelector = "h1, h2, h3"
	DefaultMaxItems = 10
)

var (
	ErrFetch = errors.New("fetch page")
	ErrParse = errors.New("parse heading")
)

// Scraper extracts entries from plain HTML pages by matching heading tags.
type Scraper struct {
	client    *http.Client
	maxItems  int
	userAgent string
	now       func() time.Time
}

type Option func(*Scraper)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Scraper) {
		if c != nil {
			s.client = c
		}
	}
}

func WithMaxItems(n int) Option {
	return func(s *Scraper) {
		if n > 0 {
			s.maxItems = n
		}
	}
}

func New(opts ...Option) *Scraper {
	s := &Scraper{
		client:    &http.Client{Timeout: 15 * time.Second},
		maxItems:  DefaultMaxItems,
		userAgent: "newsagg/1.0",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch loads the page of src and returns its headings as entries.
func (s *Scraper) Fetch(ctx context.Context, src model.FeedSource) (iter.Seq2[model.Entry, error], error) {
	target := src.Target()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetch, target, err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetch, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: HTTP %d", ErrFetch, target, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: error parsing HTML: %v", ErrFetch, target, err)
	}

	base := resp.Request.URL
	return Entries(doc, base, src.Selector, s.maxItems, s.now()), nil
}

// Entries yields one entry per matching heading in document order. Short
// headings and repeated links are skipped silently; headings without a
// link yield ErrParse.
func Entries(doc *goquery.Document, base *url.URL, selector string, limit int, now time.Time) iter.Seq2[model.Entry, error] {
	if strings.TrimSpace(selector) == "" {
		selector = DefaultSelector
	}
	return func(yield func(model.Entry, error) bool) {
		seen := make(map[string]bool)
		count := 0
		for _, node := range doc.Find(selector).EachIter() {
			if limit > 0 && count >= limit {
				return
			}

			text := collapse(node.Text())
			if utf8.RuneCountInString(text) <= MinTextLength {
				continue
			}

			link := resolve(base, headingHref(node))
			if link == "" {
				count++
				if !yield(model.Entry{}, fmt.Errorf("%w: %q has no link", ErrParse, text)) {
					return
				}
				continue
			}
			if seen[link] {
				continue
			}
			seen[link] = true

			count++
			e := model.Entry{Title: text, Summary: text, Link: link, PublishedAt: now.UTC()}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// headingHref looks at the node itself, then a nested anchor, then an
// enclosing one.
func headingHref(s *goquery.Selection) string {
	if goquery.NodeName(s) == "a" {
		if href, ok := s.Attr("href"); ok {
			return href
		}
	}
	if href, ok := s.Find("a[href]").First().Attr("href"); ok {
		return href
	}
	if href, ok := s.Closest("a[href]").Attr("href"); ok {
		return href
	}
	return ""
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}
