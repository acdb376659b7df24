// Package ingest runs the fetch, extract, categorize and persist pipeline
// over a list of feed sources.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/deusflow/newsagg/internal/cache"
	"github.com/deusflow/newsagg/internal/categorize"
	"github.com/deusflow/newsagg/internal/logger"
	"github.com/deusflow/newsagg/internal/metrics"
	"github.com/deusflow/newsagg/internal/model"
	"github.com/deusflow/newsagg/internal/storage"
	"github.com/google/uuid"
)

// Fetcher turns a source into a finite sequence of entries. A returned
// error means the whole source failed; per-entry errors mean skip.
type Fetcher interface {
	Fetch(ctx context.Context, src model.FeedSource) (iter.Seq2[model.Entry, error], error)
}

// Store is the slice of storage the pipeline writes through.
type Store interface {
	FindByURL(ctx context.Context, url string) (model.Article, error)
	Insert(ctx context.Context, a model.Article) (model.Article, error)
	GetOrCreateCategory(ctx context.Context, name string) (model.Category, error)
	GetOrCreateSource(ctx context.Context, src model.Source) (model.Source, error)
}

var ErrUnknownKind = errors.New("no fetcher for source kind")

type Service struct {
	store        Store
	categorizer  *categorize.Categorizer
	fetchers     map[string]Fetcher
	known        *cache.Cache
	knownTTL     time.Duration
	fetchTimeout time.Duration
	metrics      *metrics.Metrics
	log          *slog.Logger
	newRunID     func() string
	now          func() time.Time
}

type Option func(*Service)

// WithFetcher registers f for sources of the given kind.
func WithFetcher(kind string, f Fetcher) Option {
	return func(s *Service) { s.fetchers[kind] = f }
}

// WithKnownURLs memoizes URLs already stored so repeat runs skip the lookup.
func WithKnownURLs(c *cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.known = c
		s.knownTTL = ttl
	}
}

// WithFetchTimeout bounds each source fetch; zero leaves it to the transport.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Service) { s.fetchTimeout = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func New(store Store, c *categorize.Categorizer, opts ...Option) *Service {
	s := &Service{
		store:       store,
		categorizer: c,
		fetchers:    make(map[string]Fetcher),
		log:         logger.Discard(),
		newRunID:    uuid.NewString,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "ingest")
	return s
}

type SourceResult struct {
	Name       string `json:"name"`
	Seen       int    `json:"seen"`
	Inserted   int    `json:"inserted"`
	Duplicates int    `json:"duplicates"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
	Error      string `json:"error,omitempty"`
}

type Report struct {
	RunID      string            `json:"run_id"`
	StartedAt  time.Time         `json:"started_at"`
	DurationMS int64             `json:"duration_ms"`
	Inserted   int               `json:"inserted_count"`
	Duplicates int               `json:"duplicates"`
	Skipped    int               `json:"skipped"`
	Failed     int               `json:"failed"`
	Sources    []SourceResult    `json:"sources"`
	Errors     map[string]string `json:"per_source_errors"`
	Articles   []model.Article   `json:"articles"`
}

// IngestFromSources processes sources one after another. A failing source
// is recorded in Errors and the run goes on with the next one.
func (s *Service) IngestFromSources(ctx context.Context, sources []model.FeedSource) Report {
	start := s.now()
	r := Report{
		RunID:     s.newRunID(),
		StartedAt: start.UTC(),
		Sources:   make([]SourceResult, 0, len(sources)),
		Errors:    make(map[string]string),
		Articles:  []model.Article{},
	}
	log := s.log.With("run_id", r.RunID)
	log.Info("ingestion started", "sources", len(sources))

	fetched, seen := 0, 0
	for _, src := range sources {
		var res SourceResult
		if err := ctx.Err(); err != nil {
			res = SourceResult{Name: src.Name, Error: err.Error()}
		} else {
			var inserted []model.Article
			res, inserted = s.ingestSource(ctx, log, src)
			r.Articles = append(r.Articles, inserted...)
		}

		if res.Error != "" {
			r.Errors[src.Name] = res.Error
		} else {
			fetched++
		}
		seen += res.Seen
		r.Inserted += res.Inserted
		r.Duplicates += res.Duplicates
		r.Skipped += res.Skipped
		r.Failed += res.Failed
		r.Sources = append(r.Sources, res)
	}

	elapsed := s.now().Sub(start)
	r.DurationMS = elapsed.Milliseconds()
	if s.metrics != nil {
		s.metrics.RecordRun(metrics.RunResult{
			RunID:        r.RunID,
			FeedsFetched: fetched,
			FeedsFailed:  len(r.Errors),
			EntriesSeen:  seen,
			Inserted:     r.Inserted,
			Duplicates:   r.Duplicates,
			Skipped:      r.Skipped,
			Failed:       r.Failed,
			Duration:     elapsed,
		})
	}

	log.Info("ingestion finished",
		"inserted", r.Inserted,
		"duplicates", r.Duplicates,
		"skipped", r.Skipped,
		"failed", r.Failed,
		"source_errors", len(r.Errors),
		"took", elapsed.Round(time.Millisecond),
	)
	return r
}

func (s *Service) ingestSource(ctx context.Context, log *slog.Logger, src model.FeedSource) (SourceResult, []model.Article) {
	res := SourceResult{Name: src.Name}
	log = log.With("source", src.Name)

	fetcher, ok := s.fetchers[src.ResolvedKind()]
	if !ok {
		res.Error = fmt.Sprintf("%v: %q", ErrUnknownKind, src.ResolvedKind())
		log.Warn("source skipped", "error", res.Error)
		return res, nil
	}

	fetchCtx := ctx
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}

	entries, err := fetcher.Fetch(fetchCtx, src)
	if err != nil {
		res.Error = err.Error()
		log.Warn("fetch failed", "error", err)
		return res, nil
	}

	var inserted []model.Article
	for e, err := range entries {
		res.Seen++
		if err != nil {
			res.Skipped++
			log.Debug("entry skipped", "error", err)
			continue
		}

		a, isNew, err := s.Ingest(ctx, src, e)
		switch {
		case err != nil:
			res.Failed++
			log.Error("entry not stored", "url", e.Link, "error", err)
		case isNew:
			res.Inserted++
			inserted = append(inserted, a)
		default:
			res.Duplicates++
		}
	}

	log.Info("source processed",
		"seen", res.Seen,
		"inserted", res.Inserted,
		"duplicates", res.Duplicates,
	)
	return res, inserted
}

// Ingest stores one entry unless its URL is already known. The bool reports
// whether a new article was inserted; a duplicate is not an error. The
// returned article is zero unless it was inserted.
func (s *Service) Ingest(ctx context.Context, src model.FeedSource, e model.Entry) (model.Article, bool, error) {
	url := strings.TrimSpace(e.Link)
	if url == "" {
		return model.Article{}, false, fmt.Errorf("entry %q has no url", e.Title)
	}

	source, err := s.store.GetOrCreateSource(ctx, src.Source())
	if err != nil {
		return model.Article{}, false, fmt.Errorf("resolve source %q: %w", src.Name, err)
	}

	label := s.categoryFor(src, e)
	category, err := s.store.GetOrCreateCategory(ctx, label)
	if err != nil {
		return model.Article{}, false, fmt.Errorf("resolve category %q: %w", label, err)
	}

	key := cache.Key(url)
	if s.known != nil && s.known.Has(key) {
		return model.Article{}, false, nil
	}

	_, err = s.store.FindByURL(ctx, url)
	switch {
	case err == nil:
		s.remember(key)
		return model.Article{}, false, nil
	case !errors.Is(err, storage.ErrNotFound):
		return model.Article{}, false, fmt.Errorf("lookup %s: %w", url, err)
	}

	published := e.PublishedAt
	if published.IsZero() {
		published = s.now()
	}
	a, err := s.store.Insert(ctx, model.Article{
		Title:       e.Title,
		Body:        e.Summary,
		URL:         url,
		SourceID:    source.ID,
		Source:      source.Name,
		CategoryID:  category.ID,
		Category:    category.Name,
		PublishedAt: published,
		Active:      true,
	})
	if errors.Is(err, storage.ErrDuplicateURL) {
		// lost a race with a concurrent run
		s.remember(key)
		return model.Article{}, false, nil
	}
	if err != nil {
		return model.Article{}, false, fmt.Errorf("insert %s: %w", url, err)
	}
	s.remember(key)
	return a, true, nil
}

func (s *Service) categoryFor(src model.FeedSource, e model.Entry) string {
	label := s.categorizer.CategorizeEntry(e.Title, e.Summary)
	if label == s.categorizer.Fallback() && src.DefaultCategory != "" {
		return src.DefaultCategory
	}
	return label
}

func (s *Service) remember(key string) {
	if s.known != nil {
		s.known.Set(key, struct{}{}, s.knownTTL)
	}
}
