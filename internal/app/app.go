// Package app wires configuration, storage, ingestion and the HTTP API into
// a running service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/deusflow/newsagg/internal/auth"
	"github.com/deusflow/newsagg/internal/cache"
	"github.com/deusflow/newsagg/internal/categorize"
	"github.com/deusflow/newsagg/internal/config"
	"github.com/deusflow/newsagg/internal/ingest"
	"github.com/deusflow/newsagg/internal/metrics"
	"github.com/deusflow/newsagg/internal/model"
	"github.com/deusflow/newsagg/internal/retry"
	"github.com/deusflow/newsagg/internal/rss"
	"github.com/deusflow/newsagg/internal/scheduler"
	"github.com/deusflow/newsagg/internal/scraper"
	"github.com/deusflow/newsagg/internal/server"
	"github.com/deusflow/newsagg/internal/storage"
)

type App struct {
	log       *slog.Logger
	store     storage.Store
	known     *cache.Cache
	scheduler *scheduler.Scheduler
	server    *server.Server
}

// New builds every component from cfg. Close releases the store and cache.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	feeds, err := rss.LoadFeeds(cfg.FeedsConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load feeds: %w", err)
	}
	fallback := feeds.Fallback
	if cfg.FallbackCategory != "" {
		fallback = cfg.FallbackCategory
	}
	categorizer := categorize.New(feeds.Table(), fallback)

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	log.Info("storage ready", "driver", cfg.StorageDriver, "sources", len(feeds.Sources))

	client := &http.Client{Timeout: cfg.FetchTimeout}
	opts := []ingest.Option{
		ingest.WithFetcher(model.KindRSS, rss.NewFetcher(
			rss.WithHTTPClient(client),
			rss.WithMaxEntries(cfg.MaxEntriesPerFeed),
		)),
		ingest.WithFetcher(model.KindHTML, scraper.New(
			scraper.WithHTTPClient(client),
			scraper.WithMaxItems(cfg.MaxEntriesPerFeed),
		)),
		ingest.WithFetchTimeout(cfg.FetchTimeout),
		ingest.WithMetrics(metrics.Global),
		ingest.WithLogger(log),
	}
	var known *cache.Cache
	if cfg.KnownURLTTL > 0 {
		known = cache.New(cfg.KnownURLTTL / 4)
		opts = append(opts, ingest.WithKnownURLs(known, cfg.KnownURLTTL))
	}
	svc := ingest.New(store, categorizer, opts...)
	job := ingest.NewJob(svc, feeds.Sources)
	if err := restoreSources(ctx, store, job); err != nil {
		_ = store.Close()
		return nil, err
	}
	sched := scheduler.New(cfg.IngestInterval, job, log)

	authSvc := auth.New(store, cfg.JWTSecret, auth.WithTokenTTL(cfg.TokenTTL), auth.WithLogger(log))
	srv := server.New(server.Config{Addr: cfg.HTTPAddr, CORSOrigins: cfg.CORSOrigins}, server.Deps{
		Store:       store,
		Auth:        authSvc,
		Categorizer: categorizer,
		Ingestor:    sched,
		Sources:     job,
		Metrics:     metrics.Global,
		Log:         log,
	})

	return &App{
		log:       log,
		store:     store,
		known:     known,
		scheduler: sched,
		server:    srv,
	}, nil
}

// restoreSources registers feeds added through the API in earlier runs.
// Configured sources keep precedence on a name clash.
func restoreSources(ctx context.Context, store storage.Store, job *ingest.Job) error {
	sources, err := store.ListSources(ctx)
	if err != nil {
		return fmt.Errorf("failed to list stored sources: %w", err)
	}
	for _, src := range sources {
		if src.FeedURL == "" {
			continue
		}
		job.AddSource(model.FeedSource{Name: src.Name, URL: src.URL, FeedURL: src.FeedURL, Kind: model.KindRSS})
	}
	return nil
}

// openStore retries SQL connections so the service can start before its
// database accepts connections.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Store, error) {
	dialect := storage.DialectSQLite
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		dialect = storage.DialectPostgres
		fallthrough
	case config.DriverSQLite:
		var store *storage.SQL
		rc := retry.Config{MaxAttempts: cfg.RetryAttempts, Delay: cfg.RetryDelay, Backoff: true}
		err := retry.Do(ctx, rc, func() error {
			var err error
			store, err = storage.OpenSQL(ctx, dialect, cfg.DatabaseURL)
			if err != nil {
				log.Warn("database not ready", "driver", cfg.StorageDriver, "error", err)
			}
			return err
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		m := storage.NewMemory(cfg.DataFile)
		if err := m.Load(); err != nil {
			return nil, err
		}
		return m, nil
	}
}

// Run serves the API and runs the scheduler until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-a.scheduler.Start(ctx)
	}()

	err := a.server.Start(ctx)
	cancel()
	wg.Wait()
	a.log.Info("service stopped")
	if err != nil {
		metrics.Global.SetError(err.Error())
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// RunOnce performs a single ingestion pass without serving HTTP.
func (a *App) RunOnce(ctx context.Context) (ingest.Report, error) {
	r, err := a.scheduler.RunNow(ctx)
	if err != nil {
		metrics.Global.SetError(err.Error())
		return r, err
	}
	if len(r.Errors) > 0 && r.Inserted == 0 && len(r.Errors) == len(r.Sources) {
		return r, errors.New("every source failed")
	}
	return r, nil
}

func (a *App) Close() error {
	if a.known != nil {
		a.known.Close()
	}
	return a.store.Close()
}
