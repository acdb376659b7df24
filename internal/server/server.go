// Package server exposes the aggregator over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/deusflow/newsagg/internal/apperr"
	"github.com/deusflow/newsagg/internal/auth"
	"github.com/deusflow/newsagg/internal/categorize"
	"github.com/deusflow/newsagg/internal/ingest"
	"github.com/deusflow/newsagg/internal/logger"
	"github.com/deusflow/newsagg/internal/metrics"
	"github.com/deusflow/newsagg/internal/model"
	"github.com/deusflow/newsagg/internal/scheduler"
	"github.com/deusflow/newsagg/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const GracefulShutdownTimeout = 10 * time.Second

type Config struct {
	Addr        string
	CORSOrigins []string
}

// Ingestor runs ingestion on demand and reports on the last run.
type Ingestor interface {
	RunNow(ctx context.Context) (ingest.Report, error)
	Snapshot() scheduler.RunState
}

// SourceRegistry receives sources created through the API so later runs
// fetch them too.
type SourceRegistry interface {
	AddSource(src model.FeedSource) bool
}

type Deps struct {
	Store       storage.Store
	Auth        *auth.Service
	Categorizer *categorize.Categorizer
	Ingestor    Ingestor
	Sources     SourceRegistry
	Metrics     *metrics.Metrics
	Log         *slog.Logger
}

type Server struct {
	Echo *echo.Echo

	cfg  Config
	deps Deps
	log  *slog.Logger
}

func New(cfg Config, deps Deps) *Server {
	if deps.Log == nil {
		deps.Log = logger.Discard()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		Echo: e,
		cfg:  cfg,
		deps: deps,
		log:  deps.Log.With("component", "http"),
	}
	s.setupMiddlewares()
	e.HTTPErrorHandler = apperr.GlobalErrorHandler(s.log)
	s.routes()
	return s
}

func (s *Server) setupMiddlewares() {
	s.Echo.Use(Logger(s.log))
	s.Echo.Use(middleware.Recover())
	s.Echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
}

func (s *Server) routes() {
	e := s.Echo
	user := auth.RequireUser(s.deps.Auth)

	e.GET("/", s.root)
	e.GET("/health", s.health)
	e.GET("/metrics", s.metrics)

	e.POST("/register", s.register)
	e.POST("/login", s.login)

	e.GET("/news", s.listNews)
	e.GET("/news/personalized", s.personalizedNews, user)
	e.GET("/news/:id", s.getNews)
	e.POST("/news", s.createNews, user)
	e.PUT("/news/:id", s.updateNews, user)
	e.DELETE("/news/:id", s.deleteNews, user)

	e.GET("/categories", s.listCategories)
	e.POST("/categories", s.createCategory, user)
	e.GET("/sources", s.listSources)
	e.POST("/sources", s.createSource, user)

	e.GET("/user/preferences", s.getPreferences, user)
	e.PUT("/user/preferences", s.setPreferences, user)

	e.POST("/ingest", s.runIngest, user)
	e.POST("/recategorize", s.recategorize, user)
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.cfg.Addr)
		if err := s.Echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), GracefulShutdownTimeout)
	defer cancel()
	s.log.Info("http server shutting down")
	if err := s.Echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errc
}
