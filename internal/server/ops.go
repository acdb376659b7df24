package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/deusflow/newsagg/internal/scheduler"
	"github.com/labstack/echo/v4"
)

func (s *Server) root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": "News aggregator API is running"})
}

// health reports ok while the last ingestion run fetched at least one
// source. Storage failures turn it into 503.
func (s *Server) health(c echo.Context) error {
	stats, err := s.deps.Store.Stats(c.Request().Context())
	if err != nil {
		s.log.Error("health check: storage unavailable", "error", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
	}

	status := "ok"
	if !s.deps.Metrics.Healthy() {
		status = "degraded"
	}
	body := map[string]any{
		"status":  status,
		"storage": stats,
	}
	if s.deps.Ingestor != nil {
		body["ingestion"] = s.deps.Ingestor.Snapshot()
	}
	return c.JSON(http.StatusOK, body)
}

func (s *Server) metrics(c echo.Context) error {
	out := s.deps.Metrics.GetStats()
	if stats, err := s.deps.Store.Stats(c.Request().Context()); err == nil {
		out["storage"] = stats
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) runIngest(c echo.Context) error {
	if s.deps.Ingestor == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "ingestion is not configured")
	}
	report, err := s.deps.Ingestor.RunNow(context.WithoutCancel(c.Request().Context()))
	if err != nil {
		if !errors.Is(err, scheduler.ErrAlreadyRunning) {
			s.deps.Metrics.SetError(err.Error())
		}
		return err
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) recategorize(c echo.Context) error {
	n, err := s.deps.Categorizer.UpdateCategories(c.Request().Context(), s.deps.Store)
	if n > 0 {
		s.deps.Metrics.AddRecategorized(n)
	}
	if err != nil {
		return err
	}
	s.log.Info("articles recategorized", "updated", n)
	return c.JSON(http.StatusOK, map[string]int{"updated": n})
}
