package server

import (
	"net/http"
	"strings"

	"github.com/deusflow/newsagg/internal/apperr"
	"github.com/deusflow/newsagg/internal/model"
	"github.com/labstack/echo/v4"
)

type categoryRequest struct {
	Name string `json:"name"`
}

func (s *Server) listCategories(c echo.Context) error {
	cats, err := s.deps.Store.ListCategories(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, orEmpty(cats))
}

func (s *Server) createCategory(c echo.Context) error {
	var req categoryRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return apperr.NewValidation("name is required")
	}
	cat, err := s.deps.Store.CreateCategory(c.Request().Context(), name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, cat)
}

func (s *Server) listSources(c echo.Context) error {
	sources, err := s.deps.Store.ListSources(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, orEmpty(sources))
}

// createSource stores the source and, when it names something fetchable,
// adds it to the ingestion source list.
func (s *Server) createSource(c echo.Context) error {
	var req model.FeedSource
	if err := c.Bind(&req); err != nil {
		return err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.URL = strings.TrimSpace(req.URL)
	req.FeedURL = strings.TrimSpace(req.FeedURL)
	if req.Name == "" {
		return apperr.NewValidation("name is required")
	}
	if kind := req.ResolvedKind(); kind != model.KindRSS && kind != model.KindHTML {
		return apperr.NewValidation("kind must be rss or html")
	}

	src, err := s.deps.Store.CreateSource(c.Request().Context(), req.Source())
	if err != nil {
		return err
	}

	fetchable := req.FeedURL != "" || (req.ResolvedKind() == model.KindHTML && req.URL != "")
	if fetchable && s.deps.Sources != nil && s.deps.Sources.AddSource(req) {
		s.log.Info("source registered for ingestion", "source", req.Name, "kind", req.ResolvedKind())
	}
	return c.JSON(http.StatusCreated, src)
}
