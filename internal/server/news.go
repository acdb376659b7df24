package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/deusflow/newsagg/internal/apperr"
	"github.com/deusflow/newsagg/internal/auth"
	"github.com/deusflow/newsagg/internal/model"
	"github.com/deusflow/newsagg/internal/rank"
	"github.com/deusflow/newsagg/internal/storage"
	"github.com/labstack/echo/v4"
)

type articleRequest struct {
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	URL         string     `json:"url"`
	Source      string     `json:"source"`
	Category    string     `json:"category"`
	PublishedAt *time.Time `json:"published_at"`
}

type articleUpdate struct {
	Title    *string `json:"title"`
	Body     *string `json:"body"`
	Category *string `json:"category"`
	Active   *bool   `json:"active"`
}

func (s *Server) listNews(c echo.Context) error {
	opts, err := listOptions(c)
	if err != nil {
		return err
	}
	articles, err := s.deps.Store.List(c.Request().Context(), opts)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, orEmpty(articles))
}

func listOptions(c echo.Context) (storage.ListOptions, error) {
	opts := storage.ListOptions{
		Category:   c.QueryParam("category"),
		Source:     c.QueryParam("source"),
		ActiveOnly: true,
	}
	var err error
	if opts.Offset, err = intParam(c, "skip", 0); err != nil {
		return opts, err
	}
	if opts.Limit, err = intParam(c, "limit", storage.DefaultListLimit); err != nil {
		return opts, err
	}
	if opts.Limit > storage.MaxListLimit {
		return opts, apperr.NewValidation("limit must not exceed " + strconv.Itoa(storage.MaxListLimit))
	}
	return opts, nil
}

func intParam(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.NewValidation(name + " must be a non-negative integer")
	}
	return n, nil
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.NewValidationWrap("invalid id", err)
	}
	return id, nil
}

func (s *Server) getNews(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	a, err := s.deps.Store.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

// personalizedNews ranks the latest active articles by the caller's
// preferences.
func (s *Server) personalizedNews(c echo.Context) error {
	u, _ := auth.UserFrom(c)
	ctx := c.Request().Context()

	opts, err := listOptions(c)
	if err != nil {
		return err
	}
	prefs, err := s.deps.Store.Preferences(ctx, u.ID)
	if err != nil {
		return err
	}
	articles, err := s.deps.Store.List(ctx, opts)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rank.Rank(articles, prefs))
}

func (s *Server) createNews(c echo.Context) error {
	var req articleRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	req.Title = strings.TrimSpace(req.Title)
	req.URL = strings.TrimSpace(req.URL)
	req.Source = strings.TrimSpace(req.Source)
	switch {
	case req.Title == "":
		return apperr.NewValidation("title is required")
	case req.URL == "":
		return apperr.NewValidation("url is required")
	case req.Source == "":
		return apperr.NewValidation("source is required")
	}

	ctx := c.Request().Context()
	label := strings.TrimSpace(req.Category)
	if label == "" {
		label = s.deps.Categorizer.CategorizeEntry(req.Title, req.Body)
	}
	category, err := s.deps.Store.GetOrCreateCategory(ctx, label)
	if err != nil {
		return err
	}
	source, err := s.deps.Store.GetOrCreateSource(ctx, model.Source{Name: req.Source})
	if err != nil {
		return err
	}

	published := time.Now().UTC()
	if req.PublishedAt != nil && !req.PublishedAt.IsZero() {
		published = *req.PublishedAt
	}
	a, err := s.deps.Store.Insert(ctx, model.Article{
		Title:       req.Title,
		Body:        req.Body,
		URL:         req.URL,
		SourceID:    source.ID,
		CategoryID:  category.ID,
		PublishedAt: published,
		Active:      true,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (s *Server) updateNews(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req articleUpdate
	if err := c.Bind(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	a, err := s.deps.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return apperr.NewValidation("title must not be empty")
		}
		a.Title = strings.TrimSpace(*req.Title)
	}
	if req.Body != nil {
		a.Body = *req.Body
	}
	if req.Active != nil {
		a.Active = *req.Active
	}
	if req.Category != nil {
		label := strings.TrimSpace(*req.Category)
		if label == "" {
			a.CategoryID, a.Category = 0, ""
		} else {
			category, err := s.deps.Store.GetOrCreateCategory(ctx, label)
			if err != nil {
				return err
			}
			a.CategoryID, a.Category = category.ID, category.Name
		}
	}

	if err := s.deps.Store.Update(ctx, a); err != nil {
		return err
	}
	updated, err := s.deps.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

func (s *Server) deleteNews(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := s.deps.Store.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
