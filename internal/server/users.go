package server

import (
	"net/http"

	"github.com/deusflow/newsagg/internal/auth"
	"github.com/deusflow/newsagg/internal/model"
	"github.com/labstack/echo/v4"
)

type registerRequest struct {
	Email    string `json:"email" form:"email"`
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// loginRequest accepts JSON and the OAuth2 password form alike.
type loginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (s *Server) register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	u, err := s.deps.Auth.Register(c.Request().Context(), req.Email, req.Username, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, u)
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	token, _, err := s.deps.Auth.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tokenResponse{AccessToken: token, TokenType: auth.TokenType})
}

func (s *Server) getPreferences(c echo.Context) error {
	u, _ := auth.UserFrom(c)
	prefs, err := s.deps.Store.Preferences(c.Request().Context(), u.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, normalizePrefs(prefs))
}

func (s *Server) setPreferences(c echo.Context) error {
	u, _ := auth.UserFrom(c)
	var req model.Preferences
	if err := c.Bind(&req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := s.deps.Store.SetPreferences(ctx, u.ID, req); err != nil {
		return err
	}
	prefs, err := s.deps.Store.Preferences(ctx, u.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, normalizePrefs(prefs))
}

func normalizePrefs(p model.Preferences) model.Preferences {
	return model.Preferences{Categories: orEmpty(p.Categories), Sources: orEmpty(p.Sources)}
}
