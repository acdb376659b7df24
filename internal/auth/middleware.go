package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/deusflow/newsagg/internal/model"
	"github.com/labstack/echo/v4"
)

const userKey = "user"

// RequireUser rejects requests without a valid bearer token and stores the
// authenticated user on the echo context.
func RequireUser(s *Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return unauthorized(c, ErrUnauthorized)
			}

			u, err := s.Authenticate(c.Request().Context(), token)
			switch {
			case errors.Is(err, ErrInactive):
				return echo.NewHTTPError(http.StatusBadRequest, ErrInactive.Error())
			case errors.Is(err, ErrUnauthorized):
				return unauthorized(c, err)
			case err != nil:
				return err
			}

			c.Set(userKey, u)
			return next(c)
		}
	}
}

// UserFrom returns the user stored by RequireUser.
func UserFrom(c echo.Context) (model.User, bool) {
	u, ok := c.Get(userKey).(model.User)
	return u, ok
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, TokenType) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(c echo.Context, err error) error {
	c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
	return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
}
