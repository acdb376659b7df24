package apperr

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/deusflow/newsagg/internal/auth"
	"github.com/deusflow/newsagg/internal/scheduler"
	"github.com/deusflow/newsagg/internal/storage"
	"github.com/labstack/echo/v4"
)

// Status returns the HTTP status for a domain error, or 0 when err is not one.
func Status(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrDuplicateURL),
		errors.Is(err, storage.ErrDuplicateName),
		errors.Is(err, scheduler.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, storage.ErrDuplicateUser),
		errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, auth.ErrInactive):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized
	}
	return 0
}

func GlobalErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var ve *ValidationError
		if errors.As(err, &ve) {
			_ = c.JSON(http.StatusBadRequest, map[string]string{"error": ve.Message, "title": "validation error"})
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg := fmt.Sprintf("%v", he.Message)
			_ = c.JSON(he.Code, map[string]string{"error": msg})
			return
		}

		if code := Status(err); code != 0 {
			_ = c.JSON(code, map[string]string{"error": err.Error()})
			return
		}

		log.Error("Unhandled error", "error", err, "uri", c.Request().RequestURI)
		_ = c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
