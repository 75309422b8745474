package handler // handler holds the echo handlers of the HTTP API

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/memberhub/internal/content"
	"github.com/iliyamo/memberhub/internal/repository"
	"github.com/iliyamo/memberhub/internal/service"
)

// requestTimeout bounds the database work of one request.
const requestTimeout = 5 * time.Second

func requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// getUserID extracts the user_id set by JWTAuth.
func getUserID(c echo.Context) (uint64, error) {
	switch t := c.Get("user_id").(type) { // JWTAuth stores uint64; other types come from tests
	case uint64:
		return t, nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// actor returns the authenticated user id and role.
func actor(c echo.Context) (uint64, string, bool) {
	id, err := getUserID(c)
	role, _ := c.Get("role").(string) // empty when unauthenticated
	return id, role, err == nil && id != 0
}

func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// parseTime accepts RFC3339; an empty string yields the zero time.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	return t.UTC(), err
}

func queryLimit(c echo.Context, def, max int) int {
	n, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max // clamp instead of rejecting
	}
	return n
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

// writeError maps service and repository errors to status codes.
// Unknown errors are logged and reported as 500.
func writeError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, service.ErrBadgeNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrBadgeInvalid),
		errors.Is(err, service.ErrUnknownReferral),
		errors.Is(err, content.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrNotOwner),
		errors.Is(err, repository.ErrForbidden),
		errors.Is(err, service.ErrNotRegistered),
		errors.Is(err, service.ErrNotApproved):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrBadgeInactive), errors.Is(err, service.ErrEventMismatch):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrCapacityReached),
		errors.Is(err, service.ErrEventClosed),
		errors.Is(err, service.ErrScanSessionClosed),
		errors.Is(err, repository.ErrAlreadyRegistered),
		errors.Is(err, repository.ErrDuplicate),
		errors.Is(err, repository.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, service.ErrLockTimeout), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", c.Request().Method, "route", c.Path(), "error", err)
		msg := "internal error"
		if status == http.StatusServiceUnavailable {
			msg = "temporarily unavailable, retry"
		}
		return c.JSON(status, echo.Map{"error": msg})
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}
