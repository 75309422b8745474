package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/memberhub/internal/content"
	"github.com/iliyamo/memberhub/internal/repository"
	"github.com/iliyamo/memberhub/internal/service"
)

func TestWriteErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{repository.ErrNotFound, http.StatusNotFound},
		{service.ErrBadgeNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: bad scan type", service.ErrInvalidInput), http.StatusBadRequest},
		{service.ErrUnknownReferral, http.StatusBadRequest},
		{content.ErrInvalidRequest, http.StatusBadRequest},
		{service.ErrNotOwner, http.StatusForbidden},
		{service.ErrNotRegistered, http.StatusForbidden},
		{service.ErrNotApproved, http.StatusForbidden},
		{service.ErrBadgeInactive, http.StatusUnprocessableEntity},
		{service.ErrEventMismatch, http.StatusUnprocessableEntity},
		{service.ErrCapacityReached, http.StatusConflict},
		{service.ErrScanSessionClosed, http.StatusConflict},
		{repository.ErrAlreadyRegistered, http.StatusConflict},
		{fmt.Errorf("acquire scan lock: %w", service.ErrLockTimeout), http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	e := echo.New()
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		require.NoError(t, writeError(c, tc.err))
		assert.Equal(t, tc.want, rec.Code, tc.err.Error())
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	require.NoError(t, writeError(c, errors.New("dial tcp 10.0.0.3:3306: connection refused")))
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}

func TestGetUserID(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	_, err := getUserID(c)
	assert.Error(t, err)

	for _, v := range []any{uint64(9), int64(9), float64(9), "9"} {
		c.Set("user_id", v)
		id, err := getUserID(c)
		require.NoError(t, err)
		assert.Equal(t, uint64(9), id)
	}
}

func TestParseTime(t *testing.T) {
	z, err := parseTime("  ")
	require.NoError(t, err)
	assert.True(t, z.IsZero())

	ts, err := parseTime("2026-05-01T10:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, 8, ts.Hour())

	_, err = parseTime("yesterday")
	assert.Error(t, err)
}

func TestQueryLimit(t *testing.T) {
	e := echo.New()
	for q, want := range map[string]int{"": 50, "limit=0": 50, "limit=abc": 50, "limit=20": 20, "limit=999": 100} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?"+q, nil), httptest.NewRecorder())
		assert.Equal(t, want, queryLimit(c, 50, 100), q)
	}
}
