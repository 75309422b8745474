package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ScanRecorded("CHECK_IN", false)
	m.ScanRecorded("CHECK_IN", false)
	m.ScanRecorded("CHECK_IN", true)
	m.BadgeIssued()
	m.RegistrationCreated("PENDING")
	m.SetOccupancy(7, 42)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.scans.WithLabelValues("CHECK_IN", "false")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.scans.WithLabelValues("CHECK_IN", "true")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.badgesIssued))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.registrations.WithLabelValues("PENDING")))
	assert.Equal(t, float64(42), testutil.ToFloat64(m.occupancy.WithLabelValues("7")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ScanRecorded("VERIFY", false)
		m.BadgeIssued()
		m.RegistrationCreated("APPROVED")
		m.SetOccupancy(1, 1)
	})
}

func TestMiddlewareObservesRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/v1/events/:id", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events/12", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, 1, testutil.CollectAndCount(m.httpDuration, "memberhub_http_request_duration_seconds"))
}
