// Package metrics holds the Prometheus collectors of the service.  A nil
// *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector exported on /metrics.
type Metrics struct {
	scans         *prometheus.CounterVec
	badgesIssued  prometheus.Counter
	registrations *prometheus.CounterVec
	occupancy     *prometheus.GaugeVec
	httpDuration  *prometheus.HistogramVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		scans: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "memberhub_scans_total",
			Help: "Recorded badge scans by type and duplicate flag",
		}, []string{"type", "duplicate"}),
		badgesIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "memberhub_badges_issued_total",
			Help: "Badges issued",
		}),
		registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "memberhub_registrations_total",
			Help: "Registrations created by initial status",
		}, []string{"status"}),
		occupancy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "memberhub_event_occupancy",
			Help: "Persons currently checked in per event, as of the last snapshot",
		}, []string{"event_id"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "memberhub_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// ScanRecorded counts one stored scan.
func (m *Metrics) ScanRecorded(scanType string, duplicate bool) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(scanType, strconv.FormatBool(duplicate)).Inc()
}

// BadgeIssued counts one new badge.
func (m *Metrics) BadgeIssued() {
	if m == nil {
		return
	}
	m.badgesIssued.Inc()
}

// RegistrationCreated counts one registration with its initial status.
func (m *Metrics) RegistrationCreated(status string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(status).Inc()
}

// SetOccupancy sets the occupancy gauge of an event.
func (m *Metrics) SetOccupancy(eventID uint64, n uint32) {
	if m == nil {
		return
	}
	m.occupancy.WithLabelValues(strconv.FormatUint(eventID, 10)).Set(float64(n))
}

// Middleware observes request latency labelled with the route pattern
// rather than the raw path, keeping label cardinality bounded.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.httpDuration.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}
