// Package metrics exposes Prometheus collectors for the HTTP layer, calendar
// layout decisions and feed synchronisation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carecal/carecal/internal/calendar"
)

const namespace = "carecal"

type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	layoutDecisions   *prometheus.CounterVec
	feedSyncs         *prometheus.CounterVec
	feedOccurrences   prometheus.Counter
	changes           *prometheus.CounterVec
}

// New builds the collectors on a private registry together with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total count of HTTP requests processed by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		layoutDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layout_decisions_total",
			Help:      "Calendar views rendered, by view mode, chosen layout and deciding reason.",
		}, []string{"view", "layout", "reason"}),
		feedSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_syncs_total",
			Help:      "Feed sync attempts by outcome.",
		}, []string{"outcome"}),
		feedOccurrences: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_occurrences_total",
			Help:      "Occurrences decoded from calendar feeds.",
		}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_total",
			Help:      "Audited writes by resource, action and status class.",
		}, []string{"resource", "action", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpDuration,
		m.layoutDecisions,
		m.feedSyncs,
		m.feedOccurrences,
		m.changes,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Middleware records request count and latency by route template, so ids in
// the path do not explode the label set.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else if err != nil {
				status = http.StatusInternalServerError
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method

			m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// ObserveDecision counts one rendered calendar view.
func (m *Metrics) ObserveDecision(mode calendar.ViewMode, d calendar.Decision) {
	layout := "grid"
	if d.UseTimeAxis {
		layout = "time_axis"
	}
	m.layoutDecisions.WithLabelValues(string(mode), layout, string(d.Reason)).Inc()
}

// ObserveFeedSync counts one feed sync attempt.
func (m *Metrics) ObserveFeedSync(occurrences int, err error) {
	if err != nil {
		m.feedSyncs.WithLabelValues("error").Inc()
		return
	}
	m.feedSyncs.WithLabelValues("ok").Inc()
	m.feedOccurrences.Add(float64(occurrences))
}

// ObserveChange counts one audited write. Status is folded to its class
// ("2xx", "4xx").
func (m *Metrics) ObserveChange(resource, action string, status int) {
	m.changes.WithLabelValues(resource, action, strconv.Itoa(status/100)+"xx").Inc()
}

// WatchPool exports connection counts of pool as gauges read at scrape time.
func (m *Metrics) WatchPool(pool *pgxpool.Pool) {
	gauge := func(name, help string, read func(*pgxpool.Stat) int32) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read(pool.Stat())) })
	}
	m.registry.MustRegister(
		gauge("total_conns", "Connections currently open.", (*pgxpool.Stat).TotalConns),
		gauge("idle_conns", "Idle connections.", (*pgxpool.Stat).IdleConns),
		gauge("acquired_conns", "Connections checked out.", (*pgxpool.Stat).AcquiredConns),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
