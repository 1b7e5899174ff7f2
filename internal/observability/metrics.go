package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "workflow"

// Metrics owns the service's Prometheus collectors. A nil *Metrics is valid and
// records nothing, which keeps tests free of registry setup.
type Metrics struct {
	registry *prometheus.Registry

	requests             *prometheus.CounterVec
	requestDuration      *prometheus.HistogramVec
	errors               *prometheus.CounterVec
	transitions          *prometheus.CounterVec
	rejected             *prometheus.CounterVec
	notificationFailures *prometheus.CounterVec
	sweepRuns            *prometheus.CounterVec
	sweepTierChanges     *prometheus.CounterVec
	sweepConflicts       prometheus.Counter
	sweepDuration        prometheus.Histogram
}

// NewMetrics registers collectors on a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "errors_total",
			Help: "Error responses by route, method and error code.",
		}, []string{"route", "method", "code"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "transitions_total",
			Help: "Committed stage transitions.",
		}, []string{"kind", "from", "to"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "operations_rejected_total",
			Help: "Engine operations rejected before commit, by operation and error code.",
		}, []string{"operation", "code"}),
		notificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notification_failures_total",
			Help: "Notifications that could not be delivered after commit.",
		}, []string{"event_type"}),
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sweep", Name: "runs_total",
			Help: "Aging sweep runs by result.",
		}, []string{"result"}),
		sweepTierChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sweep", Name: "tier_changes_total",
			Help: "Aging tier corrections written by the sweep.",
		}, []string{"to"}),
		sweepConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sweep", Name: "conflicts_total",
			Help: "Sweep writes skipped because the item changed concurrently.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "sweep", Name: "duration_seconds",
			Help:    "Aging sweep duration.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.errors,
		m.transitions,
		m.rejected,
		m.notificationFailures,
		m.sweepRuns,
		m.sweepTierChanges,
		m.sweepConflicts,
		m.sweepDuration,
	)
	return m
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

// RecordTransition counts a committed stage change.
func (m *Metrics) RecordTransition(kind, from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind, from, to).Inc()
}

// RecordRejected counts an engine operation that failed with a domain error code.
func (m *Metrics) RecordRejected(operation, code string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(operation, code).Inc()
}

// RecordNotificationFailure counts a notification that was dropped after commit.
func (m *Metrics) RecordNotificationFailure(eventType string) {
	if m == nil {
		return
	}
	m.notificationFailures.WithLabelValues(eventType).Inc()
}

// RecordSweep records one sweep run.
func (m *Metrics) RecordSweep(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(result).Inc()
	m.sweepDuration.Observe(duration.Seconds())
}

// RecordTierChange counts a tier correction written by the sweep.
func (m *Metrics) RecordTierChange(to string) {
	if m == nil {
		return
	}
	m.sweepTierChanges.WithLabelValues(to).Inc()
}

// RecordSweepConflict counts a sweep write lost to a concurrent update.
func (m *Metrics) RecordSweepConflict() {
	if m == nil {
		return
	}
	m.sweepConflicts.Inc()
}
