package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Rate limit decision outcomes
const (
	OutcomeAllowed   = "allowed"
	OutcomeBlocked   = "blocked"
	OutcomeLockout   = "lockout"
	OutcomeError     = "error"
	OutcomeUntracked = "untracked"
)

// Metrics holds all Prometheus metrics for the API server
type Metrics struct {
	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDurationSec *prometheus.HistogramVec
	RateLimitDecisions     *prometheus.CounterVec
	AuthEventsTotal        *prometheus.CounterVec
	TrackedClientKeys      prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a Metrics instance backed by its own registry
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "buildplan_http_requests_total",
			Help: "Total number of HTTP requests by method and status code",
		}, []string{"method", "status"}),
		HTTPRequestDurationSec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "buildplan_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method"}),
		RateLimitDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "buildplan_ratelimit_decisions_total",
			Help: "Authentication rate limit decisions by outcome",
		}, []string{"outcome"}),
		AuthEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "buildplan_auth_events_total",
			Help: "Authentication audit events by type",
		}, []string{"event"}),
		TrackedClientKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "buildplan_ratelimit_tracked_keys",
			Help: "Number of client keys currently tracked by the in-memory limiter",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDurationSec,
		m.RateLimitDecisions,
		m.AuthEventsTotal,
		m.TrackedClientKeys,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one served HTTP request
func (m *Metrics) ObserveRequest(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDurationSec.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordDecision counts a rate limit decision
func (m *Metrics) RecordDecision(outcome string) {
	if m == nil {
		return
	}
	m.RateLimitDecisions.WithLabelValues(outcome).Inc()
}

// RecordAuthEvent counts an audit event
func (m *Metrics) RecordAuthEvent(event string) {
	if m == nil {
		return
	}
	m.AuthEventsTotal.WithLabelValues(event).Inc()
}

// SetTrackedKeys updates the tracked client key gauge
func (m *Metrics) SetTrackedKeys(n int) {
	if m == nil {
		return
	}
	m.TrackedClientKeys.Set(float64(n))
}
