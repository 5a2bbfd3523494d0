package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for one process.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec

	ticketsCreated    prometheus.Counter
	ticketsAssigned   prometheus.Counter
	ticketsResolved   prometheus.Counter
	duplicateMentions prometheus.Counter
	upstreamFailures  *prometheus.CounterVec
}

// NewMetrics registers collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bridge_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "path"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_http_errors_total",
			Help: "HTTP requests that ended in an error response",
		}, []string{"method", "path", "code"}),
		ticketsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_tickets_created_total",
			Help: "Tickets created from Slack mentions",
		}),
		ticketsAssigned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_tickets_assigned_total",
			Help: "Assignment notices relayed to Slack",
		}),
		ticketsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_tickets_resolved_total",
			Help: "Resolution notices relayed to Slack",
		}),
		duplicateMentions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_ticket_duplicate_mentions_total",
			Help: "Mentions on threads that already have an open ticket",
		}),
		upstreamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_upstream_failures_total",
			Help: "Failed calls to Slack or iTop",
		}, []string{"op"}),
	}
	reg.MustRegister(
		m.requests, m.requestDuration, m.errors,
		m.ticketsCreated, m.ticketsAssigned, m.ticketsResolved,
		m.duplicateMentions, m.upstreamFailures,
		collectors.NewGoCollector(),
	)
	return m
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(method, path, code).Inc()
}

func (m *Metrics) TicketCreated() {
	if m != nil {
		m.ticketsCreated.Inc()
	}
}

func (m *Metrics) TicketAssigned() {
	if m != nil {
		m.ticketsAssigned.Inc()
	}
}

func (m *Metrics) TicketResolved() {
	if m != nil {
		m.ticketsResolved.Inc()
	}
}

func (m *Metrics) DuplicateMention() {
	if m != nil {
		m.duplicateMentions.Inc()
	}
}

// UpstreamFailure counts a failed outbound call by operation name.
func (m *Metrics) UpstreamFailure(op string) {
	if m != nil {
		m.upstreamFailures.WithLabelValues(op).Inc()
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
