// Package metrics exposes Prometheus metrics for the HTTP server and the
// ingest path. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cinelines"

// Ingest results other than a rejection reason.
const (
	IngestAccepted = "accepted"
	IngestError    = "error"
)

// Metrics holds the service collectors and the registry they belong to.
type Metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec   // by method, route, status
	duration *prometheus.HistogramVec // by method, route
	ingest   *prometheus.CounterVec   // by result
}

// New creates a registry with the service collectors plus the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0},
		}, []string{"method", "route"}),
		ingest: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "conversations_total",
			Help:      "Conversation ingest attempts by result",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.ingest,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveRequest records one completed HTTP request. route should be the
// matched route pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordIngest counts one ingest attempt.
func (m *Metrics) RecordIngest(result string) {
	if m == nil {
		return
	}
	m.ingest.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
