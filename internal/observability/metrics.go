package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	upstreamRequestsTotal *prometheus.CounterVec
	upstreamDuration      *prometheus.HistogramVec
	resultsTotal          *prometheus.CounterVec
	mockRequestsTotal     *prometheus.CounterVec
	mockRequestDuration   *prometheus.HistogramVec
}

// Upstream calls may legitimately run for minutes, so the default buckets
// are extended up to the request timeout.
var captionBuckets = []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		upstreamRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audiocaption_upstream_requests_total",
				Help: "Total caption requests sent to the captioning service.",
			},
			[]string{"endpoint", "status"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "audiocaption_upstream_request_duration_seconds",
				Help:    "Captioning service request duration in seconds.",
				Buckets: captionBuckets,
			},
			[]string{"endpoint", "status"},
		),
		resultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audiocaption_results_total",
				Help: "Caption runs by result kind.",
			},
			[]string{"kind"},
		),
		mockRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audiocaption_mock_http_requests_total",
				Help: "Total number of HTTP requests handled by the mock captioner.",
			},
			[]string{"route", "method", "status"},
		),
		mockRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "audiocaption_mock_http_request_duration_seconds",
				Help:    "Mock captioner request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.upstreamRequestsTotal,
		m.upstreamDuration,
		m.resultsTotal,
		m.mockRequestsTotal,
		m.mockRequestDuration,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile dumps the registry in the text exposition format, suitable
// for node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) ObserveHTTP(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "UNKNOWN"
	}
	statusLabel := strconv.Itoa(status)
	m.mockRequestsTotal.WithLabelValues(route, method, statusLabel).Inc()
	m.mockRequestDuration.WithLabelValues(route, method, statusLabel).Observe(duration.Seconds())
}

func (m *Metrics) ObserveUpstream(endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	statusLabel := strconv.Itoa(status)
	m.upstreamRequestsTotal.WithLabelValues(endpoint, statusLabel).Inc()
	m.upstreamDuration.WithLabelValues(endpoint, statusLabel).Observe(duration.Seconds())
}

// ObserveResult counts a finished run by its result label.
func (m *Metrics) ObserveResult(kind string) {
	if m == nil {
		return
	}
	m.resultsTotal.WithLabelValues(kind).Inc()
}
