package agenttest

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics holds the per-server prometheus registry. Each Server gets its
// own registry so multiple instances can coexist in one test binary.
type metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentapi_requests_total",
		Help: "HTTP requests handled, by method, path, and status.",
	}, []string{"method", "path", "status"})
	registry.MustRegister(requests)

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agentapi_request_duration_seconds",
		Help:    "HTTP request latency, by method and path.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
	registry.MustRegister(duration)

	return &metrics{registry: registry, requests: requests, duration: duration}
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// middleware records a counter and latency observation per request.
func (m *metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := prometheus.NewTimer(m.duration.WithLabelValues(r.Method, r.URL.Path))
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		timer.ObserveDuration()
		m.requests.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(sw.status)).Inc()
	})
}
