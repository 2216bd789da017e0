package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
	outcomeRejected  = "rejected"
)

type metrics struct {
	registry          *prometheus.Registry
	requestTotal      *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	rateLimitRejected *prometheus.CounterVec
	queueEnqueued     *prometheus.CounterVec
	conversions       *prometheus.CounterVec
	sourceBytes       prometheus.Counter
	artifactBytes     prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webpress_api_requests_total",
			Help: "Total HTTP requests handled by the API.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "webpress_api_request_duration_seconds",
			Help:    "API request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		rateLimitRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webpress_api_rate_limit_rejections_total",
			Help: "Total API requests rejected by rate limiting.",
		}, []string{"route"}),
		queueEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webpress_queue_tasks_enqueued_total",
			Help: "Total follow-up tasks enqueued by the API.",
		}, []string{"queue", "type"}),
		conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webpress_conversions_total",
			Help: "Total upload conversions by outcome.",
		}, []string{"outcome"}),
		sourceBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webpress_conversion_source_bytes_total",
			Help: "Total bytes of successfully converted uploads.",
		}),
		artifactBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webpress_conversion_artifact_bytes_total",
			Help: "Total bytes of produced artifacts.",
		}),
	}
	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.rateLimitRejected,
		m.queueEnqueued,
		m.conversions,
		m.sourceBytes,
		m.artifactBytes,
	)
	return m
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeLabel(r.URL.Path)
		status := strconv.Itoa(recorder.status)

		m.requestTotal.WithLabelValues(r.Method, route, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

// routeLabel collapses paths to their route pattern to bound label
// cardinality.
func routeLabel(path string) string {
	switch {
	case path == "/":
		return "/"
	case path == "/upload":
		return "/upload"
	case strings.HasPrefix(path, "/download/"):
		return "/download/{filename}"
	case strings.HasPrefix(path, "/uploads/"):
		return "/uploads/{filename}"
	case strings.HasPrefix(path, "/v1/conversions/"):
		return "/v1/conversions/{filename}"
	case strings.HasPrefix(path, "/app/"):
		return "/app/"
	case path == "/healthz":
		return "/healthz"
	case path == "/metrics":
		return "/metrics"
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
