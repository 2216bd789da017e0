package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry          *prometheus.Registry
	tasksTotal        *prometheus.CounterVec
	taskDuration      *prometheus.HistogramVec
	activeTasks       prometheus.Gauge
	artifactsExpired  prometheus.Counter
	webhooksDelivered *prometheus.CounterVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webpress_worker_tasks_total",
			Help: "Total worker tasks by type and final status.",
		}, []string{"type", "status"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "webpress_worker_task_duration_seconds",
			Help:    "Processing duration for each worker task.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type", "status"}),
		activeTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "webpress_worker_active_tasks",
			Help: "Current number of tasks being processed by the worker.",
		}),
		artifactsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webpress_artifacts_expired_total",
			Help: "Total artifacts removed after their retention period.",
		}),
		webhooksDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webpress_webhooks_total",
			Help: "Total webhook deliveries by outcome.",
		}, []string{"outcome"}),
	}
	registry.MustRegister(
		m.tasksTotal,
		m.taskDuration,
		m.activeTasks,
		m.artifactsExpired,
		m.webhooksDelivered,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
