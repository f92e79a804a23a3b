// Package metrics exposes task and dev server counters in the Prometheus
// text format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "assetforge"

// Task run outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics owns a private registry. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	taskRuns       *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	filesWritten   *prometheus.CounterVec
	reloadClients  prometheus.Gauge
	reloadMessages *prometheus.CounterVec
}

// New creates the collectors and registers them with Go runtime metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		taskRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_runs_total",
			Help:      "Task runs by category and outcome.",
		}, []string{"category", "outcome"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Task run duration by category.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"category"}),
		filesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_written_total",
			Help:      "Output files whose contents changed, by category.",
		}, []string{"category"}),
		reloadClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "livereload_clients",
			Help:      "Connected live reload clients.",
		}),
		reloadMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "livereload_messages_total",
			Help:      "Live reload messages broadcast, by type.",
		}, []string{"type"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.taskRuns,
		m.taskDuration,
		m.filesWritten,
		m.reloadClients,
		m.reloadMessages,
	)
	return m
}

// ObserveTask records one finished run.
func (m *Metrics) ObserveTask(category string, d time.Duration, changed int, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.taskRuns.WithLabelValues(category, outcome).Inc()
	m.taskDuration.WithLabelValues(category).Observe(d.Seconds())
	if changed > 0 {
		m.filesWritten.WithLabelValues(category).Add(float64(changed))
	}
}

// SetReloadClients records the number of connected browsers.
func (m *Metrics) SetReloadClients(n int) {
	if m == nil {
		return
	}
	m.reloadClients.Set(float64(n))
}

// ObserveReload counts one broadcast message.
func (m *Metrics) ObserveReload(kind string) {
	if m == nil {
		return
	}
	m.reloadMessages.WithLabelValues(kind).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
