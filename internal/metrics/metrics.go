// Package metrics provides Prometheus metrics infrastructure for the
// application. It exports metrics via an HTTP endpoint in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all application metrics and provides helper methods
// for recording various metric types.
type Registry struct {
	registry prometheus.Registerer

	// Counter metrics
	transfersTotal      prometheus.CounterVec
	rowsInsertedTotal   prometheus.CounterVec
	rowsDuplicatedTotal prometheus.CounterVec
	transferErrorsTotal prometheus.CounterVec
	reconnectsTotal     prometheus.CounterVec

	// Histogram metrics
	transferDuration prometheus.HistogramVec
	queryDuration    prometheus.HistogramVec
	insertDuration   prometheus.HistogramVec

	// Gauge metrics
	runningTasks    prometheus.GaugeVec
	retryQueueDepth prometheus.GaugeVec
	poolConnections prometheus.GaugeVec
}

// NewRegistry creates and registers all application metrics using the global
// registry. It panics if any metric fails to register.
func NewRegistry() *Registry {
	return NewRegistryWith(prometheus.DefaultRegisterer)
}

// NewRegistryWith creates and registers all application metrics with a custom
// registry. This is mainly used for testing. It panics if any metric fails to
// register.
func NewRegistryWith(registerer prometheus.Registerer) *Registry {
	m := &Registry{
		registry: registerer,
	}

	m.transfersTotal = *prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transfers_total",
			Help: "Completed transfer runs by outcome",
		},
		[]string{"task", "outcome"},
	)
	m.registry.MustRegister(&m.transfersTotal)

	m.rowsInsertedTotal = *prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rows_inserted_total",
			Help: "Rows inserted into the destination by task",
		},
		[]string{"task"},
	)
	m.registry.MustRegister(&m.rowsInsertedTotal)

	m.rowsDuplicatedTotal = *prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rows_duplicated_total",
			Help: "Rows skipped as duplicates by task",
		},
		[]string{"task"},
	)
	m.registry.MustRegister(&m.rowsDuplicatedTotal)

	m.transferErrorsTotal = *prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transfer_errors_total",
			Help: "Transfer failures by error kind",
		},
		[]string{"kind"},
	)
	m.registry.MustRegister(&m.transferErrorsTotal)

	m.reconnectsTotal = *prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconnects_total",
			Help: "Mid-run reconnections by server",
		},
		[]string{"server"},
	)
	m.registry.MustRegister(&m.reconnectsTotal)

	m.transferDuration = *prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transfer_duration_seconds",
			Help:    "End-to-end transfer run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"task"},
	)
	m.registry.MustRegister(&m.transferDuration)

	m.queryDuration = *prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sql_query_duration_seconds",
			Help:    "Source/target query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"server", "operation"},
	)
	m.registry.MustRegister(&m.queryDuration)

	m.insertDuration = *prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sql_insert_duration_seconds",
			Help:    "Single insert duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"server"},
	)
	m.registry.MustRegister(&m.insertDuration)

	m.runningTasks = *prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "running_tasks",
			Help: "Transfer tasks currently in flight",
		},
		[]string{"kind"},
	)
	m.registry.MustRegister(&m.runningTasks)

	m.retryQueueDepth = *prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "retry_queue_depth",
			Help: "Tasks parked in the retry queue",
		},
		[]string{"queue"},
	)
	m.registry.MustRegister(&m.retryQueueDepth)

	m.poolConnections = *prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pool_connections_open",
			Help: "Open connections per server pool",
		},
		[]string{"server"},
	)
	m.registry.MustRegister(&m.poolConnections)

	return m
}

// RecordTransfer records one completed run.
func (m *Registry) RecordTransfer(task, outcome string, duration time.Duration, inserted, duplicates int) {
	m.transfersTotal.WithLabelValues(task, outcome).Inc()
	m.transferDuration.WithLabelValues(task).Observe(duration.Seconds())
	m.rowsInsertedTotal.WithLabelValues(task).Add(float64(inserted))
	m.rowsDuplicatedTotal.WithLabelValues(task).Add(float64(duplicates))
}

// RecordError records a classified transfer failure.
func (m *Registry) RecordError(kind string) {
	m.transferErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordReconnect records a mid-run reconnection against a server.
func (m *Registry) RecordReconnect(server string) {
	m.reconnectsTotal.WithLabelValues(server).Inc()
}

// ObserveQuery records the duration of a query against a server.
func (m *Registry) ObserveQuery(server, operation string, duration time.Duration) {
	m.queryDuration.WithLabelValues(server, operation).Observe(duration.Seconds())
}

// ObserveInsert records the duration of a single insert.
func (m *Registry) ObserveInsert(server string, duration time.Duration) {
	m.insertDuration.WithLabelValues(server).Observe(duration.Seconds())
}

// SetRunningTasks sets the in-flight task gauge.
func (m *Registry) SetRunningTasks(kind string, n int) {
	m.runningTasks.WithLabelValues(kind).Set(float64(n))
}

// SetRetryQueueDepth sets the retry queue depth gauge.
func (m *Registry) SetRetryQueueDepth(n int) {
	m.retryQueueDepth.WithLabelValues("connection").Set(float64(n))
}

// SetPoolConnections sets the open-connection gauge for a server pool.
func (m *Registry) SetPoolConnections(server string, n int) {
	m.poolConnections.WithLabelValues(server).Set(float64(n))
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
