// Package metrics exposes Prometheus collectors for the workflow, the
// reconciler and the HTTP API. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"labtool-ledger/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "labtool"

type Metrics struct {
	registry *prometheus.Registry

	WorkflowOperations     *prometheus.CounterVec
	WorkflowDuration       *prometheus.HistogramVec
	ReconcileNotifications *prometheus.CounterVec
	ReconcileErrors        *prometheus.CounterVec
	ReconcileRuns          *prometheus.CounterVec
	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		WorkflowOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_operations_total",
			Help:      "Workflow operations by outcome kind.",
		}, []string{"operation", "outcome"}),
		WorkflowDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_operation_duration_seconds",
			Help:      "Workflow operation latency including the retry.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		ReconcileNotifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_notifications_total",
			Help:      "Notifications emitted by reconciliation passes.",
		}, []string{"pass"}),
		ReconcileErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_errors_total",
			Help:      "Errors counted by reconciliation passes.",
		}, []string{"pass"}),
		ReconcileRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_runs_total",
			Help:      "Reconciliation runs by trigger result.",
		}, []string{"action", "result"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.WorkflowOperations,
		m.WorkflowDuration,
		m.ReconcileNotifications,
		m.ReconcileErrors,
		m.ReconcileRuns,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveOperation(operation string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(domain.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	m.WorkflowOperations.WithLabelValues(operation, outcome).Inc()
	m.WorkflowDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) ObservePass(pass string, notifications, errors int) {
	if m == nil {
		return
	}
	m.ReconcileNotifications.WithLabelValues(pass).Add(float64(notifications))
	m.ReconcileErrors.WithLabelValues(pass).Add(float64(errors))
}

func (m *Metrics) ObserveRun(action, result string) {
	if m == nil {
		return
	}
	m.ReconcileRuns.WithLabelValues(action, result).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
