// Package metrics holds the Prometheus metrics of the deviation engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the custom prometheus registry served on /metrics.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

// ReconcileTotal counts reconciler outcomes by result (created, updated, closed, unchanged, noop).
var ReconcileTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "deviation",
	Name:      "reconcile_total",
	Help:      "Reconciler invocations by outcome",
}, []string{"result"})

var EventsPromotedTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "deviation",
	Name:      "events_promoted_total",
	Help:      "Deviation events promoted to escalation level 2",
})

// EvaluationsTotal counts evaluation passes by trigger (worker, read) and status (ok, error).
var EvaluationsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "deviation",
	Name:      "evaluations_total",
	Help:      "Escalation evaluation passes",
}, []string{"trigger", "status"})

var EvaluationDurationSeconds = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: "deviation",
	Name:      "evaluation_duration_seconds",
	Help:      "Time taken by one escalation evaluation pass",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
})

var TransitionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "deviation",
	Name:      "transitions_total",
	Help:      "Manual lifecycle transitions by action (acknowledge, close) and outcome (applied, noop)",
}, []string{"action", "outcome"})

var CsvImportRowsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "csv_import",
	Name:      "rows_total",
	Help:      "CSV import rows by outcome (updated, skipped, error)",
}, []string{"outcome"})

var WorkerLastSuccessTimestamp = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "deviation",
	Name:      "worker_last_success_timestamp_seconds",
	Help:      "Unix time of the last successful worker pass",
})
