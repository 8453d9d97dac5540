package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Monitor loop metrics
	MonitorTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careops_monitor_ticks_total",
			Help: "Total number of monitor evaluation passes",
		},
		[]string{"status"}, // status: completed, skipped
	)

	MonitorTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "careops_monitor_tick_duration_seconds",
			Help:    "Duration of a monitor evaluation pass in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	RuleEvaluationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careops_rule_evaluation_errors_total",
			Help: "Total number of rule evaluations aborted by an error",
		},
		[]string{"rule_id"},
	)

	// Metric registry
	MetricFetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careops_metric_fetch_failures_total",
			Help: "Total number of failed or timed out metric fetches",
		},
		[]string{"metric_id"},
	)

	MetricFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "careops_metric_fetch_duration_seconds",
			Help:    "Metric fetch latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"metric_id"},
	)

	// Notifications
	NotificationsTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careops_notifications_triggered_total",
			Help: "Total number of notifications created",
		},
		[]string{"severity", "type"},
	)

	NotificationsResolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "careops_notifications_resolved_total",
			Help: "Total number of notifications resolved",
		},
	)

	UnresolvedNotifications = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "careops_notifications_unresolved",
			Help: "Current number of unresolved notifications",
		},
	)

	// Actions
	ActionsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careops_actions_executed_total",
			Help: "Total number of rule actions executed",
		},
		[]string{"type", "status"}, // status: success, failed
	)

	// Subscribers
	ActiveListeners = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "careops_listeners_active",
			Help: "Current number of registered notification listeners",
		},
	)
)
