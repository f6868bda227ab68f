// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PassRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jogpipe_pass_runs_total",
			Help: "Total number of engine passes executed",
		},
		[]string{"kind", "outcome"},
	)
	PassDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jogpipe_pass_duration_seconds",
			Help:    "Duration of engine passes",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	StatusTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jogpipe_status_transitions_total",
			Help: "Total number of committed reminder status transitions",
		},
		[]string{"from", "to"},
	)
	IntervalFiringsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jogpipe_interval_firings_total",
			Help: "Total number of lead-time intervals fired",
		},
	)
	VersionConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jogpipe_version_conflicts_total",
			Help: "Total number of reminder writes skipped on a version conflict",
		},
		[]string{"kind"},
	)
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jogpipe_notifications_total",
			Help: "Total number of notification dispatch outcomes",
		},
		[]string{"type", "status"},
	)
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jogpipe_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jogpipe_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

var registerOnce sync.Once

// Register registers every collector with reg. Later calls are no-ops.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			PassRunsTotal,
			PassDuration,
			StatusTransitionsTotal,
			IntervalFiringsTotal,
			VersionConflictsTotal,
			NotificationsTotal,
			HTTPRequestsTotal,
			HTTPRequestDuration,
		)
	})
}
