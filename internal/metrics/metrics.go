// Package metrics defines Prometheus metrics for the engine.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	MutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseforge_mutations_total",
			Help: "Total node mutations by kind and action",
		},
		[]string{"kind", "action"},
	)

	VersionConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "caseforge_version_conflicts_total",
			Help: "Total updates rejected by the version gate",
		},
	)

	HistoryEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseforge_history_entries_total",
			Help: "Total history entries appended by action",
		},
		[]string{"action"},
	)

	TreePlacementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseforge_tree_placements_total",
			Help: "Total tree leaf placements by outcome (created or existing)",
		},
		[]string{"outcome"},
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "caseforge_query_duration_seconds",
			Help:    "Engine operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	AuditQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "caseforge_audit_queue_depth",
			Help: "Current operational audit queue depth",
		},
	)
)

// Register registers all engine collectors with the given registry.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		MutationsTotal,
		VersionConflictsTotal,
		HistoryEntriesTotal,
		TreePlacementsTotal,
		QueryDuration,
		AuditQueueDepth,
	)
}
