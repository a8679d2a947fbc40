// Package metrics exposes Prometheus instrumentation for the authorization
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	// UpdatesTotal counts finished update attempts by action and outcome.
	UpdatesTotal *prometheus.CounterVec

	// StepFailures counts failures by pipeline step (resolve, preflight,
	// publish, sign, submit).
	StepFailures *prometheus.CounterVec

	// PublishedPayloads counts successfully pinned payloads.
	PublishedPayloads prometheus.Counter

	// HashMismatches counts three-way integrity check failures.
	HashMismatches prometheus.Counter

	// ReconciliationFailures counts best-effort directory writes that failed
	// after a successful on-chain submission.
	ReconciliationFailures prometheus.Counter

	// UpdateDuration observes end-to-end update latency by action.
	UpdateDuration *prometheus.HistogramVec
}

// New registers the pipeline collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		UpdatesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "batterypass",
			Subsystem: "orchestrator",
			Name:      "updates_total",
			Help:      "Finished update attempts by action and outcome.",
		}, []string{"action", "outcome"}),
		StepFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "batterypass",
			Subsystem: "orchestrator",
			Name:      "step_failures_total",
			Help:      "Update pipeline failures by step.",
		}, []string{"step"}),
		PublishedPayloads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "batterypass",
			Subsystem: "orchestrator",
			Name:      "published_payloads_total",
			Help:      "Payloads successfully pinned to the content store.",
		}),
		HashMismatches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "batterypass",
			Subsystem: "orchestrator",
			Name:      "hash_mismatches_total",
			Help:      "Content reads failing the ledger/directory/store integrity check.",
		}),
		ReconciliationFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "batterypass",
			Subsystem: "orchestrator",
			Name:      "reconciliation_failures_total",
			Help:      "Directory reconciliation writes that failed after on-chain success.",
		}),
		UpdateDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "batterypass",
			Subsystem: "orchestrator",
			Name:      "update_duration_seconds",
			Help:      "End-to-end update latency by action.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
	}
}

// NewNoop returns metrics bound to a private registry, for tests.
func NewNoop() *Metrics {
	return New(prometheus.NewRegistry())
}
