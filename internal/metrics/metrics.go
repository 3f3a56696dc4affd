// Package metrics exposes Prometheus counters for the approval engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "approvals"

// Metrics holds the engine's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// transitionsTotal counts committed request transitions.
	transitionsTotal *prometheus.CounterVec
	// escalationsTotal counts escalation attempts by outcome.
	escalationsTotal *prometheus.CounterVec
	// sweepDuration observes escalation sweep duration.
	sweepDuration prometheus.Histogram
	// notificationFailuresTotal counts failed notification dispatches.
	notificationFailuresTotal *prometheus.CounterVec
	// conflictsTotal counts CONCURRENT_MODIFICATION failures.
	conflictsTotal prometheus.Counter
	// storeRetriesTotal counts retried transient store failures.
	storeRetriesTotal prometheus.Counter
}

// New creates the collectors and registers them with reg when reg is non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Total number of committed approval request transitions",
			},
			[]string{"action"},
		),
		escalationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "escalations_total",
				Help:      "Total number of escalation attempts",
			},
			[]string{"status"}, // status: escalated, skipped, error
		),
		sweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "escalation_sweep_duration_seconds",
				Help:      "Duration of escalation sweeps in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		notificationFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notification_failures_total",
				Help:      "Total number of notifications that could not be delivered",
			},
			[]string{"type"},
		),
		conflictsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "concurrent_modifications_total",
				Help:      "Total number of transitions rejected by the version check",
			},
		),
		storeRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_retries_total",
				Help:      "Total number of retried transient store failures",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.transitionsTotal,
			m.escalationsTotal,
			m.sweepDuration,
			m.notificationFailuresTotal,
			m.conflictsTotal,
			m.storeRetriesTotal,
		)
	}
	return m
}

// RecordTransition counts a committed transition.
func (m *Metrics) RecordTransition(action string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(action).Inc()
}

// RecordEscalation counts an escalation attempt.
func (m *Metrics) RecordEscalation(status string) {
	if m == nil {
		return
	}
	m.escalationsTotal.WithLabelValues(status).Inc()
}

// ObserveSweep records how long a sweep took.
func (m *Metrics) ObserveSweep(seconds float64) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(seconds)
}

// RecordNotificationFailure counts a failed dispatch.
func (m *Metrics) RecordNotificationFailure(eventType string) {
	if m == nil {
		return
	}
	m.notificationFailuresTotal.WithLabelValues(eventType).Inc()
}

// RecordConflict counts a version conflict.
func (m *Metrics) RecordConflict() {
	if m == nil {
		return
	}
	m.conflictsTotal.Inc()
}

// RecordStoreRetry counts a retried store call.
func (m *Metrics) RecordStoreRetry() {
	if m == nil {
		return
	}
	m.storeRetriesTotal.Inc()
}
