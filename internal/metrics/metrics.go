package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Module provides the loyalty engine metrics.
var Module = fx.Provide(New)

// Metrics exposes prometheus instrumentation for ledger and sweep activity.
type Metrics struct {
	transactions *prometheus.CounterVec
	duplicates   *prometheus.CounterVec
	rejections   *prometheus.CounterVec
	tierChanges  *prometheus.CounterVec
	sweepRuns    prometheus.Counter
	sweepErrors  prometheus.Counter
	sweepMembers prometheus.Counter
	sweepSeconds prometheus.Histogram
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fidelio_points_transactions_total",
			Help: "Points transactions applied, by type.",
		}, []string{"type"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fidelio_points_duplicates_total",
			Help: "Replayed transactions suppressed by idempotency checks, by type.",
		}, []string{"type"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fidelio_points_rejections_total",
			Help: "Transactions rejected before write, by reason.",
		}, []string{"reason"}),
		tierChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fidelio_tier_changes_total",
			Help: "Membership tier changes, by direction.",
		}, []string{"direction"}),
		sweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fidelio_sweep_runs_total",
			Help: "Completed evaluation sweep passes.",
		}),
		sweepErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fidelio_sweep_errors_total",
			Help: "Per-customer evaluation failures during sweeps.",
		}),
		sweepMembers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fidelio_sweep_members_total",
			Help: "Memberships re-evaluated by sweeps.",
		}),
		sweepSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fidelio_sweep_duration_seconds",
			Help:    "Duration of a full sweep pass.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.transactions,
			m.duplicates,
			m.rejections,
			m.tierChanges,
			m.sweepRuns,
			m.sweepErrors,
			m.sweepMembers,
			m.sweepSeconds,
		)
	}
	return m
}

func (m *Metrics) RecordTransaction(txType string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(txType).Inc()
}

func (m *Metrics) RecordDuplicate(txType string) {
	if m == nil {
		return
	}
	m.duplicates.WithLabelValues(txType).Inc()
}

func (m *Metrics) RecordRejection(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordTierChange(direction string) {
	if m == nil {
		return
	}
	m.tierChanges.WithLabelValues(direction).Inc()
}

func (m *Metrics) RecordSweep(members int, errs int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.sweepRuns.Inc()
	m.sweepMembers.Add(float64(members))
	m.sweepErrors.Add(float64(errs))
	m.sweepSeconds.Observe(elapsed.Seconds())
}
