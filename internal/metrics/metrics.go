// Package metrics exposes Prometheus instruments for the recalculation engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels
const (
	OutcomeOK       = "ok"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// Recompute holds the recompute counters and histograms
type Recompute struct {
	batches  *prometheus.CounterVec
	payments *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewRecompute registers the instruments on reg
func NewRecompute(reg prometheus.Registerer) *Recompute {
	f := promauto.With(reg)
	return &Recompute{
		batches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dealflow",
			Subsystem: "recompute",
			Name:      "batches_total",
			Help:      "Recompute batches by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		payments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dealflow",
			Subsystem: "recompute",
			Name:      "payments_total",
			Help:      "Payments recomputed in committed batches.",
		}, []string{"trigger"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dealflow",
			Subsystem: "recompute",
			Name:      "duration_seconds",
			Help:      "Wall time of a recompute batch including lock wait and commit.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"trigger"}),
	}
}

// ObserveRecompute records one finished batch
func (m *Recompute) ObserveRecompute(trigger, outcome string, payments int, elapsed time.Duration) {
	m.batches.WithLabelValues(trigger, outcome).Inc()
	m.duration.WithLabelValues(trigger).Observe(elapsed.Seconds())
	if outcome == OutcomeOK {
		m.payments.WithLabelValues(trigger).Add(float64(payments))
	}
}
