package verify

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records verification attempts. A nil *Metrics records nothing.
type Metrics struct {
	attempts   *prometheus.CounterVec
	mismatches *prometheus.CounterVec
	stages     *prometheus.HistogramVec
}

// NewMetrics registers the verification metrics on reg. It returns nil if reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	return &Metrics{
		attempts: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "secbioauth",
			Name:      "verification_attempts_total",
			Help:      "Number of verification attempts by outcome (accepted, rejected, error)",
		}, []string{"dataset", "outcome"}),
		mismatches: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "secbioauth",
			Name:      "verification_score_mismatches_total",
			Help:      "Number of attempts whose decrypted score differs from the expected score",
		}, []string{"dataset"}),
		stages: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "secbioauth",
			Name:      "verification_stage_duration_seconds",
			Help:      "Duration of the verification stages",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"dataset", "stage"}),
	}
}

func (m *Metrics) attempt(dataset, outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(dataset, outcome).Inc()
}

func (m *Metrics) mismatch(dataset string) {
	if m == nil {
		return
	}
	m.mismatches.WithLabelValues(dataset).Inc()
}

func (m *Metrics) stage(dataset, stage string, start time.Time) {
	if m == nil {
		return
	}
	m.stages.WithLabelValues(dataset, stage).Observe(time.Since(start).Seconds())
}
