package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"erynoa/eclvm/pkg/ecl/runner"
)

// CrossingMetrics tracks realm crossings.
type CrossingMetrics struct {
	crossingsTotal *prometheus.CounterVec
	trustScore     *prometheus.HistogramVec
}

// NewCrossingMetrics creates and registers crossing metrics.
func NewCrossingMetrics(cfg Config, registry prometheus.Registerer) *CrossingMetrics {
	cm := &CrossingMetrics{
		crossingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "realm_crossings_total",
				Help:      "Total number of evaluated realm crossings",
			},
			[]string{"from", "to", "result"},
		),
		trustScore: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "realm_crossing_trust_score",
				Help:      "Mean damped trust of entities crossing into a realm",
				Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
			},
			[]string{"to"},
		),
	}
	registry.MustRegister(cm.crossingsTotal, cm.trustScore)
	return cm
}

// RecordCrossing records one crossing.
func (cm *CrossingMetrics) RecordCrossing(e runner.CrossingEvaluation) {
	result := ResultDenied
	switch {
	case e.Err != nil:
		result = ResultError
	case e.Allowed:
		result = ResultPassed
	}
	cm.crossingsTotal.WithLabelValues(e.FromRealm, e.ToRealm, result).Inc()
	cm.trustScore.WithLabelValues(e.ToRealm).Observe(e.TrustScore)
}
