package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"erynoa/eclvm/pkg/ecl/runner"
)

// Result label values.
const (
	ResultPassed = "passed"
	ResultDenied = "denied"
	ResultError  = "error"
)

// PolicyMetrics tracks policy executions.
type PolicyMetrics struct {
	executionsTotal   *prometheus.CounterVec
	byPolicyTotal     *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	gasUsed           *prometheus.HistogramVec
	manaUsedTotal     *prometheus.CounterVec
}

// NewPolicyMetrics creates and registers policy metrics.
func NewPolicyMetrics(cfg Config, registry prometheus.Registerer) *PolicyMetrics {
	pm := &PolicyMetrics{
		executionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_executions_total",
				Help:      "Total number of policy executions",
			},
			[]string{"policy_type", "result"},
		),
		byPolicyTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_executions_by_policy_total",
				Help:      "Total number of policy executions per policy",
			},
			[]string{"policy", "result"},
		),
		executionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_execution_duration_seconds",
				Help:      "Duration of policy execution in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.000001, 2, 15), // 1µs to 16ms
			},
			[]string{"policy_type"},
		),
		gasUsed: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_gas_used",
				Help:      "Gas consumed per policy execution",
				Buckets:   prometheus.ExponentialBuckets(10, 4, 8), // 10 to 163840
			},
			[]string{"policy_type"},
		),
		manaUsedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_mana_used_total",
				Help:      "Total mana consumed by policy executions",
			},
			[]string{"policy_type"},
		),
	}

	registry.MustRegister(
		pm.executionsTotal,
		pm.byPolicyTotal,
		pm.executionDuration,
		pm.gasUsed,
		pm.manaUsedTotal,
	)
	return pm
}

// RecordExecution records one run under the given policy label.
func (pm *PolicyMetrics) RecordExecution(e runner.PolicyExecution, policy string) {
	kind := e.PolicyType
	if kind == "" {
		kind = "adhoc"
	}
	result := ResultDenied
	switch {
	case e.Err != nil:
		result = ResultError
	case e.Passed:
		result = ResultPassed
	}

	pm.executionsTotal.WithLabelValues(kind, result).Inc()
	pm.byPolicyTotal.WithLabelValues(policy, result).Inc()
	pm.executionDuration.WithLabelValues(kind).Observe(float64(e.DurationMicros) / 1e6)
	pm.gasUsed.WithLabelValues(kind).Observe(float64(e.GasUsed))
	if e.ManaUsed > 0 {
		pm.manaUsedTotal.WithLabelValues(kind).Add(float64(e.ManaUsed))
	}
}
