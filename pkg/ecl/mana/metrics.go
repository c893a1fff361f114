package mana

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for the mana manager.
type Metrics struct {
	accounts    prometheus.Gauge
	checks      *prometheus.CounterVec
	consumed    *prometheus.CounterVec
	rateLimited *prometheus.CounterVec
	swept       prometheus.Counter
}

// NewMetrics registers the mana collectors with reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		accounts: f.NewGauge(prometheus.GaugeOpts{
			Name: "ecl_mana_accounts",
			Help: "Number of live mana accounts",
		}),
		checks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecl_mana_preflight_checks_total",
				Help: "Total number of mana pre-flight checks",
			},
			[]string{"tier", "result"},
		),
		consumed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecl_mana_consumed_total",
				Help: "Total mana deducted after execution",
			},
			[]string{"tier"},
		),
		rateLimited: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecl_mana_rate_limited_total",
				Help: "Total number of requests rejected for insufficient mana",
			},
			[]string{"tier", "stage"},
		),
		swept: f.NewCounter(prometheus.CounterOpts{
			Name: "ecl_mana_swept_accounts_total",
			Help: "Total number of inactive accounts removed",
		}),
	}
}

func (m *Metrics) setAccounts(n int) {
	if m != nil {
		m.accounts.Set(float64(n))
	}
}

func (m *Metrics) recordCheck(tier BandwidthTier, allowed bool) {
	if m == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "blocked"
		m.rateLimited.WithLabelValues(tier.String(), "preflight").Inc()
	}
	m.checks.WithLabelValues(tier.String(), result).Inc()
}

func (m *Metrics) recordDeduct(tier BandwidthTier, amount uint64, ok bool) {
	if m == nil {
		return
	}
	if !ok {
		m.rateLimited.WithLabelValues(tier.String(), "deduct").Inc()
		return
	}
	m.consumed.WithLabelValues(tier.String()).Add(float64(amount))
}

func (m *Metrics) recordSweep(n int) {
	if m != nil {
		m.swept.Add(float64(n))
	}
}
