package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"erynoa/eclvm/pkg/ecl/runner"
)

// DefaultMaxPolicyLabels bounds the distinct policy label values.
const DefaultMaxPolicyLabels = 1000

// Config configures a Collector.
type Config struct {
	// Namespace is the metric name prefix. Default: "ecl"
	Namespace string
	// Subsystem is an optional second prefix.
	Subsystem string
	// MaxPolicyLabels bounds per-policy series. Default: 1000
	MaxPolicyLabels int
}

// Collector records ECL execution metrics.
type Collector struct {
	registry *prometheus.Registry
	policy   *PolicyMetrics
	crossing *CrossingMetrics
	limiter  *CardinalityLimiter
}

var _ runner.Observer = (*Collector)(nil)

// NewCollector creates a collector and registers its metrics with
// registry, or with a new registry when registry is nil.
func NewCollector(cfg Config, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "ecl"
	}
	if cfg.MaxPolicyLabels <= 0 {
		cfg.MaxPolicyLabels = DefaultMaxPolicyLabels
	}
	return &Collector{
		registry: registry,
		policy:   NewPolicyMetrics(cfg, registry),
		crossing: NewCrossingMetrics(cfg, registry),
		limiter:  NewCardinalityLimiter(cfg.MaxPolicyLabels),
	}
}

// OnPolicyExecuted implements runner.Observer.
func (c *Collector) OnPolicyExecuted(e runner.PolicyExecution) {
	policy := e.PolicyID
	if policy == "" {
		policy = "anonymous"
	}
	if !c.limiter.Allow(policy) {
		policy = "other"
	}
	c.policy.RecordExecution(e, policy)
}

// OnCrossingEvaluated implements runner.Observer.
func (c *Collector) OnCrossingEvaluated(e runner.CrossingEvaluation) {
	c.crossing.RecordCrossing(e)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter caps the number of distinct label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value is known or still fits under the limit.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	_, exists := cl.current[value]
	cl.mu.RUnlock()
	if exists {
		return true
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()
	if _, exists := cl.current[value]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[value] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
