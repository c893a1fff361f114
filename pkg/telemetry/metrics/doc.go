// Package metrics exports ECL execution metrics to Prometheus.
//
// # Overview
//
// Collector implements runner.Observer. Attach it to the runner shared by
// the gateway and the entry point registries and every policy run and
// realm crossing is counted:
//
//	collector := metrics.NewCollector(metrics.Config{}, nil)
//	r := runner.New(runner.WithObserver(collector))
//	http.Handle("/metrics", collector.Handler())
//
// # Metrics
//
//   - ecl_policy_executions_total{policy_type, result}
//   - ecl_policy_executions_by_policy_total{policy, result}
//   - ecl_policy_execution_duration_seconds{policy_type}
//   - ecl_policy_gas_used{policy_type}
//   - ecl_policy_mana_used_total{policy_type}
//   - ecl_realm_crossings_total{from, to, result}
//   - ecl_realm_crossing_trust_score{to}
//
// Result is "passed", "denied" or "error". Policy ids beyond the
// cardinality limit are reported as "other".
package metrics
