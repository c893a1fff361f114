// Package health serves liveness and readiness probes for long-running
// ECL processes such as `ecl serve`.
//
// Readiness runs every registered check concurrently with a per-check
// timeout. StorageCheck and GatewayCheck cover the engine components:
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("storage", health.StorageCheck(backend))
//	checker.RegisterCheck("policies", health.GatewayCheck(gw, 1))
//	checker.Mount(mux, version)
package health
