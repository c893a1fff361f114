// Package mana implements trust-scaled bandwidth accounts.
//
// Each identity owns an Account whose capacity and regeneration rate grow
// with the Reliability dimension of its trust vector:
//
//	max   = BaseAllowance   * (1 + R * MaxMultiplier)
//	regen = BaseRegenPerSec * (1 + R * RegenTrustFactor)
//
// Callers run Preflight with the estimated gas of a program before spending
// VM time on it, then Deduct the gas actually used. Accounts are
// independent, so a crowd of fresh identities never shares a pool: ten
// newcomers get ten small ceilings, while one established identity can
// outspend all of them.
//
// Accounts idle for longer than a configured age are removed by
// CleanupInactive, which a Sweeper runs on a cron schedule.
package mana
