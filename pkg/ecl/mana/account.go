package mana

import (
	"math"
	"time"
)

// Account is the mana state of a single identity.
//
// Regeneration is lazy: nothing ticks in the background. Every access
// through the Manager first credits regenRate * elapsed, capped at max.
type Account struct {
	current       uint64
	max           uint64
	regenRate     uint64
	lastUpdate    time.Time
	trustSnapshot float64
}

// newAccount creates a full account for reliability r.
func newAccount(r float64, cfg Config, now time.Time) *Account {
	maxMana := cfg.MaxMana(r)
	return &Account{
		current:       maxMana,
		max:           maxMana,
		regenRate:     cfg.RegenRate(r),
		lastUpdate:    now,
		trustSnapshot: r,
	}
}

// update applies regeneration and rescales the account when reliability
// moved by more than the configured threshold.
func (a *Account) update(r float64, cfg Config, now time.Time) {
	elapsed := now.Sub(a.lastUpdate)
	if elapsed >= cfg.RegenInterval && elapsed > 0 {
		regen := uint64(float64(a.regenRate) * elapsed.Seconds())
		a.current = min(saturatingAdd(a.current, regen), a.max)
		a.lastUpdate = now
	}

	if math.Abs(r-a.trustSnapshot) > cfg.TrustChangeThreshold {
		a.max = cfg.MaxMana(r)
		a.regenRate = cfg.RegenRate(r)
		a.trustSnapshot = r
		a.current = min(a.current, a.max)
	}
}

// CanAfford reports whether cost can be paid from the current balance.
func (a Account) CanAfford(cost uint64) bool {
	return a.current >= cost
}

// consume subtracts amount or reports how long until it is affordable.
func (a *Account) consume(amount uint64) (time.Duration, bool) {
	if amount > a.current {
		return a.TimeToRegenerate(amount), false
	}
	a.current -= amount
	return 0, true
}

// TimeToRegenerate returns how long until needed mana is available.
func (a Account) TimeToRegenerate(needed uint64) time.Duration {
	if needed <= a.current {
		return 0
	}
	if a.regenRate == 0 {
		return time.Duration(math.MaxInt64)
	}
	secs := float64(needed-a.current) / float64(a.regenRate)
	return time.Duration(secs * float64(time.Second))
}

// Current returns the available mana.
func (a Account) Current() uint64 { return a.current }

// Max returns the capacity.
func (a Account) Max() uint64 { return a.max }

// RegenRate returns the regeneration per second.
func (a Account) RegenRate() uint64 { return a.regenRate }

// LastUpdate returns when regeneration was last applied.
func (a Account) LastUpdate() time.Time { return a.lastUpdate }

// FillPercent returns current as a percentage of max.
func (a Account) FillPercent() float64 {
	if a.max == 0 {
		return 0
	}
	return float64(a.current) * 100 / float64(a.max)
}

func saturatingAdd(a, b uint64) uint64 {
	if s := a + b; s >= a {
		return s
	}
	return math.MaxUint64
}
