package mana

import (
	"fmt"
	"time"
)

// Config holds the scaling parameters for mana accounts.
type Config struct {
	// BaseAllowance is the capacity of an identity with zero reliability.
	// Default: 10,000
	BaseAllowance uint64 `yaml:"base_allowance" toml:"base_allowance"`

	// MaxMultiplier scales capacity with reliability:
	// max = base * (1 + R * MaxMultiplier). Default: 100
	MaxMultiplier float64 `yaml:"max_multiplier" toml:"max_multiplier"`

	// BaseRegenPerSec is the regeneration rate at zero reliability.
	// Default: 100
	BaseRegenPerSec uint64 `yaml:"base_regen_per_sec" toml:"base_regen_per_sec"`

	// RegenTrustFactor scales regeneration with reliability:
	// regen = base * (1 + R * RegenTrustFactor). Default: 10
	RegenTrustFactor float64 `yaml:"regen_trust_factor" toml:"regen_trust_factor"`

	// RegenInterval is the minimum elapsed time before regeneration is
	// applied. Default: 1 second
	RegenInterval time.Duration `yaml:"regen_interval" toml:"regen_interval"`

	// TrustChangeThreshold is the reliability delta above which an
	// account's capacity is recomputed. Default: 0.05
	TrustChangeThreshold float64 `yaml:"trust_change_threshold" toml:"trust_change_threshold"`
}

// DefaultConfig returns the default mana configuration.
func DefaultConfig() Config {
	return Config{
		BaseAllowance:        10_000,
		MaxMultiplier:        100,
		BaseRegenPerSec:      100,
		RegenTrustFactor:     10,
		RegenInterval:        time.Second,
		TrustChangeThreshold: 0.05,
	}
}

// ApplyDefaults fills unset fields with their defaults. A zero Config
// becomes DefaultConfig. Otherwise MaxMultiplier and RegenTrustFactor are
// kept as given, since zero is a valid flat setting for both.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if *c == (Config{}) {
		*c = d
		return
	}
	if c.BaseAllowance == 0 {
		c.BaseAllowance = d.BaseAllowance
	}
	if c.BaseRegenPerSec == 0 {
		c.BaseRegenPerSec = d.BaseRegenPerSec
	}
	if c.RegenInterval == 0 {
		c.RegenInterval = d.RegenInterval
	}
	if c.TrustChangeThreshold == 0 {
		c.TrustChangeThreshold = d.TrustChangeThreshold
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.BaseAllowance == 0 {
		return fmt.Errorf("base_allowance must be positive")
	}
	if c.MaxMultiplier < 0 {
		return fmt.Errorf("max_multiplier cannot be negative (got %g)", c.MaxMultiplier)
	}
	if c.BaseRegenPerSec == 0 {
		return fmt.Errorf("base_regen_per_sec must be positive")
	}
	if c.RegenTrustFactor < 0 {
		return fmt.Errorf("regen_trust_factor cannot be negative (got %g)", c.RegenTrustFactor)
	}
	if c.RegenInterval < 0 {
		return fmt.Errorf("regen_interval cannot be negative")
	}
	return nil
}

// MaxMana returns the capacity for reliability r.
func (c Config) MaxMana(r float64) uint64 {
	return scale(c.BaseAllowance, clamp01(r), c.MaxMultiplier)
}

// RegenRate returns the regeneration per second for reliability r.
func (c Config) RegenRate(r float64) uint64 {
	return scale(c.BaseRegenPerSec, clamp01(r), c.RegenTrustFactor)
}

// scale computes base * (1 + r*factor). The small epsilon keeps products
// like 0.1*100 from truncating one unit low.
func scale(base uint64, r, factor float64) uint64 {
	return uint64(float64(base)*(1+r*factor) + 1e-6)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
