package mana

// BandwidthTier buckets identities by reliability.
type BandwidthTier int

const (
	TierNewcomer BandwidthTier = iota // R < 0.1
	TierLimited                       // R < 0.3
	TierStandard                      // R < 0.6
	TierElevated                      // R < 0.8
	TierVeteran
)

// TierFromTrust returns the tier for reliability r.
func TierFromTrust(r float64) BandwidthTier {
	switch {
	case r < 0.1:
		return TierNewcomer
	case r < 0.3:
		return TierLimited
	case r < 0.6:
		return TierStandard
	case r < 0.8:
		return TierElevated
	}
	return TierVeteran
}

func (t BandwidthTier) String() string {
	switch t {
	case TierNewcomer:
		return "newcomer"
	case TierLimited:
		return "limited"
	case TierStandard:
		return "standard"
	case TierElevated:
		return "elevated"
	case TierVeteran:
		return "veteran"
	}
	return "unknown"
}

// TypicalMaxMana is the capacity advertised for the tier.
func (t BandwidthTier) TypicalMaxMana() uint64 {
	switch t {
	case TierNewcomer:
		return 11_000
	case TierLimited:
		return 30_000
	case TierStandard:
		return 60_000
	case TierElevated:
		return 80_000
	case TierVeteran:
		return 110_000
	}
	return 0
}

// Description is a human readable summary of the tier.
func (t BandwidthTier) Description() string {
	switch t {
	case TierNewcomer:
		return "New user with minimal bandwidth"
	case TierLimited:
		return "Limited bandwidth, build trust to increase"
	case TierStandard:
		return "Standard bandwidth for regular users"
	case TierElevated:
		return "Elevated bandwidth for trusted users"
	case TierVeteran:
		return "Maximum bandwidth for veterans"
	}
	return ""
}
