package gateway

import "erynoa/eclvm/pkg/ecl/bytecode"

// Damping attenuates a trust vector when it crosses into another realm.
// Each dimension is multiplied by its factor and clamped to [0, 1].
type Damping struct {
	Factors [bytecode.NumDimensions]float64 `yaml:"factors" toml:"factors"`
}

// DefaultDamping keeps Vigilance and Ω and attenuates the rest by 20%.
func DefaultDamping() Damping {
	return Damping{Factors: [bytecode.NumDimensions]float64{0.8, 0.8, 0.8, 0.8, 1, 1}}
}

// NoDamping leaves trust unchanged.
func NoDamping() Damping {
	return Damping{Factors: [bytecode.NumDimensions]float64{1, 1, 1, 1, 1, 1}}
}

// Apply returns the damped vector.
func (d Damping) Apply(tv bytecode.TrustVector) bytecode.TrustVector {
	var out bytecode.TrustVector
	for i := range tv {
		v := tv[i] * d.Factors[i]
		switch {
		case v < 0:
			v = 0
		case v > 1:
			v = 1
		}
		out[i] = v
	}
	return out
}

// trustScore is the unweighted mean of all dimensions.
func trustScore(tv bytecode.TrustVector) float64 {
	var sum float64
	for _, v := range tv {
		sum += v
	}
	return sum / bytecode.NumDimensions
}
