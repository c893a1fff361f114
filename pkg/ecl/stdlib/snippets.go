package stdlib

import "erynoa/eclvm/pkg/ecl/bytecode"

// TrustLoad loads the trust vector of a DID.
// [did] -> [trust]
func TrustLoad() bytecode.Program {
	return bytecode.Program{bytecode.Simple(bytecode.OpLoadTrust)}
}

// TrustDimension loads one trust dimension of a DID.
// [did] -> [number]
func TrustDimension(d bytecode.Dimension) bytecode.Program {
	return bytecode.Program{
		bytecode.Simple(bytecode.OpLoadTrust),
		bytecode.TrustDim(d),
	}
}

// TrustR loads the reliability dimension.
func TrustR() bytecode.Program { return TrustDimension(bytecode.DimR) }

// TrustI loads the integrity dimension.
func TrustI() bytecode.Program { return TrustDimension(bytecode.DimI) }

// TrustC loads the competence dimension.
func TrustC() bytecode.Program { return TrustDimension(bytecode.DimC) }

// TrustP loads the prestige dimension.
func TrustP() bytecode.Program { return TrustDimension(bytecode.DimP) }

// TrustV loads the vigilance dimension.
func TrustV() bytecode.Program { return TrustDimension(bytecode.DimV) }

// TrustOmega loads the Ω dimension.
func TrustOmega() bytecode.Program { return TrustDimension(bytecode.DimOmega) }

// TrustNorm loads the mean of all dimensions.
// [did] -> [number]
func TrustNorm() bytecode.Program {
	return bytecode.Program{
		bytecode.Simple(bytecode.OpLoadTrust),
		bytecode.Simple(bytecode.OpTrustNorm),
	}
}

// TrustCombine merges two trust vectors.
// [a, b] -> [a ⊕ b]
func TrustCombine() bytecode.Program {
	return bytecode.Program{bytecode.Simple(bytecode.OpTrustCombine)}
}

// HasCredential checks a credential.
// [did, schema] -> [bool]
func HasCredential() bytecode.Program {
	return bytecode.Program{bytecode.Simple(bytecode.OpHasCredential)}
}

// Sigmoid maps any number into (0, 1) with 0.5 + 0.5·x/(1+|x|).
// [x] -> [y]
func Sigmoid() bytecode.Program {
	return bytecode.Program{
		bytecode.Simple(bytecode.OpDup),
		bytecode.Simple(bytecode.OpDup),
		bytecode.Simple(bytecode.OpNeg),
		bytecode.Simple(bytecode.OpMax), // [x, |x|]
		bytecode.Push(bytecode.Number(1)),
		bytecode.Simple(bytecode.OpAdd),
		bytecode.Simple(bytecode.OpDiv),
		bytecode.Push(bytecode.Number(0.5)),
		bytecode.Simple(bytecode.OpMul),
		bytecode.Push(bytecode.Number(0.5)),
		bytecode.Simple(bytecode.OpAdd),
	}
}

// Clamp bounds x to [lo, hi].
// [x, lo, hi] -> [max(min(x, hi), lo)]
func Clamp() bytecode.Program {
	return bytecode.Program{
		bytecode.Pick(2),                // [x, lo, hi, x]
		bytecode.Simple(bytecode.OpMin), // [x, lo, min(x,hi)]
		bytecode.Simple(bytecode.OpMax), // [x, r]
		bytecode.Simple(bytecode.OpSwap),
		bytecode.Simple(bytecode.OpPop),
	}
}

// Lerp interpolates linearly between a and b.
// [a, b, t] -> [a + t·(b-a)]
func Lerp() bytecode.Program {
	return bytecode.Program{
		bytecode.Pick(2),                 // [a, b, t, a]
		bytecode.Simple(bytecode.OpSwap), // [a, b, a, t]
		bytecode.Pick(2),                 // [a, b, a, t, b]
		bytecode.Pick(2),                 // [a, b, a, t, b, a]
		bytecode.Simple(bytecode.OpSub),  // [a, b, a, t, b-a]
		bytecode.Simple(bytecode.OpMul),  // [a, b, a, t·(b-a)]
		bytecode.Simple(bytecode.OpAdd),  // [a, b, r]
		bytecode.Simple(bytecode.OpSwap),
		bytecode.Simple(bytecode.OpPop), // [a, r]
		bytecode.Simple(bytecode.OpSwap),
		bytecode.Simple(bytecode.OpPop), // [r]
	}
}

// Append concatenates fragments, shifting the jump and call targets of
// each fragment by its offset in the result.
func Append(dst bytecode.Program, fragments ...bytecode.Program) bytecode.Program {
	for _, f := range fragments {
		dst = append(dst, Relocate(f, len(dst))...)
	}
	return dst
}

// Relocate returns a copy of p with every target shifted by offset.
func Relocate(p bytecode.Program, offset int) bytecode.Program {
	out := p.Clone()
	if offset == 0 {
		return out
	}
	for i, in := range out {
		if t, ok := in.Target(); ok {
			out[i] = in.WithTarget(t + offset)
		}
	}
	return out
}
