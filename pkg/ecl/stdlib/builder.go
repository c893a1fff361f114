package stdlib

import (
	"fmt"

	"erynoa/eclvm/pkg/ecl/bytecode"
)

// PolicyBuilder assembles an admission policy from guard patterns.
//
// The sender DID is expected on top of the stack, either because the
// runner pushed the caller or because PushSender was used. Every guard
// duplicates it first, so guards can be chained.
//
//	p, err := stdlib.NewPolicyBuilder().
//		RequireTrustR(0.5).
//		RequireCredential("kyc-verified").
//		Allow().
//		Build()
type PolicyBuilder struct {
	program bytecode.Program
	closed  bool
}

// NewPolicyBuilder returns an empty builder.
func NewPolicyBuilder() *PolicyBuilder {
	return &PolicyBuilder{}
}

// PushSender pushes a fixed sender DID, for programs run without a caller.
func (b *PolicyBuilder) PushSender(did string) *PolicyBuilder {
	b.program = append(b.program, bytecode.Push(bytecode.DID(did)))
	return b
}

// RequireTrustR guards on the sender's R dimension.
func (b *PolicyBuilder) RequireTrustR(threshold float64) *PolicyBuilder {
	return b.guard(RequireTrustR(threshold))
}

// RequireTrustRMsg guards on the sender's R dimension with a message.
func (b *PolicyBuilder) RequireTrustRMsg(threshold float64, msg string) *PolicyBuilder {
	return b.guard(RequireTrustRMsg(threshold, msg))
}

// RequireCredential guards on a sender credential.
func (b *PolicyBuilder) RequireCredential(schema string) *PolicyBuilder {
	return b.guard(RequireCredential(schema))
}

// RequireTrustAndCredential guards on both.
func (b *PolicyBuilder) RequireTrustAndCredential(threshold float64, schema string) *PolicyBuilder {
	return b.guard(RequireTrustAndCredential(threshold, schema))
}

func (b *PolicyBuilder) guard(pattern bytecode.Program) *PolicyBuilder {
	b.program = append(b.program, bytecode.Simple(bytecode.OpDup))
	b.program = Append(b.program, pattern)
	return b
}

// Emit appends raw fragments, relocating their jump targets.
func (b *PolicyBuilder) Emit(fragments ...bytecode.Program) *PolicyBuilder {
	b.program = Append(b.program, fragments...)
	return b
}

// Allow ends the policy with true.
func (b *PolicyBuilder) Allow() *PolicyBuilder {
	return b.finish(true)
}

// Deny ends the policy with false.
func (b *PolicyBuilder) Deny() *PolicyBuilder {
	return b.finish(false)
}

func (b *PolicyBuilder) finish(verdict bool) *PolicyBuilder {
	b.program = append(b.program,
		bytecode.Push(bytecode.Bool(verdict)),
		bytecode.Simple(bytecode.OpReturn),
	)
	b.closed = true
	return b
}

// Build validates and returns the program. A policy must end with Allow
// or Deny.
func (b *PolicyBuilder) Build() (bytecode.Program, error) {
	if !b.closed {
		return nil, fmt.Errorf("policy has no verdict: call Allow or Deny")
	}
	if err := b.program.Validate(); err != nil {
		return nil, err
	}
	return b.program.Clone(), nil
}

// Len returns the number of instructions emitted so far.
func (b *PolicyBuilder) Len() int { return len(b.program) }
