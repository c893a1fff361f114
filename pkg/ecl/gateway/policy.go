package gateway

import (
	"fmt"
	"strconv"

	"erynoa/eclvm/pkg/ecl/bytecode"
)

// Policy kinds used as registry keys within a realm.
const (
	KindEntry      = "entry"
	KindAPI        = "api"
	KindUI         = "ui"
	KindDataLogic  = "datalogic"
	KindGovernance = "governance"
	KindController = "controller"
)

// CompiledPolicy is a named program ready to run. The caller DID is on
// the stack when it starts.
type CompiledPolicy struct {
	Name         string
	Description  string
	Program      bytecode.Program
	EstimatedGas uint64
}

// NewPolicy creates a policy and computes its static gas estimate.
func NewPolicy(name string, program bytecode.Program) CompiledPolicy {
	return CompiledPolicy{
		Name:         name,
		Program:      program,
		EstimatedGas: bytecode.EstimateGas(program),
	}
}

// WithDescription returns a copy of p with the given description.
func (p CompiledPolicy) WithDescription(desc string) CompiledPolicy {
	p.Description = desc
	return p
}

// DefaultEntryPolicy admits callers with Trust.R >= 0.3.
func DefaultEntryPolicy() CompiledPolicy {
	return TrustMin(0.3).rename("default_entry", "Default entry policy: Trust.R >= 0.3")
}

func (p CompiledPolicy) rename(name, desc string) CompiledPolicy {
	p.Name = name
	p.Description = desc
	return p
}

func trustRAtLeast(cmp bytecode.Op, threshold float64) bytecode.Program {
	return bytecode.Program{
		bytecode.Simple(bytecode.OpLoadTrust),
		bytecode.TrustDim(bytecode.DimR),
		bytecode.Push(bytecode.Number(threshold)),
		bytecode.Simple(cmp),
		bytecode.Simple(bytecode.OpReturn),
	}
}

// trustAndCredential checks Trust.R >= threshold and a credential.
func trustAndCredential(threshold float64, schema string) bytecode.Program {
	return bytecode.Program{
		bytecode.Simple(bytecode.OpDup), // [did did]
		bytecode.Simple(bytecode.OpLoadTrust),
		bytecode.TrustDim(bytecode.DimR),
		bytecode.Push(bytecode.Number(threshold)),
		bytecode.Simple(bytecode.OpGte),  // [did trust_ok]
		bytecode.Simple(bytecode.OpSwap), // [trust_ok did]
		bytecode.Push(bytecode.String(schema)),
		bytecode.Simple(bytecode.OpHasCredential), // [trust_ok has_cred]
		bytecode.Simple(bytecode.OpAnd),
		bytecode.Simple(bytecode.OpReturn),
	}
}

// PublicRealm admits any caller with non-zero reliability.
func PublicRealm() CompiledPolicy {
	return NewPolicy("public", trustRAtLeast(bytecode.OpGt, 0)).
		WithDescription("Public realm: Any non-zero trust allowed")
}

// VerifiedUsers requires Trust.R >= 0.5 and an email-verified credential.
func VerifiedUsers() CompiledPolicy {
	return NewPolicy("verified_users", trustAndCredential(0.5, "email-verified")).
		WithDescription("Verified users: Trust.R >= 0.5 AND email-verified credential")
}

// HighTrust requires Trust.R >= 0.7.
func HighTrust() CompiledPolicy {
	return NewPolicy("high_trust", trustRAtLeast(bytecode.OpGte, 0.7)).
		WithDescription("High trust: Trust.R >= 0.7")
}

// FinanceRealm requires Trust.R >= 0.7 and a kyc-verified credential.
func FinanceRealm() CompiledPolicy {
	return NewPolicy("finance_entry", trustAndCredential(0.7, "kyc-verified")).
		WithDescription("Finance realm: Trust.R >= 0.7 AND KYC verified")
}

// InviteOnly requires an "invited" credential.
func InviteOnly() CompiledPolicy {
	return NewPolicy("invite_only", bytecode.Program{
		bytecode.Push(bytecode.String("invited")),
		bytecode.Simple(bytecode.OpHasCredential),
		bytecode.Simple(bytecode.OpReturn),
	}).WithDescription("Invite only: Must have 'invited' credential")
}

// TrustMin requires Trust.R >= threshold.
func TrustMin(threshold float64) CompiledPolicy {
	t := strconv.FormatFloat(threshold, 'g', -1, 64)
	return NewPolicy("trust_min_"+t, trustRAtLeast(bytecode.OpGte, threshold)).
		WithDescription(fmt.Sprintf("Dynamic trust: Trust.R >= %s", t))
}

// StandardPolicies returns the built-in policies keyed by name.
func StandardPolicies() map[string]CompiledPolicy {
	out := make(map[string]CompiledPolicy)
	for _, p := range []CompiledPolicy{PublicRealm(), VerifiedUsers(), HighTrust(), FinanceRealm(), InviteOnly()} {
		out[p.Name] = p
	}
	return out
}
