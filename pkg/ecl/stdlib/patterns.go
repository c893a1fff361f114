package stdlib

import "erynoa/eclvm/pkg/ecl/bytecode"

// RequireTrustR aborts unless the R dimension of the DID reaches threshold.
// [did] -> []
func RequireTrustR(threshold float64) bytecode.Program {
	return bytecode.Program{
		bytecode.Simple(bytecode.OpLoadTrust),
		bytecode.TrustDim(bytecode.DimR),
		bytecode.Push(bytecode.Number(threshold)),
		bytecode.Simple(bytecode.OpGte),
		bytecode.Simple(bytecode.OpAssert),
	}
}

// RequireTrustRMsg is RequireTrustR with a rejection message.
// [did] -> []
func RequireTrustRMsg(threshold float64, msg string) bytecode.Program {
	return bytecode.Program{
		bytecode.Simple(bytecode.OpLoadTrust),
		bytecode.TrustDim(bytecode.DimR),
		bytecode.Push(bytecode.Number(threshold)),
		bytecode.Simple(bytecode.OpGte),
		bytecode.Push(bytecode.String(msg)),
		bytecode.Simple(bytecode.OpRequire),
	}
}

// RequireCredential aborts unless the DID holds a credential of schema.
// [did] -> []
func RequireCredential(schema string) bytecode.Program {
	return bytecode.Program{
		bytecode.Push(bytecode.String(schema)),
		bytecode.Simple(bytecode.OpHasCredential),
		bytecode.Simple(bytecode.OpAssert),
	}
}

// RequireTrustAndCredential aborts unless both conditions hold.
// [did] -> []
func RequireTrustAndCredential(threshold float64, schema string) bytecode.Program {
	return bytecode.Program{
		bytecode.Simple(bytecode.OpDup),
		bytecode.Simple(bytecode.OpLoadTrust),
		bytecode.TrustDim(bytecode.DimR),
		bytecode.Push(bytecode.Number(threshold)),
		bytecode.Simple(bytecode.OpGte),
		bytecode.Simple(bytecode.OpSwap),
		bytecode.Push(bytecode.String(schema)),
		bytecode.Simple(bytecode.OpHasCredential),
		bytecode.Simple(bytecode.OpAnd),
		bytecode.Simple(bytecode.OpAssert),
	}
}
