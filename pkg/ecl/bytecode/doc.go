// Package bytecode defines the ECL instruction set and runtime value model.
//
// # Overview
//
// Every compiled ECL policy is a Program: a flat, ordered slice of
// Instructions executed by the stack VM in pkg/ecl/vm. Jump and call
// targets are absolute indices into the same Program and are only valid
// within the compiled unit that produced them.
//
// Values are a small tagged union:
//
//   - Null
//   - Bool
//   - Number (float64)
//   - String
//   - DID (opaque identity reference)
//   - TrustVector (six float64 dimensions R, I, C, P, V, Ω)
//   - Array (ordered list of Values)
//
// There is no heap. Composite values are copied when pushed, so a Value
// never aliases state owned by another stack slot.
//
// # Gas
//
// Each opcode carries a static gas cost (see Op.Gas). EstimateGas sums
// those costs over a Program and is used by the gateway for mana
// pre-flight admission before the VM is started.
//
// # Serialization
//
// Encode and Decode implement the "ECLB" blob format: a fixed header,
// a blake3 checksum and a body of length-prefixed canonical CBOR
// instructions, optionally zstd compressed. ContentID derives a stable
// base58 identifier from the uncompressed body.
package bytecode
