package bytecode

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindDID
	KindTrustVector
	KindArray
)

var kindNames = [...]string{
	KindNull:        "null",
	KindBool:        "bool",
	KindNumber:      "number",
	KindString:      "string",
	KindDID:         "did",
	KindTrustVector: "trust_vector",
	KindArray:       "array",
}

// String returns the type name used in error messages.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Dimension indexes one axis of a TrustVector.
type Dimension uint8

const (
	DimR     Dimension = iota // Reliability
	DimI                      // Integrity
	DimC                      // Competence
	DimP                      // Prestige
	DimV                      // Vigilance
	DimOmega                  // Ω, axiom fidelity
)

// NumDimensions is the fixed width of a TrustVector.
const NumDimensions = 6

var dimensionNames = [NumDimensions]string{"R", "I", "C", "P", "V", "Ω"}

func (d Dimension) String() string {
	if d < NumDimensions {
		return dimensionNames[d]
	}
	return fmt.Sprintf("dim(%d)", uint8(d))
}

// Valid reports whether d addresses an existing trust dimension.
func (d Dimension) Valid() bool { return d < NumDimensions }

// ParseDimension maps a selector such as "R" or "omega" to a Dimension.
func ParseDimension(s string) (Dimension, bool) {
	switch s {
	case "R":
		return DimR, true
	case "I":
		return DimI, true
	case "C":
		return DimC, true
	case "P":
		return DimP, true
	case "V":
		return DimV, true
	case "Ω", "omega", "Omega":
		return DimOmega, true
	}
	return 0, false
}

// TrustVector is the six-dimensional reputation vector of an identity.
type TrustVector [NumDimensions]float64

// NewcomerTrust is the vector assigned to identities the host knows nothing about.
var NewcomerTrust = TrustVector{0.1, 0.1, 0.1, 0.1, 0.1, 0.1}

// Norm returns the arithmetic mean of all dimensions.
func (tv TrustVector) Norm() float64 {
	var sum float64
	for _, x := range tv {
		sum += x
	}
	return sum / NumDimensions
}

// Combine merges two vectors with probabilistic OR: 1 - (1-a)(1-b).
func (tv TrustVector) Combine(other TrustVector) TrustVector {
	var out TrustVector
	for i := range tv {
		out[i] = 1 - (1-tv[i])*(1-other[i])
	}
	return out
}

func (tv TrustVector) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range tv {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s:%.2f", dimensionNames[i], x)
	}
	b.WriteByte(']')
	return b.String()
}

// Value is an immutable runtime value on the VM stack.
//
// The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	tv   TrustVector
	arr  []Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a float64.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// DID wraps an identity reference.
func DID(id string) Value { return Value{kind: KindDID, s: id} }

// Trust wraps a trust vector.
func Trust(tv TrustVector) Value { return Value{kind: KindTrustVector, tv: tv} }

// Array wraps a list of values. The slice is copied.
func Array(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindArray, arr: cp}
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// TypeName returns the ECL type name of the value.
func (v Value) TypeName() string { return v.kind.String() }

// IsNull reports whether v is Null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool coerces v to a boolean. Null is false and numbers are true when
// non-zero; every other kind is a type mismatch.
func (v Value) AsBool() (bool, error) {
	switch v.kind {
	case KindBool:
		return v.b, nil
	case KindNull:
		return false, nil
	case KindNumber:
		return v.n != 0, nil
	}
	return false, &TypeMismatchError{Expected: "bool", Got: v.TypeName()}
}

// AsNumber coerces v to a float64. Booleans map to 1 and 0.
func (v Value) AsNumber() (float64, error) {
	switch v.kind {
	case KindNumber:
		return v.n, nil
	case KindBool:
		if v.b {
			return 1, nil
		}
		return 0, nil
	}
	return 0, &TypeMismatchError{Expected: "number", Got: v.TypeName()}
}

// AsString returns the text of a String or DID value.
func (v Value) AsString() (string, error) {
	switch v.kind {
	case KindString, KindDID:
		return v.s, nil
	}
	return "", &TypeMismatchError{Expected: "string", Got: v.TypeName()}
}

// AsTrustVector returns the vector of a TrustVector value.
func (v Value) AsTrustVector() (TrustVector, error) {
	if v.kind != KindTrustVector {
		return TrustVector{}, &TypeMismatchError{Expected: "trust_vector", Got: v.TypeName()}
	}
	return v.tv, nil
}

// AsArray returns a copy of the elements of an Array value.
func (v Value) AsArray() ([]Value, error) {
	if v.kind != KindArray {
		return nil, &TypeMismatchError{Expected: "array", Got: v.TypeName()}
	}
	cp := make([]Value, len(v.arr))
	copy(cp, v.arr)
	return cp, nil
}

// IsTruthy implements the language truthiness rules.
func (v Value) IsTruthy() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n != 0
	case KindString, KindDID:
		return v.s != ""
	case KindTrustVector:
		return true
	case KindArray:
		return len(v.arr) > 0
	}
	return false
}

// Equal reports structural equality. Numbers compare with ==, so NaN is
// never equal to itself.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindString, KindDID:
		return v.s == o.s
	case KindTrustVector:
		return v.tv == o.tv
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// identical is Equal except that NaN matches NaN; used when comparing
// programs rather than evaluating them.
func (v Value) identical(o Value) bool {
	if v.kind == KindNumber && o.kind == KindNumber && math.IsNaN(v.n) && math.IsNaN(o.n) {
		return true
	}
	if v.kind == KindArray && o.kind == KindArray && len(v.arr) == len(o.arr) {
		for i := range v.arr {
			if !v.arr[i].identical(o.arr[i]) {
				return false
			}
		}
		return true
	}
	return v.Equal(o)
}

// String renders the value in ECL display form.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return formatNumber(v.n)
	case KindString:
		return strconv.Quote(v.s)
	case KindDID:
		return "did:" + v.s
	case KindTrustVector:
		return v.tv.String()
	case KindArray:
		parts := make([]string, len(v.arr))
		for i, item := range v.arr {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return "<invalid>"
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
