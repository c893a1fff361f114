package bytecode

import (
	"errors"
	"testing"
)

// TestValue_AsBool tests boolean coercion rules.
func TestValue_AsBool(t *testing.T) {
	tests := []struct {
		name    string
		value   Value
		want    bool
		wantErr bool
	}{
		{"true", Bool(true), true, false},
		{"false", Bool(false), false, false},
		{"null is false", Null(), false, false},
		{"zero is false", Number(0), false, false},
		{"non-zero is true", Number(-2.5), true, false},
		{"string is an error", String("yes"), false, true},
		{"did is an error", DID("alice"), false, true},
		{"trust is an error", Trust(NewcomerTrust), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.value.AsBool()
			if tt.wantErr {
				var tm *TypeMismatchError
				if !errors.As(err, &tm) {
					t.Fatalf("Expected TypeMismatchError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("AsBool failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

// TestValue_AsNumber tests numeric coercion including booleans.
func TestValue_AsNumber(t *testing.T) {
	if n, err := Bool(true).AsNumber(); err != nil || n != 1 {
		t.Errorf("Expected 1, got %v (%v)", n, err)
	}
	if n, err := Bool(false).AsNumber(); err != nil || n != 0 {
		t.Errorf("Expected 0, got %v (%v)", n, err)
	}
	if _, err := String("1").AsNumber(); err == nil {
		t.Error("Expected error for string operand")
	}
	if _, err := Null().AsNumber(); err == nil {
		t.Error("Expected error for null operand")
	}
}

// TestValue_AsString tests that DIDs are accepted where strings are.
func TestValue_AsString(t *testing.T) {
	s, err := DID("did:erynoa:alice").AsString()
	if err != nil {
		t.Fatalf("AsString failed: %v", err)
	}
	if s != "did:erynoa:alice" {
		t.Errorf("Expected did text, got %q", s)
	}
	if _, err := Number(1).AsString(); err == nil {
		t.Error("Expected error for number operand")
	}
}

// TestValue_IsTruthy tests truthiness per kind.
func TestValue_IsTruthy(t *testing.T) {
	tests := []struct {
		value Value
		want  bool
	}{
		{Null(), false},
		{Bool(true), true},
		{Number(0), false},
		{Number(3), true},
		{String(""), false},
		{String("x"), true},
		{DID(""), false},
		{DID("a"), true},
		{Trust(TrustVector{}), true},
		{Array(), false},
		{Array(Null()), true},
	}

	for _, tt := range tests {
		if got := tt.value.IsTruthy(); got != tt.want {
			t.Errorf("IsTruthy(%s) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

// TestValue_Equal tests structural equality.
func TestValue_Equal(t *testing.T) {
	if !Array(Number(1), String("a")).Equal(Array(Number(1), String("a"))) {
		t.Error("Expected equal arrays")
	}
	if Array(Number(1)).Equal(Array(Number(2))) {
		t.Error("Expected different arrays")
	}
	if String("a").Equal(DID("a")) {
		t.Error("String and DID must not be equal")
	}
	if !Null().Equal(Value{}) {
		t.Error("Zero value must equal Null")
	}
}

// TestValue_String tests display formatting.
func TestValue_String(t *testing.T) {
	tests := []struct {
		value Value
		want  string
	}{
		{Null(), "null"},
		{Bool(false), "false"},
		{Number(20), "20"},
		{Number(0.5), "0.5"},
		{String("hi"), `"hi"`},
		{DID("alice"), "did:alice"},
		{Trust(TrustVector{0.8, 0.7, 0.6, 0.5, 0.4, 0.3}), "[R:0.80, I:0.70, C:0.60, P:0.50, V:0.40, Ω:0.30]"},
		{Array(Number(1), Bool(true)), "[1, true]"},
	}

	for _, tt := range tests {
		if got := tt.value.String(); got != tt.want {
			t.Errorf("Expected %s, got %s", tt.want, got)
		}
	}
}

// TestTrustVector_NormAndCombine tests the trust primitives.
func TestTrustVector_NormAndCombine(t *testing.T) {
	tv := TrustVector{0.6, 0.6, 0.6, 0.6, 0.6, 0.6}
	if n := tv.Norm(); n < 0.5999 || n > 0.6001 {
		t.Errorf("Expected norm 0.6, got %v", n)
	}
	c := TrustVector{0.5, 0, 1, 0.5, 0.5, 0.5}.Combine(TrustVector{0.5, 0.5, 0.5, 0, 1, 0.5})
	want := TrustVector{0.75, 0.5, 1, 0.5, 1, 0.75}
	if c != want {
		t.Errorf("Expected %v, got %v", want, c)
	}
}

// TestParseDimension tests dimension selectors.
func TestParseDimension(t *testing.T) {
	for _, sel := range []string{"omega", "Ω"} {
		d, ok := ParseDimension(sel)
		if !ok || d != DimOmega {
			t.Errorf("ParseDimension(%q) = %v, %v", sel, d, ok)
		}
	}
	if _, ok := ParseDimension("X"); ok {
		t.Error("Expected unknown selector to fail")
	}
}
