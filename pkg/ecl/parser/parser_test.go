package parser

import (
	"strings"
	"testing"
	"time"

	"erynoa/eclvm/pkg/ecl/ast"
)

const financePolicy = `// Finance realm entry
const MIN_TRUST = 0.7

policy "finance_entry" "KYC plus reliability" {
    require sender.trust.R >= MIN_TRUST, "insufficient trust"
    let kyc = sender.credential("kyc-verified")
    if kyc && balance(sender) > 100 {
        emit "finance.admit"
    } else {
        require false, "no kyc"
    }
    return true
}
`

// TestParseFile_Policy tests parsing a complete policy file.
func TestParseFile_Policy(t *testing.T) {
	f, diags := ParseFile("finance.ecl", financePolicy)
	if diags.HasErrors() {
		t.Fatalf("ParseFile failed: %v", diags.Err())
	}
	if len(f.Consts) != 1 || f.Consts[0].Name != "MIN_TRUST" || f.Consts[0].Value.Number != 0.7 {
		t.Fatalf("Unexpected consts: %+v", f.Consts)
	}
	pol := f.Policy("finance_entry")
	if pol == nil {
		t.Fatal("Expected policy finance_entry")
	}
	if pol.Description != "KYC plus reliability" {
		t.Errorf("Expected description, got %q", pol.Description)
	}
	if len(pol.Body) != 4 {
		t.Fatalf("Expected 4 statements, got %d", len(pol.Body))
	}

	req, ok := pol.Body[0].(*ast.Require)
	if !ok || !req.HasMessage || req.Message != "insufficient trust" {
		t.Fatalf("Expected require with message, got %#v", pol.Body[0])
	}
	cmp, ok := req.Cond.(*ast.Binary)
	if !ok || cmp.Op != ast.OpGte {
		t.Fatalf("Expected >= comparison, got %#v", req.Cond)
	}
	dim, ok := cmp.Left.(*ast.TrustDim)
	if !ok || dim.Dim != "R" {
		t.Fatalf("Expected trust dimension R, got %#v", cmp.Left)
	}
	if m, ok := dim.X.(*ast.Member); !ok || m.Field != "trust" {
		t.Errorf("Expected .trust member, got %#v", dim.X)
	}

	let := pol.Body[1].(*ast.Let)
	call, ok := let.Value.(*ast.Call)
	if !ok || call.Func != "credential" || !call.Method || len(call.Args) != 2 {
		t.Fatalf("Expected desugared method call, got %#v", let.Value)
	}
	if id, ok := call.Args[0].(*ast.Ident); !ok || id.Name != "sender" {
		t.Errorf("Expected receiver as first argument, got %#v", call.Args[0])
	}

	ifs := pol.Body[2].(*ast.If)
	if len(ifs.Then) != 1 || len(ifs.Else) != 1 {
		t.Errorf("Expected one statement per branch, got %d/%d", len(ifs.Then), len(ifs.Else))
	}
	if req.Location.Line != 5 || req.Location.File != "finance.ecl" {
		t.Errorf("Unexpected location %s", req.Location)
	}
}

// TestParseExpr_Precedence tests operator binding.
func TestParseExpr_Precedence(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"1 + 2 * 3", "1 + 2 * 3"},
		{"(1 + 2) * 3", "(1 + 2) * 3"},
		{"a || b && c", "a || b && c"},
		{"(a || b) && c", "(a || b) && c"},
		{"!a == b", "!a == b"},
		{"-x.R", "-x.R"},
		{"1 - (2 - 3)", "1 - (2 - 3)"},
		{"sender.trust.omega", "sender.trust.Ω"},
		{"f(1,\n 2)", "f(1, 2)"},
	}

	for _, tt := range tests {
		e, diags := ParseExpr(tt.src)
		if diags.HasErrors() {
			t.Errorf("ParseExpr(%q) failed: %v", tt.src, diags.Err())
			continue
		}
		if got := ast.FormatExpr(e); got != tt.want {
			t.Errorf("ParseExpr(%q) formatted as %q, want %q", tt.src, got, tt.want)
		}
	}
}

// TestParseFile_ErrorRecovery tests that every bad statement is reported.
func TestParseFile_ErrorRecovery(t *testing.T) {
	src := `policy "broken" {
    let = 5
    require sender.trust.R >= )
    emit "ok"
    let x = "unterminated
}
`
	f, diags := ParseFile("broken.ecl", src)
	if !diags.HasErrors() {
		t.Fatal("Expected errors")
	}
	if got := len(diags.ByCode(ast.CodeUnexpectedToken)); got < 2 {
		t.Errorf("Expected at least 2 unexpected token errors, got %d: %v", got, diags)
	}
	if len(diags.ByCode(ast.CodeUnterminatedString)) != 1 {
		t.Errorf("Expected unterminated string error: %v", diags)
	}
	pol := f.Policy("broken")
	if pol == nil {
		t.Fatal("Expected the policy to survive recovery")
	}
	var emits int
	for _, s := range pol.Body {
		if _, ok := s.(*ast.Emit); ok {
			emits++
		}
	}
	if emits != 1 {
		t.Errorf("Expected the valid emit statement to be kept, got %d", emits)
	}
}

// TestParseStmts_StrayBrace tests that a closing brace with no open block
// is reported and skipped.
func TestParseStmts_StrayBrace(t *testing.T) {
	tests := []struct {
		src       string
		wantStmts int
	}{
		{"}", 0},
		{"let a = 1 }", 1},
		{"} }\nemit \"x\"", 1},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			type result struct {
				stmts []ast.Stmt
				diags *ast.Diagnostics
			}
			done := make(chan result, 1)
			go func() {
				stmts, diags := ParseStmts(tt.src)
				done <- result{stmts, diags}
			}()

			select {
			case r := <-done:
				if len(r.stmts) != tt.wantStmts {
					t.Errorf("Expected %d statements, got %d", tt.wantStmts, len(r.stmts))
				}
				if len(r.diags.ByCode(ast.CodeUnexpectedToken)) == 0 {
					t.Errorf("Expected an unexpected token error, got %v", r.diags)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("ParseStmts did not return")
			}
		})
	}
}

// TestParseFile_UnexpectedCharacter tests lexical errors.
func TestParseFile_UnexpectedCharacter(t *testing.T) {
	_, diags := ParseFile("x.ecl", "policy \"p\" { require 1 # 2 }")
	if len(diags.ByCode(ast.CodeUnexpectedChar)) != 1 {
		t.Errorf("Expected E004, got %v", diags)
	}
}

// TestFormat_Stable tests that formatting is a fixed point.
func TestFormat_Stable(t *testing.T) {
	f, diags := ParseFile("finance.ecl", financePolicy)
	if diags.HasErrors() {
		t.Fatalf("ParseFile failed: %v", diags.Err())
	}
	once := ast.Format(f)
	f2, diags := ParseFile("finance.ecl", once)
	if diags.HasErrors() {
		t.Fatalf("Reparse failed: %v\n%s", diags.Err(), once)
	}
	twice := ast.Format(f2)
	if once != twice {
		t.Errorf("Format not stable:\n%s\n---\n%s", once, twice)
	}
	if !strings.Contains(once, `require sender.trust.R >= MIN_TRUST, "insufficient trust"`) {
		t.Errorf("Unexpected formatting:\n%s", once)
	}
	if !strings.Contains(once, `let kyc = sender.credential("kyc-verified")`) {
		t.Errorf("Expected method call form to be preserved:\n%s", once)
	}
}

// TestFormat_ElseIf tests else-if chains.
func TestFormat_ElseIf(t *testing.T) {
	src := "policy \"p\" {\n if a {\n return 1\n }\n else if b {\n return 2\n } else {\n return 3\n }\n}"
	f, diags := ParseFile("", src)
	if diags.HasErrors() {
		t.Fatalf("ParseFile failed: %v", diags.Err())
	}
	want := "policy \"p\" {\n    if a {\n        return 1\n    } else if b {\n        return 2\n    } else {\n        return 3\n    }\n}\n"
	if got := ast.Format(f); got != want {
		t.Errorf("Unexpected format:\n%s\nwant:\n%s", got, want)
	}
}

// TestTree tests the tree view.
func TestTree(t *testing.T) {
	f, _ := ParseFile("finance.ecl", financePolicy)
	out := ast.Tree(f)
	for _, want := range []string{"file finance.ecl", `policy "finance_entry"`, "trust_dim .R", "call credential"} {
		if !strings.Contains(out, want) {
			t.Errorf("Tree missing %q:\n%s", want, out)
		}
	}
}
