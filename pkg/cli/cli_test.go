package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"erynoa/eclvm/pkg/ecl/ast"
	"erynoa/eclvm/pkg/ecl/vm"
)

// TestExitCode tests the mapping from errors to exit codes.
func TestExitCode(t *testing.T) {
	diags := ast.NewDiagnostics()
	diags.Errorf(ast.CodeUnknownField, ast.Location{Line: 1, Column: 2}, "unknown field")

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"generic", errors.New("boom"), ExitFailure},
		{"denied", fmt.Errorf("run: %w", ErrDenied), ExitDenied},
		{"rejected", &vm.PolicyRejectedError{Message: "no"}, ExitDenied},
		{"diagnostics", NewCommandError("check", diags.Err()), ExitCompile},
		{"gas", &vm.OutOfGasError{Limit: 1, Attempted: 2}, ExitResource},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.name, tt.want, got)
		}
	}
}

// TestFormatter tests text and JSON output.
func TestFormatter(t *testing.T) {
	if _, err := ParseOutputFormat("csv"); err == nil {
		t.Error("Expected error for csv")
	}

	var buf bytes.Buffer
	f := NewFormatter(FormatJSON)
	if err := f.FormatTo(&buf, map[string]bool{"allowed": true}); err != nil {
		t.Fatalf("FormatTo failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"allowed": true`) {
		t.Errorf("Unexpected JSON %q", buf.String())
	}

	buf.Reset()
	if err := NewFormatter(FormatText).FormatTo(&buf, 42); err != nil || buf.String() != "42\n" {
		t.Errorf("Unexpected text %q (%v)", buf.String(), err)
	}
}

// TestPrintDiagnostics tests the diagnostic report.
func TestPrintDiagnostics(t *testing.T) {
	diags := ast.NewDiagnostics()
	diags.Errorf(ast.CodeUnknownFunction, ast.Location{File: "a.ecl", Line: 3, Column: 5}, "unknown function 'credentail'")
	diags.Warnf(ast.CodeUnsupportedExpr, ast.Location{File: "a.ecl", Line: 4, Column: 1}, "ignored")

	var buf bytes.Buffer
	if n := PrintDiagnostics(&buf, diags); n != 1 {
		t.Errorf("Expected 1 error, got %d", n)
	}
	out := buf.String()
	for _, want := range []string{"error[E102]", "--> a.ecl:3:5", "1 error(s), 1 warning(s)"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in %q", want, out)
		}
	}

	js := DiagnosticsJSON(diags)
	if len(js) != 2 || js[0].Code != "E102" || js[0].Line != 3 {
		t.Errorf("Unexpected JSON diagnostics %+v", js)
	}
}

// TestProgress tests the progress bar output.
func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressReporter(&buf, "files")
	p.Start(4)
	p.Update(2)
	p.Finish()
	if !strings.Contains(buf.String(), "2/4 files") || !strings.Contains(buf.String(), "4/4 files") {
		t.Errorf("Unexpected progress %q", buf.String())
	}
	p.Error(errors.New("bad file"))
	if !strings.Contains(buf.String(), "✗ bad file") {
		t.Errorf("Expected error line in %q", buf.String())
	}
}

// TestSetupSignalHandler tests that the context follows its parent.
func TestSetupSignalHandler(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, stop := SetupSignalHandler(parent)
	defer stop()

	cancel()
	<-ctx.Done()
	if !errors.Is(ctx.Err(), context.Canceled) {
		t.Errorf("Expected canceled, got %v", ctx.Err())
	}
}
