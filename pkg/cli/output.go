package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"erynoa/eclvm/pkg/ecl/ast"
)

// OutputFormat represents the output format for command results.
type OutputFormat string

const (
	// FormatText is plain text output (default).
	FormatText OutputFormat = "text"
	// FormatJSON is indented JSON output.
	FormatJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --format flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", NewConfigError("format", fmt.Sprintf("unknown output format %q (must be text or json)", s))
}

// Formatter formats command output.
type Formatter interface {
	FormatTo(w io.Writer, data any) error
}

// TextFormatter prints data with %v, or through its String method.
type TextFormatter struct{}

// FormatTo writes data to w in text format.
func (f *TextFormatter) FormatTo(w io.Writer, data any) error {
	_, err := fmt.Fprintf(w, "%v\n", data)
	return err
}

// JSONFormatter formats output as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatTo writes data to w in JSON format.
func (f *JSONFormatter) FormatTo(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	if f.Indent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// NewFormatter creates a new formatter for the specified format.
func NewFormatter(format OutputFormat) Formatter {
	if format == FormatJSON {
		return &JSONFormatter{Indent: true}
	}
	return &TextFormatter{}
}

// DiagnosticJSON is the machine-readable form of an ast.Diagnostic.
type DiagnosticJSON struct {
	Severity   string `json:"severity"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	File       string `json:"file,omitempty"`
	Line       int    `json:"line,omitempty"`
	Column     int    `json:"column,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// DiagnosticsJSON converts diagnostics for JSON output.
func DiagnosticsJSON(ds *ast.Diagnostics) []DiagnosticJSON {
	if ds == nil {
		return nil
	}
	out := make([]DiagnosticJSON, 0, ds.Count())
	for _, d := range ds.Items() {
		out = append(out, DiagnosticJSON{
			Severity:   d.Severity.String(),
			Code:       string(d.Code),
			Message:    d.Message,
			File:       d.Location.File,
			Line:       d.Location.Line,
			Column:     d.Location.Column,
			Suggestion: d.Suggestion,
		})
	}
	return out
}

// PrintDiagnostics writes one rustc-style block per diagnostic and a
// summary line. It returns the number of errors.
func PrintDiagnostics(w io.Writer, ds *ast.Diagnostics) int {
	if ds == nil {
		return 0
	}
	errs, warns := 0, 0
	for _, d := range ds.Items() {
		fmt.Fprintln(w, d.Error())
		if d.Severity == ast.SeverityWarning {
			warns++
		} else {
			errs++
		}
	}
	if errs+warns > 0 {
		fmt.Fprintf(w, "\n%d error(s), %d warning(s)\n", errs, warns)
	}
	return errs
}
