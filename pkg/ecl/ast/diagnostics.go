package ast

import (
	"fmt"
	"sort"
	"strings"
)

// Severity ranks a diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Code is a stable diagnostic identifier. Parse problems use E0xx and
// compile problems E1xx.
type Code string

const (
	CodeUnexpectedToken    Code = "E001"
	CodeUnterminatedString Code = "E002"
	CodeInvalidNumber      Code = "E003"
	CodeUnexpectedChar     Code = "E004"

	CodeUnknownField      Code = "E101"
	CodeUnknownFunction   Code = "E102"
	CodeUnsupportedExpr   Code = "E103"
	CodeArgumentCount     Code = "E104"
	CodeDuplicateConstant Code = "E105"
	CodeUnknownPolicy     Code = "E106"
	CodeDuplicatePolicy   Code = "E107"
)

// Diagnostic is a single parse or compile finding.
type Diagnostic struct {
	Severity   Severity
	Code       Code
	Message    string
	Location   Location
	Suggestion string
}

// Error formats the diagnostic as
//
//	error[E101]: unknown field 'trsut'
//	  --> policy.ecl:3:17
//	  = suggestion: did you mean 'trust'?
func (d *Diagnostic) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s[%s]: %s", d.Severity, d.Code, d.Message)
	if d.Location.IsValid() {
		fmt.Fprintf(&sb, "\n  --> %s", d.Location)
	}
	if d.Suggestion != "" {
		fmt.Fprintf(&sb, "\n  = suggestion: %s", d.Suggestion)
	}
	return sb.String()
}

// Diagnostics accumulates findings so that tooling can report every
// problem in a file at once instead of stopping at the first.
type Diagnostics struct {
	items []*Diagnostic
}

// NewDiagnostics returns an empty collector.
func NewDiagnostics() *Diagnostics {
	return &Diagnostics{}
}

// Add appends a diagnostic.
func (ds *Diagnostics) Add(d *Diagnostic) {
	ds.items = append(ds.items, d)
}

// Errorf records an error.
func (ds *Diagnostics) Errorf(code Code, loc Location, format string, args ...any) *Diagnostic {
	d := &Diagnostic{Severity: SeverityError, Code: code, Message: fmt.Sprintf(format, args...), Location: loc}
	ds.Add(d)
	return d
}

// Warnf records a warning.
func (ds *Diagnostics) Warnf(code Code, loc Location, format string, args ...any) *Diagnostic {
	d := &Diagnostic{Severity: SeverityWarning, Code: code, Message: fmt.Sprintf(format, args...), Location: loc}
	ds.Add(d)
	return d
}

// Merge appends all diagnostics from other.
func (ds *Diagnostics) Merge(other *Diagnostics) {
	if other == nil {
		return
	}
	ds.items = append(ds.items, other.items...)
}

// Items returns the diagnostics in source order.
func (ds *Diagnostics) Items() []*Diagnostic {
	out := make([]*Diagnostic, len(ds.items))
	copy(out, ds.items)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Location, out[j].Location
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
	return out
}

// Count returns the number of diagnostics of any severity.
func (ds *Diagnostics) Count() int { return len(ds.items) }

// HasErrors reports whether at least one error-severity diagnostic exists.
func (ds *Diagnostics) HasErrors() bool {
	for _, d := range ds.items {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ByCode returns all diagnostics with the given code.
func (ds *Diagnostics) ByCode(code Code) []*Diagnostic {
	var out []*Diagnostic
	for _, d := range ds.items {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}

// Error joins every diagnostic.
func (ds *Diagnostics) Error() string {
	items := ds.Items()
	var sb strings.Builder
	fmt.Fprintf(&sb, "found %d problem(s):", len(items))
	for _, d := range items {
		sb.WriteString("\n")
		sb.WriteString(d.Error())
	}
	return sb.String()
}

// Err returns nil unless at least one error was recorded.
func (ds *Diagnostics) Err() error {
	if !ds.HasErrors() {
		return nil
	}
	return ds
}

// Suggest returns "did you mean 'x'?" for the closest candidate within a
// small edit distance, or "" when nothing is close.
func Suggest(unknown string, candidates []string) string {
	best, bestDist := "", 3
	for _, c := range candidates {
		if d := levenshtein(unknown, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	if best == "" {
		return ""
	}
	return fmt.Sprintf("did you mean '%s'?", best)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
