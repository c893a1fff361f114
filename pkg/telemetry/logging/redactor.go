package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// didPattern matches did:<method>:<identifier>.
var didPattern = regexp.MustCompile(`did:([a-z0-9]+):([A-Za-z0-9._%-]+)`)

// keep is the number of identifier characters left visible.
const keep = 4

var sensitiveKeys = []string{"secret", "token", "password", "private_key", "api_key"}

// Redactor shortens DIDs and hides sensitive values.
type Redactor struct{}

// NewRedactor creates a Redactor.
func NewRedactor() *Redactor {
	return &Redactor{}
}

// RedactString shortens every DID in s.
func (r *Redactor) RedactString(s string) string {
	if !strings.Contains(s, "did:") {
		return s
	}
	return didPattern.ReplaceAllStringFunc(s, RedactDID)
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr hook.
func (r *Redactor) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, "***")
	}
	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, r.RedactString(a.Value.String()))
	}
	return a
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// RedactDID keeps the method and the first characters of the identifier.
func RedactDID(did string) string {
	m := didPattern.FindStringSubmatch(did)
	if m == nil {
		return did
	}
	id := m[2]
	if len(id) <= keep {
		return "did:" + m[1] + ":***"
	}
	return "did:" + m[1] + ":" + id[:keep] + "***"
}
