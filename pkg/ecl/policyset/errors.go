package policyset

import "fmt"

// LoadError reports a file that could not be read or parsed.
type LoadError struct {
	Path    string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

func (e *LoadError) Unwrap() error { return e.Cause }

// ManifestError reports an inconsistent realm manifest.
type ManifestError struct {
	Realm   string
	Message string
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("realm %q: %s", e.Realm, e.Message)
}
