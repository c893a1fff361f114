package policyset

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"erynoa/eclvm/pkg/ecl/bytecode"
	"erynoa/eclvm/pkg/ecl/gateway"
)

// ManifestFile is the manifest name inside a policy set directory.
const ManifestFile = "realms.yaml"

// Manifest maps realms to their policies.
type Manifest struct {
	Realms map[string]RealmManifest `yaml:"realms"`
}

// RealmManifest configures one realm.
type RealmManifest struct {
	// Entry names the entry policy. Empty uses the gateway default.
	Entry string `yaml:"entry"`
	// Damping holds one factor per trust dimension. Empty uses the
	// gateway default.
	Damping []float64 `yaml:"damping"`
	// Policies lists policy names by kind.
	Policies map[string][]string `yaml:"policies"`
}

var knownKinds = map[string]bool{
	gateway.KindEntry:      true,
	gateway.KindAPI:        true,
	gateway.KindUI:         true,
	gateway.KindDataLogic:  true,
	gateway.KindGovernance: true,
	gateway.KindController: true,
}

// ReadManifest reads and validates a manifest file.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Message: "failed to read manifest", Cause: err}
	}
	return ParseManifest(path, data)
}

// ParseManifest decodes a manifest. Unknown keys are rejected.
func ParseManifest(path string, data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, &LoadError{Path: path, Message: "invalid manifest", Cause: err}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks kinds and damping factors.
func (m *Manifest) Validate() error {
	for name, r := range m.Realms {
		if len(r.Damping) != 0 {
			if len(r.Damping) != bytecode.NumDimensions {
				return &ManifestError{Realm: name, Message: fmt.Sprintf("damping needs %d factors, got %d", bytecode.NumDimensions, len(r.Damping))}
			}
			for _, f := range r.Damping {
				if f < 0 || f > 1 {
					return &ManifestError{Realm: name, Message: fmt.Sprintf("damping factor %v outside [0, 1]", f)}
				}
			}
		}
		for kind := range r.Policies {
			if !knownKinds[kind] {
				return &ManifestError{Realm: name, Message: fmt.Sprintf("unknown policy kind %q", kind)}
			}
		}
	}
	return nil
}

func (r RealmManifest) damping() *gateway.Damping {
	if len(r.Damping) != bytecode.NumDimensions {
		return nil
	}
	var d gateway.Damping
	copy(d.Factors[:], r.Damping)
	return &d
}
