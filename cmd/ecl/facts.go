package main

import (
	"encoding/json"
	"fmt"
	"os"

	"erynoa/eclvm/pkg/ecl/bytecode"
	"erynoa/eclvm/pkg/ecl/host"
)

// DefaultCaller is the identity used when no context file names one.
const DefaultCaller = "did:erynoa:cli"

// identityFacts describes one identity known to the stub host.
type identityFacts struct {
	Trust       []float64 `json:"trust,omitempty" yaml:"trust,omitempty"`
	Balance     uint64    `json:"balance,omitempty" yaml:"balance,omitempty"`
	Credentials []string  `json:"credentials,omitempty" yaml:"credentials,omitempty"`
}

// runContext is the JSON file passed with --context:
//
//	{"caller": "did:erynoa:alice", "realm": "finance",
//	 "trust": [0.8, 0.6, 0.5, 0.4, 0.3, 0.2], "balance": 100,
//	 "credentials": ["kyc"], "dids": ["did:erynoa:bob"],
//	 "identities": {"did:erynoa:bob": {"trust": [...]}}}
type runContext struct {
	Caller        string `json:"caller" yaml:"caller"`
	Realm         string `json:"realm" yaml:"realm"`
	identityFacts `yaml:",inline"`
	DIDs          []string                 `json:"dids,omitempty" yaml:"dids,omitempty"`
	Identities    map[string]identityFacts `json:"identities,omitempty" yaml:"identities,omitempty"`
}

// loadRunContext reads path, or returns an empty context when path is "".
func loadRunContext(path string) (*runContext, error) {
	rc := &runContext{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read context %s: %w", path, err)
		}
		if err := json.Unmarshal(data, rc); err != nil {
			return nil, fmt.Errorf("failed to parse context %s: %w", path, err)
		}
	}
	rc.applyDefaults()
	return rc, nil
}

func (rc *runContext) applyDefaults() {
	if rc.Caller == "" {
		rc.Caller = DefaultCaller
	}
	if rc.Realm == "" {
		rc.Realm = "cli"
	}
}

// callerTrust returns the caller's trust, newcomer trust when unset.
func (rc *runContext) callerTrust() (bytecode.TrustVector, error) {
	return parseTrust(rc.Trust)
}

// stubHost builds a StubHost holding every identity of the context.
func (rc *runContext) stubHost() (*host.StubHost, error) {
	h := host.NewStubHost()
	if err := addIdentity(h, rc.Caller, rc.identityFacts); err != nil {
		return nil, err
	}
	for did, facts := range rc.Identities {
		if err := addIdentity(h, did, facts); err != nil {
			return nil, err
		}
	}
	for _, did := range rc.DIDs {
		h.WithDID(did)
	}
	return h, nil
}

func addIdentity(h *host.StubHost, did string, facts identityFacts) error {
	tv, err := parseTrust(facts.Trust)
	if err != nil {
		return fmt.Errorf("identity %s: %w", did, err)
	}
	h.WithTrust(did, tv).WithBalance(did, facts.Balance)
	for _, schema := range facts.Credentials {
		h.WithCredential(did, schema)
	}
	return nil
}

func parseTrust(values []float64) (bytecode.TrustVector, error) {
	if len(values) == 0 {
		return bytecode.NewcomerTrust, nil
	}
	if len(values) != bytecode.NumDimensions {
		return bytecode.TrustVector{}, fmt.Errorf("trust must have %d values, got %d", bytecode.NumDimensions, len(values))
	}
	var tv bytecode.TrustVector
	for i, v := range values {
		if v < 0 || v > 1 {
			return bytecode.TrustVector{}, fmt.Errorf("trust value %g out of range [0,1]", v)
		}
		tv[i] = v
	}
	return tv, nil
}
