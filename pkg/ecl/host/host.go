package host

import (
	"context"

	"erynoa/eclvm/pkg/ecl/bytecode"
)

// Facts supplies the read-only identity facts consumed by VM opcodes.
type Facts interface {
	// GetTrustVector returns the trust of did. Unknown identities get
	// bytecode.NewcomerTrust rather than an error.
	GetTrustVector(ctx context.Context, did string) (bytecode.TrustVector, error)
	HasCredential(ctx context.Context, did, schema string) (bool, error)
	GetBalance(ctx context.Context, did string) (uint64, error)
	ResolveDID(ctx context.Context, did string) (bool, error)
	// GetTimestamp returns seconds since the Unix epoch.
	GetTimestamp(ctx context.Context) (uint64, error)
}

// StoreRef names a store. Personal stores are private to the calling
// identity; shared stores belong to the realm.
type StoreRef struct {
	Name     string
	Personal bool
}

func (r StoreRef) String() string {
	if r.Personal {
		return "personal/" + r.Name
	}
	return "shared/" + r.Name
}

// Store is the keyed store capability.
type Store interface {
	// StoreGet returns nil when the key does not exist.
	StoreGet(ctx context.Context, ref StoreRef, key string) (*StoreValue, error)
	StorePut(ctx context.Context, ref StoreRef, key string, value StoreValue) error
	// StoreDelete reports whether the key existed.
	StoreDelete(ctx context.Context, ref StoreRef, key string) (bool, error)
	StoreExists(ctx context.Context, ref StoreRef, key string) (bool, error)
	StoreCount(ctx context.Context, ref StoreRef) (uint64, error)
	// StoreListKeys returns up to limit keys with the given prefix in
	// lexical order. A limit of zero or less means no limit.
	StoreListKeys(ctx context.Context, ref StoreRef, prefix string, limit int) ([]string, error)
}

// Schema is the store schema evolution capability.
type Schema interface {
	// EvolveSchema proposes changes to a store schema. Non-breaking
	// changes are active immediately; breaking ones start pending.
	EvolveSchema(ctx context.Context, store string, changes []SchemaChange, description string) (*EvolutionResult, error)
	SchemaVersion(ctx context.Context, store string) (uint32, error)
	SchemaHistory(ctx context.Context, store string) (*SchemaHistory, error)
	// ActivateSchema activates a pending version whose challenge period has ended.
	ActivateSchema(ctx context.Context, store string, version uint32) error
	// RejectSchema rejects a pending version.
	RejectSchema(ctx context.Context, store string, version uint32, reason string) error
	// EvolutionCost returns the mana cost EvolveSchema would charge.
	EvolutionCost(changes []SchemaChange) uint64
}

// Host is the full capability set available to a policy execution.
type Host interface {
	Facts
	Store
	Schema

	// Log records a message emitted by the policy.
	Log(msg string)
	// GetMetric returns a named runtime metric if the host exposes it.
	GetMetric(name string) (float64, bool)
}

// Unsupported implements Store and Schema by returning ErrNotSupported.
// Adapters embed it for the capabilities they do not provide.
type Unsupported struct{}

func (Unsupported) StoreGet(context.Context, StoreRef, string) (*StoreValue, error) {
	return nil, notSupported("store_get")
}

func (Unsupported) StorePut(context.Context, StoreRef, string, StoreValue) error {
	return notSupported("store_put")
}

func (Unsupported) StoreDelete(context.Context, StoreRef, string) (bool, error) {
	return false, notSupported("store_delete")
}

func (Unsupported) StoreExists(context.Context, StoreRef, string) (bool, error) {
	return false, notSupported("store_exists")
}

func (Unsupported) StoreCount(context.Context, StoreRef) (uint64, error) {
	return 0, notSupported("store_count")
}

func (Unsupported) StoreListKeys(context.Context, StoreRef, string, int) ([]string, error) {
	return nil, notSupported("store_list_keys")
}

func (Unsupported) EvolveSchema(context.Context, string, []SchemaChange, string) (*EvolutionResult, error) {
	return nil, notSupported("schema_evolve")
}

func (Unsupported) SchemaVersion(context.Context, string) (uint32, error) {
	return 0, notSupported("schema_version")
}

func (Unsupported) SchemaHistory(context.Context, string) (*SchemaHistory, error) {
	return nil, notSupported("schema_history")
}

func (Unsupported) ActivateSchema(context.Context, string, uint32) error {
	return notSupported("schema_activate")
}

func (Unsupported) RejectSchema(context.Context, string, uint32, string) error {
	return notSupported("schema_reject")
}

func (Unsupported) EvolutionCost([]SchemaChange) uint64 { return 0 }
