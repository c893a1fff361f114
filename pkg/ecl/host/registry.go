package host

import (
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultChallengePeriod is how long a breaking change stays pending.
	DefaultChallengePeriod = 7 * 24 * time.Hour

	// DefaultBreakingMultiplier scales the cost of breaking change sets.
	DefaultBreakingMultiplier uint64 = 4
)

// RegistryConfig configures a SchemaRegistry.
type RegistryConfig struct {
	ChallengePeriod    time.Duration
	BreakingMultiplier uint64
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// SchemaRegistry tracks schema versions and their lifecycle for a set of
// stores. It is safe for concurrent use.
type SchemaRegistry struct {
	mu     sync.Mutex
	cfg    RegistryConfig
	stores map[string]*schemaState
}

type schemaState struct {
	current  StoreSchema
	versions map[uint32]StoreSchema
	history  []ChangelogEntry
}

// NewSchemaRegistry creates a registry. Zero config fields take defaults.
func NewSchemaRegistry(cfg RegistryConfig) *SchemaRegistry {
	if cfg.ChallengePeriod <= 0 {
		cfg.ChallengePeriod = DefaultChallengePeriod
	}
	if cfg.BreakingMultiplier == 0 {
		cfg.BreakingMultiplier = DefaultBreakingMultiplier
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SchemaRegistry{cfg: cfg, stores: make(map[string]*schemaState)}
}

// Define registers the initial version of a store schema. Defining an
// existing store is an error.
func (r *SchemaRegistry) Define(store, changedBy string, fields map[string]FieldType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stores[store]; ok {
		return fmt.Errorf("%w: store %q already defined", ErrInvalidSchemaChange, store)
	}
	s := StoreSchema{Version: 1, Fields: make(map[string]FieldType, len(fields))}
	for k, v := range fields {
		s.Fields[k] = v
	}
	r.stores[store] = &schemaState{
		current:  s,
		versions: map[uint32]StoreSchema{1: s},
		history: []ChangelogEntry{{
			Version:     1,
			Timestamp:   r.now(),
			ChangedBy:   changedBy,
			Description: "initial schema",
			Status:      ChangeStatus{State: StateActive},
		}},
	}
	return nil
}

// Current returns the active schema of a store.
func (r *SchemaRegistry) Current(store string) (StoreSchema, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.stores[store]
	if !ok {
		return StoreSchema{}, false
	}
	return st.current, true
}

// Cost returns the mana cost of a change set.
func (r *SchemaRegistry) Cost(changes []SchemaChange) uint64 {
	return EvolutionCost(changes, r.cfg.BreakingMultiplier)
}

// Evolve applies changes on top of the active schema of store on behalf
// of changedBy. Breaking change sets start pending for the challenge period.
func (r *SchemaRegistry) Evolve(store, changedBy string, changes []SchemaChange, description string) (*EvolutionResult, error) {
	if len(changes) == 0 {
		return nil, fmt.Errorf("%w: empty change set", ErrInvalidSchemaChange)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.stores[store]
	if !ok {
		st = &schemaState{
			current:  StoreSchema{Fields: map[string]FieldType{}},
			versions: map[uint32]StoreSchema{},
		}
	}
	next, err := st.current.Apply(changes)
	if err != nil {
		return nil, err
	}
	next.Version = st.maxVersion() + 1
	if !ok {
		r.stores[store] = st
	}

	breaking := HasBreakingChanges(changes)
	now := r.now()
	status := ChangeStatus{State: StateActive}
	if breaking {
		status = ChangeStatus{State: StatePending, ChallengeEnds: now + uint64(r.cfg.ChallengePeriod/time.Second)}
	}

	st.versions[next.Version] = next
	st.history = append(st.history, ChangelogEntry{
		Version:           next.Version,
		Timestamp:         now,
		ChangedBy:         changedBy,
		Changes:           append([]SchemaChange(nil), changes...),
		Description:       description,
		RequiredChallenge: breaking,
		Status:            status,
	})
	if !breaking {
		st.activate(next.Version)
	}

	return &EvolutionResult{
		NewVersion: next.Version,
		IsBreaking: breaking,
		Status:     status,
		ManaCost:   EvolutionCost(changes, r.cfg.BreakingMultiplier),
	}, nil
}

// Version returns the active version of store, or 0 when unknown.
func (r *SchemaRegistry) Version(store string) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.stores[store]; ok {
		return st.current.Version
	}
	return 0
}

// History returns a copy of the changelog of store.
func (r *SchemaRegistry) History(store string) (*SchemaHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.stores[store]
	if !ok {
		return nil, fmt.Errorf("%w: store %q", ErrSchemaNotFound, store)
	}
	return &SchemaHistory{
		StoreName:      store,
		CurrentVersion: st.current.Version,
		Changelog:      append([]ChangelogEntry(nil), st.history...),
	}, nil
}

// Activate activates a pending version once its challenge period has ended.
func (r *SchemaRegistry) Activate(store string, version uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, st, err := r.entry(store, version)
	if err != nil {
		return err
	}
	if entry.Status.State != StatePending {
		return fmt.Errorf("%w: version %d is %s", ErrNotPending, version, entry.Status.State)
	}
	if now := r.now(); now < entry.Status.ChallengeEnds {
		return &ChallengeActiveError{Version: version, RemainingSeconds: entry.Status.ChallengeEnds - now}
	}
	st.activate(version)
	return nil
}

// Reject rejects a pending version.
func (r *SchemaRegistry) Reject(store string, version uint32, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, _, err := r.entry(store, version)
	if err != nil {
		return err
	}
	if entry.Status.State != StatePending {
		return fmt.Errorf("%w: version %d is %s", ErrNotPending, version, entry.Status.State)
	}
	entry.Status = ChangeStatus{State: StateRejected, Reason: reason}
	return nil
}

func (r *SchemaRegistry) entry(store string, version uint32) (*ChangelogEntry, *schemaState, error) {
	st, ok := r.stores[store]
	if !ok {
		return nil, nil, fmt.Errorf("%w: store %q", ErrSchemaNotFound, store)
	}
	for i := range st.history {
		if st.history[i].Version == version {
			return &st.history[i], st, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: %s v%d", ErrSchemaNotFound, store, version)
}

func (r *SchemaRegistry) now() uint64 {
	return uint64(r.cfg.Now().Unix())
}

// activate makes version current and marks the previously active version superseded.
func (st *schemaState) activate(version uint32) {
	for i := range st.history {
		e := &st.history[i]
		if e.Version == version {
			e.Status = ChangeStatus{State: StateActive}
		} else if e.Status.State == StateActive {
			e.Status = ChangeStatus{State: StateSuperseded, SupersededBy: version}
		}
	}
	st.current = st.versions[version]
}

func (st *schemaState) maxVersion() uint32 {
	var v uint32
	for _, e := range st.history {
		if e.Version > v {
			v = e.Version
		}
	}
	return v
}

// SchemaRecord is the complete persisted state of one store schema.
type SchemaRecord struct {
	Current  StoreSchema            `json:"current"`
	Versions map[uint32]StoreSchema `json:"versions"`
	History  []ChangelogEntry       `json:"history"`
}

// Record exports the state of store.
func (r *SchemaRegistry) Record(store string) (SchemaRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.stores[store]
	if !ok {
		return SchemaRecord{}, false
	}
	rec := SchemaRecord{
		Current:  st.current,
		Versions: make(map[uint32]StoreSchema, len(st.versions)),
		History:  append([]ChangelogEntry(nil), st.history...),
	}
	for v, s := range st.versions {
		rec.Versions[v] = s
	}
	return rec, true
}

// Restore replaces the state of store with rec.
func (r *SchemaRegistry) Restore(store string, rec SchemaRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.Versions == nil {
		rec.Versions = map[uint32]StoreSchema{}
	}
	if rec.Current.Fields == nil {
		rec.Current.Fields = map[string]FieldType{}
	}
	r.stores[store] = &schemaState{current: rec.Current, versions: rec.Versions, history: rec.History}
}

// Has reports whether store has a schema.
func (r *SchemaRegistry) Has(store string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.stores[store]
	return ok
}
