package host

import (
	"fmt"
	"sort"
)

// FieldKind is the type of a schema field.
type FieldKind string

const (
	FieldString    FieldKind = "string"
	FieldNumber    FieldKind = "number"
	FieldBool      FieldKind = "bool"
	FieldDID       FieldKind = "did"
	FieldTimestamp FieldKind = "timestamp"
	FieldBytes     FieldKind = "bytes"
	FieldList      FieldKind = "list"
	FieldObject    FieldKind = "object"
	FieldReference FieldKind = "reference"
	FieldOptional  FieldKind = "optional"
)

// FieldType describes a schema field. Item is used by list and optional
// fields, Fields by objects and Target by references.
type FieldType struct {
	Kind   FieldKind            `json:"kind" yaml:"kind"`
	Item   *FieldType           `json:"item,omitempty" yaml:"item,omitempty"`
	Fields map[string]FieldType `json:"fields,omitempty" yaml:"fields,omitempty"`
	Target string               `json:"target,omitempty" yaml:"target,omitempty"`
}

// Complexity prices a field type for schema evolution.
func (t FieldType) Complexity() uint64 {
	switch t.Kind {
	case FieldList:
		if t.Item == nil {
			return 2
		}
		return 2 + t.Item.Complexity()
	case FieldObject:
		c := uint64(2)
		for _, f := range t.Fields {
			c += f.Complexity()
		}
		return c
	case FieldReference:
		return 2
	case FieldOptional:
		if t.Item == nil {
			return 1
		}
		return 1 + t.Item.Complexity()
	}
	return 1
}

// ChangeKind identifies a schema change.
type ChangeKind string

const (
	ChangeAddField    ChangeKind = "add_field"
	ChangeRemoveField ChangeKind = "remove_field"
	ChangeModifyField ChangeKind = "modify_field"
	ChangeRenameField ChangeKind = "rename_field"
	ChangeAddIndex    ChangeKind = "add_index"
	ChangeRemoveIndex ChangeKind = "remove_index"
)

// SchemaChange is one edit to a store schema. Field names the affected
// field (the old name for renames).
type SchemaChange struct {
	Kind    ChangeKind  `json:"kind" yaml:"kind"`
	Field   string      `json:"field" yaml:"field"`
	NewName string      `json:"new_name,omitempty" yaml:"new_name,omitempty"`
	Type    *FieldType  `json:"type,omitempty" yaml:"type,omitempty"`
	Default *StoreValue `json:"default,omitempty" yaml:"-"`
}

// AddField adds a field, optionally with a default for existing documents.
func AddField(name string, t FieldType, def *StoreValue) SchemaChange {
	return SchemaChange{Kind: ChangeAddField, Field: name, Type: &t, Default: def}
}

// RemoveField removes a field.
func RemoveField(name string) SchemaChange {
	return SchemaChange{Kind: ChangeRemoveField, Field: name}
}

// ModifyField changes the type of a field.
func ModifyField(name string, t FieldType) SchemaChange {
	return SchemaChange{Kind: ChangeModifyField, Field: name, Type: &t}
}

// RenameField renames a field.
func RenameField(oldName, newName string) SchemaChange {
	return SchemaChange{Kind: ChangeRenameField, Field: oldName, NewName: newName}
}

// AddIndex indexes a field.
func AddIndex(field string) SchemaChange {
	return SchemaChange{Kind: ChangeAddIndex, Field: field}
}

// RemoveIndex drops an index.
func RemoveIndex(field string) SchemaChange {
	return SchemaChange{Kind: ChangeRemoveIndex, Field: field}
}

// IsBreaking reports whether existing documents may stop matching the schema.
func (c SchemaChange) IsBreaking() bool {
	switch c.Kind {
	case ChangeRemoveField, ChangeModifyField, ChangeRenameField:
		return true
	}
	return false
}

// ManaCost is the base price of the change before the breaking multiplier.
func (c SchemaChange) ManaCost() uint64 {
	var complexity uint64 = 1
	if c.Type != nil {
		complexity = c.Type.Complexity()
	}
	switch c.Kind {
	case ChangeAddField:
		return 50 + complexity*10
	case ChangeRemoveField:
		return 200
	case ChangeModifyField:
		return 300 + complexity*10
	case ChangeRenameField:
		return 100
	case ChangeAddIndex:
		return 150
	case ChangeRemoveIndex:
		return 50
	}
	return 0
}

// HasBreakingChanges reports whether any change is breaking.
func HasBreakingChanges(changes []SchemaChange) bool {
	for _, c := range changes {
		if c.IsBreaking() {
			return true
		}
	}
	return false
}

// EvolutionCost sums change costs and applies breakingMultiplier when any
// change is breaking.
func EvolutionCost(changes []SchemaChange, breakingMultiplier uint64) uint64 {
	var total uint64
	for _, c := range changes {
		total += c.ManaCost()
	}
	if HasBreakingChanges(changes) {
		total *= breakingMultiplier
	}
	return total
}

// ChangeState is the lifecycle state of a schema version.
type ChangeState string

const (
	StateActive     ChangeState = "active"
	StatePending    ChangeState = "pending"
	StateRejected   ChangeState = "rejected"
	StateSuperseded ChangeState = "superseded"
)

// ChangeStatus is the state of a schema version plus its state data.
type ChangeStatus struct {
	State         ChangeState `json:"state"`
	ChallengeEnds uint64      `json:"challenge_ends,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	SupersededBy  uint32      `json:"superseded_by,omitempty"`
}

func (s ChangeStatus) String() string {
	switch s.State {
	case StatePending:
		return fmt.Sprintf("pending until %d", s.ChallengeEnds)
	case StateRejected:
		return "rejected: " + s.Reason
	case StateSuperseded:
		return fmt.Sprintf("superseded by v%d", s.SupersededBy)
	}
	return string(s.State)
}

// ChangelogEntry records one schema version.
type ChangelogEntry struct {
	Version           uint32         `json:"version"`
	Timestamp         uint64         `json:"timestamp"`
	ChangedBy         string         `json:"changed_by"`
	Changes           []SchemaChange `json:"changes"`
	Description       string         `json:"description"`
	RequiredChallenge bool           `json:"required_challenge"`
	Status            ChangeStatus   `json:"status"`
}

// EvolutionResult is returned by EvolveSchema.
type EvolutionResult struct {
	NewVersion uint32       `json:"new_version"`
	IsBreaking bool         `json:"is_breaking"`
	Status     ChangeStatus `json:"status"`
	ManaCost   uint64       `json:"mana_cost"`
}

// SchemaHistory lists every version of a store schema, oldest first.
type SchemaHistory struct {
	StoreName      string           `json:"store_name"`
	CurrentVersion uint32           `json:"current_version"`
	Changelog      []ChangelogEntry `json:"changelog"`
}

// StoreSchema is the field layout of a store at one version.
type StoreSchema struct {
	Version uint32               `json:"version"`
	Fields  map[string]FieldType `json:"fields"`
	Indexes []string             `json:"indexes,omitempty"`
}

// Apply returns the schema produced by applying changes, with the
// version incremented. The receiver is not modified.
func (s StoreSchema) Apply(changes []SchemaChange) (StoreSchema, error) {
	next := StoreSchema{
		Version: s.Version + 1,
		Fields:  make(map[string]FieldType, len(s.Fields)),
		Indexes: append([]string(nil), s.Indexes...),
	}
	for k, v := range s.Fields {
		next.Fields[k] = v
	}

	for _, c := range changes {
		_, exists := next.Fields[c.Field]
		switch c.Kind {
		case ChangeAddField:
			if exists {
				return StoreSchema{}, fmt.Errorf("%w: field %q already exists", ErrInvalidSchemaChange, c.Field)
			}
			if c.Type == nil {
				return StoreSchema{}, fmt.Errorf("%w: field %q has no type", ErrInvalidSchemaChange, c.Field)
			}
			next.Fields[c.Field] = *c.Type
		case ChangeRemoveField:
			if !exists {
				return StoreSchema{}, fmt.Errorf("%w: field %q does not exist", ErrInvalidSchemaChange, c.Field)
			}
			delete(next.Fields, c.Field)
			next.Indexes = without(next.Indexes, c.Field)
		case ChangeModifyField:
			if !exists || c.Type == nil {
				return StoreSchema{}, fmt.Errorf("%w: cannot modify field %q", ErrInvalidSchemaChange, c.Field)
			}
			next.Fields[c.Field] = *c.Type
		case ChangeRenameField:
			if !exists {
				return StoreSchema{}, fmt.Errorf("%w: field %q does not exist", ErrInvalidSchemaChange, c.Field)
			}
			if _, taken := next.Fields[c.NewName]; taken || c.NewName == "" {
				return StoreSchema{}, fmt.Errorf("%w: cannot rename %q to %q", ErrInvalidSchemaChange, c.Field, c.NewName)
			}
			next.Fields[c.NewName] = next.Fields[c.Field]
			delete(next.Fields, c.Field)
			for i, idx := range next.Indexes {
				if idx == c.Field {
					next.Indexes[i] = c.NewName
				}
			}
		case ChangeAddIndex:
			if !exists {
				return StoreSchema{}, fmt.Errorf("%w: cannot index unknown field %q", ErrInvalidSchemaChange, c.Field)
			}
			if contains(next.Indexes, c.Field) {
				return StoreSchema{}, fmt.Errorf("%w: field %q already indexed", ErrInvalidSchemaChange, c.Field)
			}
			next.Indexes = append(next.Indexes, c.Field)
		case ChangeRemoveIndex:
			if !contains(next.Indexes, c.Field) {
				return StoreSchema{}, fmt.Errorf("%w: field %q is not indexed", ErrInvalidSchemaChange, c.Field)
			}
			next.Indexes = without(next.Indexes, c.Field)
		default:
			return StoreSchema{}, fmt.Errorf("%w: unknown change kind %q", ErrInvalidSchemaChange, c.Kind)
		}
	}
	sort.Strings(next.Indexes)
	return next, nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func without(list []string, s string) []string {
	out := list[:0]
	for _, x := range list {
		if x != s {
			out = append(out, x)
		}
	}
	return out
}
