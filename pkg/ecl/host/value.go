package host

import (
	"encoding/json"
	"fmt"
)

// StoreKind tags the variant of a StoreValue.
type StoreKind uint8

const (
	StoreNull StoreKind = iota
	StoreBool
	StoreNumber
	StoreString
	StoreList
	StoreObject
)

// StoreValue is a JSON-shaped document stored under a key.
type StoreValue struct {
	Kind   StoreKind
	Bool   bool
	Number float64
	Str    string
	List   []StoreValue
	Object map[string]StoreValue
}

// Value constructors.
func NullValue() StoreValue            { return StoreValue{} }
func BoolValue(b bool) StoreValue      { return StoreValue{Kind: StoreBool, Bool: b} }
func NumberValue(n float64) StoreValue { return StoreValue{Kind: StoreNumber, Number: n} }
func StringValue(s string) StoreValue  { return StoreValue{Kind: StoreString, Str: s} }
func ListValue(items ...StoreValue) StoreValue {
	return StoreValue{Kind: StoreList, List: items}
}
func ObjectValue(fields map[string]StoreValue) StoreValue {
	return StoreValue{Kind: StoreObject, Object: fields}
}

// Complexity is the size measure used to price writes: null 0, scalars 1,
// strings len/10+1, containers 1 plus their children.
func (v StoreValue) Complexity() uint64 {
	switch v.Kind {
	case StoreBool, StoreNumber:
		return 1
	case StoreString:
		return uint64(len(v.Str))/10 + 1
	case StoreList:
		c := uint64(1)
		for _, item := range v.List {
			c += item.Complexity()
		}
		return c
	case StoreObject:
		c := uint64(1)
		for _, field := range v.Object {
			c += field.Complexity()
		}
		return c
	}
	return 0
}

// Equal reports deep equality.
func (v StoreValue) Equal(o StoreValue) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case StoreBool:
		return v.Bool == o.Bool
	case StoreNumber:
		return v.Number == o.Number
	case StoreString:
		return v.Str == o.Str
	case StoreList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(o.List[i]) {
				return false
			}
		}
		return true
	case StoreObject:
		if len(v.Object) != len(o.Object) {
			return false
		}
		for k, a := range v.Object {
			b, ok := o.Object[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	}
	return true
}

// MarshalJSON encodes the value as plain JSON.
func (v StoreValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.toAny())
}

func (v StoreValue) toAny() any {
	switch v.Kind {
	case StoreBool:
		return v.Bool
	case StoreNumber:
		return v.Number
	case StoreString:
		return v.Str
	case StoreList:
		out := make([]any, len(v.List))
		for i, item := range v.List {
			out[i] = item.toAny()
		}
		return out
	case StoreObject:
		out := make(map[string]any, len(v.Object))
		for k, field := range v.Object {
			out[k] = field.toAny()
		}
		return out
	}
	return nil
}

// UnmarshalJSON decodes plain JSON.
func (v *StoreValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// FromAny converts a value produced by encoding/json (or a YAML decoder)
// into a StoreValue.
func FromAny(raw any) (StoreValue, error) {
	switch x := raw.(type) {
	case nil:
		return NullValue(), nil
	case bool:
		return BoolValue(x), nil
	case float64:
		return NumberValue(x), nil
	case int:
		return NumberValue(float64(x)), nil
	case string:
		return StringValue(x), nil
	case []any:
		items := make([]StoreValue, len(x))
		for i, item := range x {
			v, err := FromAny(item)
			if err != nil {
				return StoreValue{}, err
			}
			items[i] = v
		}
		return ListValue(items...), nil
	case map[string]any:
		fields := make(map[string]StoreValue, len(x))
		for k, item := range x {
			v, err := FromAny(item)
			if err != nil {
				return StoreValue{}, err
			}
			fields[k] = v
		}
		return ObjectValue(fields), nil
	}
	return StoreValue{}, fmt.Errorf("unsupported store value type %T", raw)
}

func (v StoreValue) String() string {
	data, err := v.MarshalJSON()
	if err != nil {
		return "<invalid>"
	}
	return string(data)
}
