package host

import (
	"encoding/json"
	"testing"
)

// TestStoreValue_Complexity tests the write pricing measure.
func TestStoreValue_Complexity(t *testing.T) {
	tests := []struct {
		name string
		v    StoreValue
		want uint64
	}{
		{"null", NullValue(), 0},
		{"bool", BoolValue(true), 1},
		{"short string", StringValue("hello"), 1},
		{"long string", StringValue("0123456789abcdefghij"), 3},
		{"list", ListValue(NumberValue(1), NumberValue(2)), 3},
		{"object", ObjectValue(map[string]StoreValue{"a": BoolValue(false), "b": NullValue()}), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.Complexity(); got != tt.want {
				t.Errorf("Complexity() = %d, want %d", got, tt.want)
			}
		})
	}
}

// TestStoreValue_FromJSON tests decoding arbitrary JSON documents.
func TestStoreValue_FromJSON(t *testing.T) {
	var v StoreValue
	if err := json.Unmarshal([]byte(`{"name":"alice","tags":["a",true],"score":1.5,"x":null}`), &v); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	want := ObjectValue(map[string]StoreValue{
		"name":  StringValue("alice"),
		"tags":  ListValue(StringValue("a"), BoolValue(true)),
		"score": NumberValue(1.5),
		"x":     NullValue(),
	})
	if !v.Equal(want) {
		t.Errorf("Expected %s, got %s", want, v)
	}
	if _, err := FromAny(struct{}{}); err == nil {
		t.Error("Expected error for unsupported type")
	}
}
