package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// ValueKind is the type tag of a metadata Value.
type ValueKind string

const (
	KindString    ValueKind = "string"
	KindNumber    ValueKind = "number"
	KindBool      ValueKind = "bool"
	KindTimestamp ValueKind = "timestamp"
)

// Value is a scalar metadata value. Exactly one of the fields matching Kind is meaningful.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
	Time time.Time
}

func String(s string) Value       { return Value{Kind: KindString, Str: s} }
func Number(n float64) Value      { return Value{Kind: KindNumber, Num: n} }
func Bool(b bool) Value           { return Value{Kind: KindBool, Bool: b} }
func Timestamp(t time.Time) Value { return Value{Kind: KindTimestamp, Time: t.UTC()} }

type taggedValue struct {
	Kind  ValueKind       `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes v as {"kind": ..., "value": ...}.
func (v Value) MarshalJSON() ([]byte, error) {
	var raw any
	switch v.Kind {
	case KindString:
		raw = v.Str
	case KindNumber:
		raw = v.Num
	case KindBool:
		raw = v.Bool
	case KindTimestamp:
		raw = v.Time.UTC().Format(time.RFC3339Nano)
	default:
		return nil, fmt.Errorf("metadata: unknown value kind %q", v.Kind)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	return json.Marshal(taggedValue{Kind: v.Kind, Value: b})
}

// UnmarshalJSON accepts the tagged form produced by MarshalJSON. Bare JSON
// strings, numbers and booleans are also accepted and tagged by their JSON type.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var tv taggedValue
		if err := json.Unmarshal(data, &tv); err != nil {
			return err
		}
		return v.decode(tv.Kind, tv.Value)
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case string:
		*v = String(x)
	case float64:
		*v = Number(x)
	case bool:
		*v = Bool(x)
	default:
		return fmt.Errorf("metadata: unsupported value %s", data)
	}
	return nil
}

func (v *Value) decode(kind ValueKind, raw json.RawMessage) error {
	switch kind {
	case KindString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("metadata: string value: %w", err)
		}
		*v = String(s)
	case KindNumber:
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Errorf("metadata: number value: %w", err)
		}
		*v = Number(n)
	case KindBool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return fmt.Errorf("metadata: bool value: %w", err)
		}
		*v = Bool(b)
	case KindTimestamp:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("metadata: timestamp value: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("metadata: timestamp value: %w", err)
		}
		*v = Timestamp(t)
	default:
		return fmt.Errorf("metadata: unknown value kind %q", kind)
	}
	return nil
}

// Metadata is the free-form attribute map of a gateway log, restricted to scalar values.
type Metadata map[string]Value

// Keys returns the metadata keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a copy of m. A nil map clones to an empty one.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (m Metadata) validate() error {
	for k, v := range m {
		if k == "" {
			return fmt.Errorf("metadata key must not be empty")
		}
		switch v.Kind {
		case KindString, KindNumber, KindBool, KindTimestamp:
		default:
			return fmt.Errorf("metadata %q: unknown value kind %q", k, v.Kind)
		}
	}
	return nil
}
