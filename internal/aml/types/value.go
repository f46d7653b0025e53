package types

import (
	"encoding/json"
	"fmt"
)

// Value is a tagged union over the small set of primitive leaves that
// free-form pattern/solution context and metadata maps are allowed to
// hold. It replaces runtime-introspected interface{} shapes with an
// explicit, validated sum type (see spec §9, "dynamic entity shape").
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	list []Value
	m    map[string]Value
}

// Kind identifies which leaf of Value is populated.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
)

func Null() Value                   { return Value{kind: KindNull} }
func Bool(b bool) Value             { return Value{kind: KindBool, b: b} }
func Int(i int64) Value             { return Value{kind: KindInt, i: i} }
func Float(f float64) Value         { return Value{kind: KindFloat, f: f} }
func String(s string) Value         { return Value{kind: KindString, s: s} }
func List(vs []Value) Value         { return Value{kind: KindList, list: vs} }
func Map(m map[string]Value) Value  { return Value{kind: KindMap, m: m} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) Bool() (bool, bool)       { return v.b, v.kind == KindBool }
func (v Value) Int() (int64, bool)       { return v.i, v.kind == KindInt }
func (v Value) Float() (float64, bool)   { return v.f, v.kind == KindFloat }
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	default:
		return ""
	}
}
func (v Value) List() ([]Value, bool)        { return v.list, v.kind == KindList }
func (v Value) Map() (map[string]Value, bool) { return v.m, v.kind == KindMap }

// Validate checks that every nested leaf is one of the seven permitted
// kinds. Values constructed exclusively through the helpers above are
// always valid; Validate exists for values decoded from JSON/YAML at
// ingest boundaries.
func (v Value) Validate() error {
	switch v.kind {
	case KindNull, KindBool, KindInt, KindFloat, KindString:
		return nil
	case KindList:
		for i, e := range v.list {
			if err := e.Validate(); err != nil {
				return fmt.Errorf("list[%d]: %w", i, err)
			}
		}
		return nil
	case KindMap:
		for k, e := range v.m {
			if err := e.Validate(); err != nil {
				return fmt.Errorf("map[%q]: %w", k, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown value kind %d", v.kind)
	}
}

// MarshalJSON encodes a Value as the plain JSON value it represents,
// not as its internal tagged-union shape, so a Pattern/Solution
// round-trips through storage as ordinary JSON.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindString:
		return json.Marshal(v.s)
	case KindList:
		return json.Marshal(v.list)
	case KindMap:
		return json.Marshal(v.m)
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.kind)
	}
}

// UnmarshalJSON infers a Value's kind from the JSON token it decodes,
// recursing into arrays and objects.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = fromInterface(raw)
	return nil
}

func fromInterface(raw interface{}) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case float64:
		if t == float64(int64(t)) {
			return Int(int64(t))
		}
		return Float(t)
	case string:
		return String(t)
	case []interface{}:
		list := make([]Value, len(t))
		for i, e := range t {
			list[i] = fromInterface(e)
		}
		return List(list)
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			m[k] = fromInterface(e)
		}
		return Map(m)
	default:
		return Null()
	}
}

// ValueMap is the common shape of a pattern/solution `context` field.
type ValueMap map[string]Value

// OverlapRatio returns the fraction of keys in a that are also present
// in b, used by pattern recognition's contextual-fit score and by
// success weighting's project-fit score.
func (a ValueMap) OverlapRatio(b ValueMap) float64 {
	if len(a) == 0 {
		return 0
	}
	hits := 0
	for k := range a {
		if _, ok := b[k]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(a))
}
