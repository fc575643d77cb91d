package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
)

// Kind identifies which variant a [Value] holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindObject
	KindArray
)

// String returns the JSON-style name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a dynamically typed argument or result payload. The zero Value is
// null. Values are immutable once constructed; accessors return copies of
// composite contents only where noted.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	obj  map[string]Value
	arr  []Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Int returns a numeric value holding n.
func Int(n int64) Value { return Value{kind: KindNumber, num: float64(n)} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Object returns an object value. The map is not copied.
func Object(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindObject, obj: m}
}

// Array returns an array value. The slice is not copied.
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, arr: items}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string held by v.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Num returns the number held by v.
func (v Value) Num() (float64, bool) { return v.num, v.kind == KindNumber }

// Integer returns the number held by v when it has no fractional part.
func (v Value) Integer() (int64, bool) {
	if v.kind != KindNumber || v.num != math.Trunc(v.num) || math.IsInf(v.num, 0) {
		return 0, false
	}
	return int64(v.num), true
}

// Boolean returns the boolean held by v.
func (v Value) Boolean() (bool, bool) { return v.b, v.kind == KindBool }

// Obj returns the object fields held by v. The returned map must not be
// modified.
func (v Value) Obj() (map[string]Value, bool) { return v.obj, v.kind == KindObject }

// Arr returns the elements held by v. The returned slice must not be
// modified.
func (v Value) Arr() ([]Value, bool) { return v.arr, v.kind == KindArray }

// Field returns the named field of an object value.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	f, ok := v.obj[name]
	return f, ok
}

// Equal reports whether v and o hold the same data. Numbers compare by value
// so that 2023 and 2023.0 are equal.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindObject:
		return maps.EqualFunc(v.obj, o.obj, Value.Equal)
	case KindArray:
		return slices.EqualFunc(v.arr, o.arr, Value.Equal)
	}
	return false
}

// Any converts v into plain Go data: nil, string, float64, bool,
// map[string]any or []any. The result is suitable for encoding/json and
// structpb.
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindObject:
		m := make(map[string]any, len(v.obj))
		for k, f := range v.obj {
			m[k] = f.Any()
		}
		return m
	case KindArray:
		a := make([]any, len(v.arr))
		for i, e := range v.arr {
			a[i] = e.Any()
		}
		return a
	default:
		return nil
	}
}

// FromAny converts plain Go data into a Value. It accepts the shapes produced
// by encoding/json and structpb plus the common integer and float types.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("types: invalid number %q: %w", t, err)
		}
		return Number(f), nil
	case []byte:
		return String(string(t)), nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return Value{}, fmt.Errorf("types: field %q: %w", k, err)
			}
			m[k] = ev
		}
		return Object(m), nil
	case map[string]string:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			m[k] = String(e)
		}
		return Object(m), nil
	case []any:
		a := make([]Value, len(t))
		for i, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return Value{}, fmt.Errorf("types: index %d: %w", i, err)
			}
			a[i] = ev
		}
		return Array(a...), nil
	case []string:
		a := make([]Value, len(t))
		for i, e := range t {
			a[i] = String(e)
		}
		return Array(a...), nil
	default:
		return Value{}, fmt.Errorf("types: unsupported value type %T", x)
	}
}

// MustFromAny is like [FromAny] but panics on error. Intended for literals in
// tests and tool tables.
func MustFromAny(x any) Value {
	v, err := FromAny(x)
	if err != nil {
		panic(err)
	}
	return v
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil, fmt.Errorf("types: cannot encode %v as JSON", v.num)
		}
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindObject:
		return json.Marshal(v.obj)
	case KindArray:
		return json.Marshal(v.arr)
	}
	return nil, fmt.Errorf("types: unknown kind %d", v.kind)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var x any
	if err := dec.Decode(&x); err != nil {
		return err
	}
	parsed, err := FromAny(x)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// String renders v as compact JSON; unencodable numbers render with %v.
func (v Value) String() string {
	data, err := v.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("%v", v.num)
	}
	return string(data)
}
