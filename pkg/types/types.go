// Package types defines the shared data types that flow between the hub, its
// transports and every tool adapter.
//
// These types carry no behaviour beyond encoding and simple accessors. The
// central pieces are [Value], a tagged variant for dynamically typed
// arguments and results, [ToolDescriptor], which describes a tool's
// parameters, and [Result], the envelope every tool call produces.
package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ─────────────────────────────────────────────────────────────────────────────
// Descriptors
// ─────────────────────────────────────────────────────────────────────────────

// ParamType is the type tag of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
	TypeArray   ParamType = "array"
	TypeAny     ParamType = "any"
)

// IsValid reports whether t is a recognised type tag.
func (t ParamType) IsValid() bool {
	switch t {
	case TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeObject, TypeArray, TypeAny:
		return true
	}
	return false
}

// Accepts reports whether v is compatible with the type tag. Null is only
// accepted by [TypeAny].
func (t ParamType) Accepts(v Value) bool {
	switch t {
	case TypeAny, "":
		return true
	case TypeString:
		return v.Kind() == KindString
	case TypeNumber:
		return v.Kind() == KindNumber
	case TypeInteger:
		_, ok := v.Integer()
		return ok
	case TypeBoolean:
		return v.Kind() == KindBool
	case TypeObject:
		return v.Kind() == KindObject
	case TypeArray:
		return v.Kind() == KindArray
	}
	return false
}

// Parameter describes one named argument of a tool.
type Parameter struct {
	Name        string    `json:"-"`
	Type        ParamType `json:"type"`
	Description string    `json:"description,omitempty"`
	Required    bool      `json:"required"`
}

// Parameters is an ordered list of parameter specs. It encodes as a JSON
// object whose keys keep declaration order.
type Parameters []Parameter

// Lookup returns the parameter with the given name.
func (ps Parameters) Lookup(name string) (Parameter, bool) {
	for _, p := range ps {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// MarshalJSON implements json.Marshaler, preserving declaration order.
func (ps Parameters) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range ps {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(p.Name)
		if err != nil {
			return nil, err
		}
		spec, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(spec)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler, preserving key order.
func (ps *Parameters) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*ps = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("types: parameters must be a JSON object")
	}
	var out Parameters
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("types: unexpected parameter key %v", tok)
		}
		var p Parameter
		if err := dec.Decode(&p); err != nil {
			return fmt.Errorf("types: parameter %q: %w", name, err)
		}
		p.Name = name
		out = append(out, p)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*ps = out
	return nil
}

// ToolDescriptor is the discovery record for a tool. Name is the stable,
// registry-unique identifier.
type ToolDescriptor struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  Parameters `json:"parameters"`
}

// Validate checks the descriptor itself, not any arguments.
func (d ToolDescriptor) Validate() error {
	var errs []error
	if d.Name == "" {
		errs = append(errs, errors.New("descriptor name must not be empty"))
	}
	seen := make(map[string]bool, len(d.Parameters))
	for _, p := range d.Parameters {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("tool %q: parameter with empty name", d.Name))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("tool %q: duplicate parameter %q", d.Name, p.Name))
		}
		seen[p.Name] = true
		if p.Type != "" && !p.Type.IsValid() {
			errs = append(errs, fmt.Errorf("tool %q: parameter %q has unknown type %q", d.Name, p.Name, p.Type))
		}
	}
	return errors.Join(errs...)
}

// ─────────────────────────────────────────────────────────────────────────────
// Calls
// ─────────────────────────────────────────────────────────────────────────────

// Arguments maps parameter names to values. Key order carries no meaning.
type Arguments map[string]Value

// ArgumentsFromAny converts a decoded JSON object into Arguments.
func ArgumentsFromAny(m map[string]any) (Arguments, error) {
	args := make(Arguments, len(m))
	for k, x := range m {
		v, err := FromAny(x)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", k, err)
		}
		args[k] = v
	}
	return args, nil
}

// Any converts the arguments into a plain map.
func (a Arguments) Any() map[string]any {
	m := make(map[string]any, len(a))
	for k, v := range a {
		m[k] = v.Any()
	}
	return m
}

// Str returns the string argument named key.
func (a Arguments) Str(key string) (string, bool) {
	v, ok := a[key]
	if !ok {
		return "", false
	}
	return v.Str()
}

// StrOr returns the string argument named key, or def when absent.
func (a Arguments) StrOr(key, def string) string {
	if s, ok := a.Str(key); ok {
		return s
	}
	return def
}

// Number returns the numeric argument named key.
func (a Arguments) Number(key string) (float64, bool) {
	v, ok := a[key]
	if !ok {
		return 0, false
	}
	return v.Num()
}

// IntOr returns the integral argument named key, or def when absent or
// fractional.
func (a Arguments) IntOr(key string, def int) int {
	v, ok := a[key]
	if !ok {
		return def
	}
	n, ok := v.Integer()
	if !ok || n > math.MaxInt32 || n < math.MinInt32 {
		return def
	}
	return int(n)
}

// BoolOr returns the boolean argument named key, or def when absent.
func (a Arguments) BoolOr(key string, def bool) bool {
	v, ok := a[key]
	if !ok {
		return def
	}
	b, ok := v.Boolean()
	if !ok {
		return def
	}
	return b
}

// Object returns the object argument named key.
func (a Arguments) Object(key string) (map[string]Value, bool) {
	v, ok := a[key]
	if !ok {
		return nil, false
	}
	return v.Obj()
}

// Request is a call to a named tool.
type Request struct {
	Name      string    `json:"name"`
	Arguments Arguments `json:"arguments"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Result envelope
// ─────────────────────────────────────────────────────────────────────────────

// Result is the envelope returned by every tool call: exactly one of Value or
// Err is set. Value is a pointer so that a null payload is distinguishable
// from an absent one.
type Result struct {
	Value *Value
	Err   string
}

// OK returns a successful result carrying v.
func OK(v Value) Result { return Result{Value: &v} }

// Fail returns a tool-level failure carrying msg. An empty msg is replaced so
// the envelope stays well formed.
func Fail(msg string) Result {
	if msg == "" {
		msg = "unknown error"
	}
	return Result{Err: msg}
}

// Failf is like [Fail] with formatting.
func Failf(format string, args ...any) Result {
	return Fail(fmt.Sprintf(format, args...))
}

// IsError reports whether the result carries a tool-level failure.
func (r Result) IsError() bool { return r.Err != "" }

// Valid reports whether exactly one side of the envelope is populated.
func (r Result) Valid() bool { return (r.Value != nil) != (r.Err != "") }

type resultJSON struct {
	Result *json.RawMessage `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// MarshalJSON encodes the envelope as {"result": v} or {"error": msg}.
func (r Result) MarshalJSON() ([]byte, error) {
	if !r.Valid() {
		return nil, errors.New("types: invalid result envelope")
	}
	if r.Err != "" {
		return json.Marshal(resultJSON{Error: r.Err})
	}
	data, err := r.Value.MarshalJSON()
	if err != nil {
		return nil, err
	}
	raw := json.RawMessage(data)
	return json.Marshal(resultJSON{Result: &raw})
}

// UnmarshalJSON decodes {"result": v} or {"error": msg}.
func (r *Result) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	rawRes, hasRes := probe["result"]
	rawErr, hasErr := probe["error"]
	var out Result
	if hasErr {
		if err := json.Unmarshal(rawErr, &out.Err); err != nil {
			return fmt.Errorf("types: error field: %w", err)
		}
	}
	if hasRes {
		var v Value
		if err := v.UnmarshalJSON(rawRes); err != nil {
			return fmt.Errorf("types: result field: %w", err)
		}
		out.Value = &v
	}
	if !out.Valid() {
		return errors.New("types: result envelope must carry exactly one of result or error")
	}
	*r = out
	return nil
}
