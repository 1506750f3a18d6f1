// Package tree wraps decoded JSON documents in a Value that can be walked
// without type assertions at every step. Upstream payloads come in several
// inconsistent shapes, so lookups on a missing key or a mismatched kind
// return the null Value instead of failing.
package tree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind is the JSON kind of a Value.
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a node of a decoded JSON document. The zero Value is null.
type Value struct {
	v any
}

// Parse decodes a JSON document.
func Parse(data []byte) (Value, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Value{}, nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return Value{}, fmt.Errorf("failed to parse json: %w", err)
	}
	return Value{v: v}, nil
}

// Of wraps an already decoded value. Maps and slices built in Go are
// normalized to the shapes encoding/json produces.
func Of(v any) Value {
	return Value{v: normalize(v)}
}

func normalize(v any) any {
	switch t := v.(type) {
	case Value:
		return t.v
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = val
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	default:
		return v
	}
}

// Kind returns the kind of the value.
func (v Value) Kind() Kind {
	switch v.v.(type) {
	case bool:
		return Bool
	case float64:
		return Number
	case string:
		return String
	case []any:
		return Array
	case map[string]any:
		return Object
	default:
		return Null
	}
}

// IsNull reports whether the value is null or missing.
func (v Value) IsNull() bool {
	return v.Kind() == Null
}

// Raw returns the underlying decoded value.
func (v Value) Raw() any {
	return v.v
}

// Get returns the member of an object, or null.
func (v Value) Get(key string) Value {
	m, ok := v.v.(map[string]any)
	if !ok {
		return Value{}
	}
	return Value{v: m[key]}
}

// Has reports whether an object contains the key.
func (v Value) Has(key string) bool {
	m, ok := v.v.(map[string]any)
	if !ok {
		return false
	}
	_, ok = m[key]
	return ok
}

// Index returns the i-th element of an array, or null.
func (v Value) Index(i int) Value {
	a, ok := v.v.([]any)
	if !ok || i < 0 || i >= len(a) {
		return Value{}
	}
	return Value{v: a[i]}
}

// Path walks a dot separated path. Numeric segments index into arrays, so
// "internetUsage.0.totalUsage" is the totalUsage of the first element.
func (v Value) Path(path string) Value {
	if path == "" {
		return v
	}
	cur := v
	for _, seg := range strings.Split(path, ".") {
		if cur.Kind() == Array {
			i, err := strconv.Atoi(seg)
			if err != nil {
				return Value{}
			}
			cur = cur.Index(i)
			continue
		}
		cur = cur.Get(seg)
	}
	return cur
}

// Len returns the number of elements of an array or members of an object.
func (v Value) Len() int {
	switch t := v.v.(type) {
	case []any:
		return len(t)
	case map[string]any:
		return len(t)
	default:
		return 0
	}
}

// Array returns the elements of an array. Any other kind yields nil.
func (v Value) Array() []Value {
	a, ok := v.v.([]any)
	if !ok {
		return nil
	}
	out := make([]Value, len(a))
	for i, e := range a {
		out[i] = Value{v: e}
	}
	return out
}

// Map returns a shallow copy of an object's members, or nil.
func (v Value) Map() map[string]any {
	m, ok := v.v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, val := range m {
		out[k] = val
	}
	return out
}

// Keys returns the sorted member names of an object.
func (v Value) Keys() []string {
	m, ok := v.v.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Str returns the value as a string. Numbers and booleans are formatted,
// null and containers yield "".
func (v Value) Str() string {
	switch t := v.v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// Float returns the value as a number. Strings are parsed and may use a
// comma as decimal separator.
func (v Value) Float() (float64, bool) {
	switch t := v.v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(t), ",", "."), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// FloatOr returns Float or the fallback.
func (v Value) FloatOr(fallback float64) float64 {
	if f, ok := v.Float(); ok {
		return f
	}
	return fallback
}

// Bool returns the boolean value, false for anything else.
func (v Value) Bool() bool {
	b, _ := v.v.(bool)
	return b
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.v)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
