// Package schema holds the tree representation of schema documents and the
// copy-on-write rewriting pipeline applied to them.
//
// A node is one of nil, bool, int64, float64, string, []any or *Object.
package schema

import (
	"bytes"
	"fmt"
	"math"
	"sort"

	json "github.com/goccy/go-json"
)

// Object is a mapping that remembers the order in which keys were declared.
type Object struct {
	keys   []string
	values map[string]any
}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{values: make(map[string]any)}
}

// ObjectOf builds an object from alternating key/value arguments. It is meant
// for literals in code and tests.
func ObjectOf(kv ...any) *Object {
	if len(kv)%2 != 0 {
		panic("schema: ObjectOf needs key/value pairs")
	}
	o := NewObject()
	for i := 0; i < len(kv); i += 2 {
		o.Set(kv[i].(string), kv[i+1])
	}
	return o
}

func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys returns the keys in declaration order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return append([]string(nil), o.keys...)
}

func (o *Object) Get(key string) (any, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.values[key]
	return v, ok
}

func (o *Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Set stores a value. A new key goes last; an existing key keeps its position.
func (o *Object) Set(key string, value any) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

func (o *Object) Delete(key string) {
	if _, ok := o.values[key]; !ok {
		return
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i:i], o.keys[i+1:]...)
			break
		}
	}
}

// String returns the value at key when it is a string.
func (o *Object) String(key string) (string, bool) {
	v, ok := o.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Object returns the value at key when it is an object.
func (o *Object) Object(key string) (*Object, bool) {
	v, ok := o.Get(key)
	if !ok {
		return nil, false
	}
	c, ok := v.(*Object)
	return c, ok
}

// Strings returns the value at key when it is a list of strings.
func (o *Object) Strings(key string) ([]string, bool) {
	v, ok := o.Get(key)
	if !ok {
		return nil, false
	}
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// ShallowCopy copies the key order and the top-level values. Children are
// shared with the receiver.
func (o *Object) ShallowCopy() *Object {
	if o == nil {
		return nil
	}
	c := &Object{
		keys:   append([]string(nil), o.keys...),
		values: make(map[string]any, len(o.values)),
	}
	for k, v := range o.values {
		c.values[k] = v
	}
	return c
}

// Without returns a shallow copy lacking the given keys.
func (o *Object) Without(keys ...string) *Object {
	c := o.ShallowCopy()
	for _, k := range keys {
		c.Delete(k)
	}
	return c
}

// MarshalJSON encodes the object preserving key order.
func (o *Object) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// TypeOf returns the "type" keyword of a schema node, or "" when absent or
// not a single string.
func TypeOf(node any) string {
	o, ok := node.(*Object)
	if !ok {
		return ""
	}
	s, _ := o.String("type")
	return s
}

// Clone deep-copies a node.
func Clone(node any) any {
	switch v := node.(type) {
	case *Object:
		if v == nil {
			return (*Object)(nil)
		}
		c := &Object{keys: append([]string(nil), v.keys...), values: make(map[string]any, len(v.values))}
		for k, child := range v.values {
			c.values[k] = Clone(child)
		}
		return c
	case []any:
		c := make([]any, len(v))
		for i, child := range v {
			c[i] = Clone(child)
		}
		return c
	default:
		return v
	}
}

// Equal reports structural equality. Object key order is not significant and
// integral numbers compare equal regardless of their Go representation.
func Equal(a, b any) bool {
	switch av := a.(type) {
	case *Object:
		bv, ok := b.(*Object)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		for _, k := range av.Keys() {
			x, _ := av.Get(k)
			y, ok := bv.Get(k)
			if !ok || !Equal(x, y) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case int64, float64, int:
		x, ok1 := asFloat(a)
		y, ok2 := asFloat(b)
		return ok1 && ok2 && x == y
	default:
		return a == b
	}
}

// Plain converts a node to the representation produced by encoding/json
// when decoding into any: objects become map[string]any and every number
// becomes float64.
func Plain(node any) any {
	switch v := node.(type) {
	case *Object:
		if v == nil {
			return nil
		}
		m := make(map[string]any, len(v.keys))
		for _, k := range v.keys {
			m[k] = Plain(v.values[k])
		}
		return m
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = Plain(child)
		}
		return out
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return v
	}
}

// SortedKeys returns the keys of o in lexicographic order.
func SortedKeys(o *Object) []string {
	keys := o.Keys()
	sort.Strings(keys)
	return keys
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
