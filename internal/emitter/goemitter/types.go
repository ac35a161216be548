package goemitter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/codecup-codeday/rctf-spooky/internal/naming"
	"github.com/codecup-codeday/rctf-spooky/internal/schema"
)

// goType renders a schema node as a Go type expression. Objects with known
// properties become anonymous structs; alternations and mixed types fall back
// to json.RawMessage since Go has no union type.
func goType(node any) string {
	o, ok := node.(*schema.Object)
	if !ok || o == nil {
		return "any"
	}
	if o.Has("oneOf") || o.Has("anyOf") || o.Has("allOf") {
		return "json.RawMessage"
	}
	if c, ok := o.Get("const"); ok {
		return scalarOf(c)
	}
	if raw, ok := o.Get("enum"); ok {
		if list, ok := raw.([]any); ok && len(list) > 0 {
			t := scalarOf(list[0])
			for _, v := range list[1:] {
				if scalarOf(v) != t {
					return "any"
				}
			}
			return t
		}
	}

	types, nullable := typeList(o)
	if len(types) == 0 {
		switch {
		case o.Has("properties"):
			types = []string{"object"}
		case o.Has("items"):
			types = []string{"array"}
		default:
			return "any"
		}
	}
	if len(types) > 1 {
		return "json.RawMessage"
	}
	t := singleType(o, types[0])
	if nullable && !strings.HasPrefix(t, "[]") && !strings.HasPrefix(t, "map[") && t != "any" && t != "json.RawMessage" {
		return "*" + t
	}
	return t
}

func singleType(o *schema.Object, typ string) string {
	switch typ {
	case "string":
		return "string"
	case "integer":
		return "int64"
	case "number":
		return "float64"
	case "boolean":
		return "bool"
	case "array":
		items, ok := o.Get("items")
		if !ok {
			return "[]any"
		}
		if _, tuple := items.([]any); tuple {
			return "[]json.RawMessage"
		}
		return "[]" + goType(items)
	case "object":
		props, ok := o.Object("properties")
		if !ok || props.Len() == 0 {
			if ap, ok := o.Get("additionalProperties"); ok {
				if apo, isObj := ap.(*schema.Object); isObj {
					return "map[string]" + goType(apo)
				}
			}
			return "map[string]any"
		}
		return structType(o, props)
	default:
		return "any"
	}
}

func structType(o *schema.Object, props *schema.Object) string {
	required := map[string]bool{}
	if names, ok := o.Strings("required"); ok {
		for _, n := range names {
			required[n] = true
		}
	}
	var b strings.Builder
	b.WriteString("struct {\n")
	used := map[string]int{}
	for _, key := range props.Keys() {
		child, _ := props.Get(key)
		name := fieldName(key, used)
		t := goType(child)
		tag := key
		if !required[key] {
			tag += ",omitempty"
			if isScalar(t) {
				t = "*" + t
			}
		}
		if co, ok := child.(*schema.Object); ok {
			if desc, ok := co.String("description"); ok && desc != "" {
				for _, line := range strings.Split(strings.TrimSpace(desc), "\n") {
					b.WriteString("// " + strings.TrimSpace(line) + "\n")
				}
			}
		}
		fmt.Fprintf(&b, "%s %s `json:%s`\n", name, t, strconv.Quote(tag))
	}
	b.WriteString("}")
	return b.String()
}

// fieldName turns a JSON key into an exported field name that is unique
// within its struct.
func fieldName(key string, used map[string]int) string {
	name := naming.Pascal(key)
	if !naming.IsIdentifier(name) {
		name = "Field" + name
	}
	if !naming.IsIdentifier(name) {
		name = "Field"
	}
	used[name]++
	if n := used[name]; n > 1 {
		name += strconv.Itoa(n)
	}
	return name
}

func isScalar(t string) bool {
	switch t {
	case "string", "int64", "float64", "bool":
		return true
	}
	return false
}

func scalarOf(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case int64:
		return "int64"
	case float64:
		return "float64"
	case bool:
		return "bool"
	}
	return "any"
}

func typeList(o *schema.Object) (types []string, nullable bool) {
	if n, _ := o.Get("nullable"); n == true {
		nullable = true
	}
	raw, ok := o.Get("type")
	if !ok {
		return nil, nullable
	}
	switch v := raw.(type) {
	case string:
		types = []string{v}
	case []any:
		for _, t := range v {
			s, ok := t.(string)
			if !ok {
				continue
			}
			if s == "null" {
				nullable = true
				continue
			}
			types = append(types, s)
		}
	}
	sort.Strings(types)
	return types, nullable
}
