package tsemitter

import (
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/codecup-codeday/rctf-spooky/internal/schema"
)

const indentUnit = "  "

// declare renders a named, exported declaration for a schema. Plain object
// schemas become interfaces; everything else is a type alias.
func declare(name string, node any) string {
	var b strings.Builder
	if o, ok := node.(*schema.Object); ok {
		if desc, ok := o.String("description"); ok && desc != "" {
			b.WriteString(docComment(desc, 0))
		}
	}
	if isPlainObject(node) {
		fmt.Fprintf(&b, "export interface %s %s", name, tsType(node, 0))
	} else {
		fmt.Fprintf(&b, "export type %s = %s", name, tsType(node, 0))
	}
	return b.String()
}

func isPlainObject(node any) bool {
	o, ok := node.(*schema.Object)
	if !ok {
		return false
	}
	for _, kw := range []string{"const", "enum", "oneOf", "anyOf", "allOf"} {
		if o.Has(kw) {
			return false
		}
	}
	if n, _ := o.Get("nullable"); n == true {
		return false
	}
	types := typeList(o)
	if len(types) == 0 {
		return o.Has("properties")
	}
	return len(types) == 1 && types[0] == "object"
}

// tsType renders a schema node as a TypeScript type expression. depth is the
// indentation level of the line the expression starts on.
func tsType(node any, depth int) string {
	switch v := node.(type) {
	case bool:
		if v {
			return "unknown"
		}
		return "never"
	case *schema.Object:
		if v == nil {
			return "unknown"
		}
		return objectType(v, depth)
	default:
		return "unknown"
	}
}

func objectType(o *schema.Object, depth int) string {
	if c, ok := o.Get("const"); ok {
		return literal(c)
	}
	if raw, ok := o.Get("enum"); ok {
		if list, ok := raw.([]any); ok && len(list) > 0 {
			parts := make([]string, 0, len(list))
			for _, v := range list {
				parts = append(parts, literal(v))
			}
			return union(parts)
		}
	}
	for _, kw := range []string{"oneOf", "anyOf"} {
		if list, ok := branches(o, kw); ok {
			parts := make([]string, 0, len(list))
			for _, br := range list {
				parts = append(parts, tsType(br, depth))
			}
			return union(parts)
		}
	}
	if list, ok := branches(o, "allOf"); ok {
		parts := make([]string, 0, len(list))
		for _, br := range list {
			parts = append(parts, paren(tsType(br, depth)))
		}
		return strings.Join(parts, " & ")
	}

	types := typeList(o)
	if len(types) == 0 {
		switch {
		case o.Has("properties") || o.Has("additionalProperties"):
			types = []string{"object"}
		case o.Has("items"):
			types = []string{"array"}
		default:
			return "unknown"
		}
	}
	parts := make([]string, 0, len(types)+1)
	for _, t := range types {
		parts = append(parts, singleType(o, t, depth))
	}
	if n, _ := o.Get("nullable"); n == true {
		parts = append(parts, "null")
	}
	return union(parts)
}

func singleType(o *schema.Object, typ string, depth int) string {
	switch typ {
	case "string":
		return "string"
	case "integer", "number":
		return "number"
	case "boolean":
		return "boolean"
	case "null":
		return "null"
	case "array":
		items, ok := o.Get("items")
		if !ok {
			return "unknown[]"
		}
		if tuple, ok := items.([]any); ok {
			parts := make([]string, 0, len(tuple))
			for _, it := range tuple {
				parts = append(parts, tsType(it, depth))
			}
			return "[" + strings.Join(parts, ", ") + "]"
		}
		return paren(tsType(items, depth)) + "[]"
	case "object":
		return objectLiteral(o, depth)
	default:
		return "unknown"
	}
}

func objectLiteral(o *schema.Object, depth int) string {
	inner := strings.Repeat(indentUnit, depth+1)
	required := map[string]bool{}
	if names, ok := o.Strings("required"); ok {
		for _, n := range names {
			required[n] = true
		}
	}

	var lines []string
	if props, ok := o.Object("properties"); ok {
		for _, key := range props.Keys() {
			child, _ := props.Get(key)
			if co, ok := child.(*schema.Object); ok {
				if desc, ok := co.String("description"); ok && desc != "" {
					lines = append(lines, strings.TrimRight(docComment(desc, depth+1), "\n"))
				}
			}
			opt := "?"
			if required[key] {
				opt = ""
			}
			lines = append(lines, fmt.Sprintf("%s%s%s: %s", inner, propertyKey(key), opt, tsType(child, depth+1)))
		}
	}
	switch ap, ok := o.Get("additionalProperties"); {
	case !ok || ap == true:
		lines = append(lines, inner+"[k: string]: unknown")
	case ap == false:
	default:
		lines = append(lines, inner+"[k: string]: "+tsType(ap, depth+1))
	}
	if len(lines) == 0 {
		return "{}"
	}
	return "{\n" + strings.Join(lines, "\n") + "\n" + strings.Repeat(indentUnit, depth) + "}"
}

func typeList(o *schema.Object) []string {
	raw, ok := o.Get("type")
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, t := range v {
			if s, ok := t.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func branches(o *schema.Object, kw string) ([]any, bool) {
	raw, ok := o.Get(kw)
	if !ok {
		return nil, false
	}
	list, ok := raw.([]any)
	return list, ok && len(list) > 0
}

func union(parts []string) string {
	seen := make(map[string]bool, len(parts))
	out := parts[:0]
	for _, p := range parts {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return strings.Join(out, " | ")
}

// paren wraps unions and intersections so they can be suffixed with [] or
// joined with &.
func paren(t string) string {
	depth := 0
	for _, r := range t {
		switch r {
		case '{', '(', '[', '<':
			depth++
		case '}', ')', ']', '>':
			depth--
		case '|', '&':
			if depth == 0 {
				return "(" + t + ")"
			}
		}
	}
	return t
}

func literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return quote(x)
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return "unknown"
	}
}

func quote(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return strconv.Quote(s)
	}
	return string(b)
}

// propertyKey quotes keys that are not valid identifiers.
func propertyKey(key string) string {
	if isTSIdentifier(key) {
		return key
	}
	return quote(key)
}

func isTSIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func docComment(text string, depth int) string {
	pad := strings.Repeat(indentUnit, depth)
	text = strings.ReplaceAll(strings.TrimSpace(text), "*/", "*\\/")
	lines := strings.Split(text, "\n")
	if len(lines) == 1 {
		return pad + "/** " + lines[0] + " */\n"
	}
	var b strings.Builder
	b.WriteString(pad + "/**\n")
	for _, l := range lines {
		b.WriteString(strings.TrimRight(pad+" * "+l, " ") + "\n")
	}
	b.WriteString(pad + " */\n")
	return b.String()
}
