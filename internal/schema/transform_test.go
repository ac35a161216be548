package schema

import (
	"errors"
	"testing"
)

func mustDecode(t *testing.T, src string) any {
	t.Helper()
	v, err := Decode([]byte(src))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestDisallowAdditionalProperties_NoAliasing(t *testing.T) {
	t.Parallel()
	in := ObjectOf(
		"type", "object",
		"properties", ObjectOf("a", ObjectOf("type", "string")),
	)
	snapshot := Clone(in)

	out, err := DisallowAdditionalProperties(in)
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	want := ObjectOf(
		"type", "object",
		"properties", ObjectOf("a", ObjectOf("type", "string")),
		"additionalProperties", false,
	)
	if !Equal(out, want) {
		t.Fatalf("unexpected result: %s", mustJSON(t, out))
	}
	if !Equal(in, snapshot) {
		t.Fatalf("input was modified: %s", mustJSON(t, in))
	}
	if in.Has("additionalProperties") {
		t.Fatalf("input gained additionalProperties")
	}
}

func TestDisallowAdditionalProperties_Nested(t *testing.T) {
	t.Parallel()
	in := mustDecode(t, `
type: object
properties:
  user:
    type: object
    properties:
      tags:
        type: array
        items:
          type: object
          properties:
            name: {type: string}
  extra:
    type: object
    additionalProperties: true
  pair:
    type: array
    items:
      - type: object
      - type: string
`)
	out, err := DisallowAdditionalProperties(in)
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	want := mustDecode(t, `
type: object
additionalProperties: false
properties:
  user:
    type: object
    additionalProperties: false
    properties:
      tags:
        type: array
        items:
          type: object
          additionalProperties: false
          properties:
            name: {type: string}
  extra:
    type: object
    additionalProperties: true
  pair:
    type: array
    items:
      - type: object
        additionalProperties: false
      - type: string
`)
	if !Equal(out, want) {
		t.Fatalf("unexpected result: %s", mustJSON(t, out))
	}
}

func TestNormalizeOneOf_MergesSiblings(t *testing.T) {
	t.Parallel()
	in := ObjectOf(
		"oneOf", []any{ObjectOf("type", "a"), ObjectOf("type", "b")},
		"extra", int64(1),
	)
	out, err := NormalizeOneOf(in)
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	want := ObjectOf("oneOf", []any{
		ObjectOf("type", "a", "extra", int64(1)),
		ObjectOf("type", "b", "extra", int64(1)),
	})
	if !Equal(out, want) {
		t.Fatalf("unexpected result: %s", mustJSON(t, out))
	}
	if !in.Has("extra") {
		t.Fatalf("input was modified")
	}
}

func TestNormalizeOneOf_BranchWinsAndNested(t *testing.T) {
	t.Parallel()
	in := mustDecode(t, `
type: object
properties:
  payload:
    type: object
    required: [kind]
    oneOf:
      - properties:
          kind: {const: file}
      - required: [kind, url]
        properties:
          kind: {const: link}
`)
	out, err := NormalizeOneOf(in)
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	want := mustDecode(t, `
type: object
properties:
  payload:
    oneOf:
      - type: object
        required: [kind]
        properties:
          kind: {const: file}
      - type: object
        required: [kind, url]
        properties:
          kind: {const: link}
`)
	if !Equal(out, want) {
		t.Fatalf("unexpected result: %s", mustJSON(t, out))
	}
}

func TestNormalizeOneOf_NestedAlternation(t *testing.T) {
	t.Parallel()
	in := mustDecode(t, `
shared: 1
oneOf:
  - branch: a
    oneOf:
      - leaf: x
      - leaf: y
  - branch: b
`)
	out, err := NormalizeOneOf(in)
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	want := mustDecode(t, `
oneOf:
  - oneOf:
      - {shared: 1, branch: a, leaf: x}
      - {shared: 1, branch: a, leaf: y}
  - {shared: 1, branch: b}
`)
	if !Equal(out, want) {
		t.Fatalf("unexpected result: %s", mustJSON(t, out))
	}
}

func TestNormalize_Pipeline(t *testing.T) {
	t.Parallel()
	in := mustDecode(t, `
type: object
properties:
  name: {type: string}
oneOf:
  - required: [name]
  - properties:
      id: {type: integer}
`)
	out, err := Normalize(in)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	want := mustDecode(t, `
oneOf:
  - type: object
    additionalProperties: false
    required: [name]
    properties:
      name: {type: string}
  - type: object
    additionalProperties: false
    properties:
      id: {type: integer}
`)
	if !Equal(out, want) {
		t.Fatalf("unexpected result: %s", mustJSON(t, out))
	}
}

func TestRewrite_DetectsCycle(t *testing.T) {
	t.Parallel()
	root := ObjectOf("type", "object")
	root.Set("properties", ObjectOf("self", root))
	if _, err := DisallowAdditionalProperties(root); !errors.Is(err, ErrCyclic) {
		t.Fatalf("expected ErrCyclic, got %v", err)
	}
}

func TestRewrite_DetectsOneOfCycle(t *testing.T) {
	t.Parallel()
	direct := ObjectOf("type", "object")
	direct.Set("oneOf", []any{direct})

	branch := ObjectOf("type", "object")
	indirect := ObjectOf("oneOf", []any{ObjectOf("required", []any{"a"}), branch})
	branch.Set("properties", ObjectOf("back", indirect))

	for name, root := range map[string]*Object{"direct": direct, "indirect": indirect} {
		if _, err := NormalizeOneOf(root); !errors.Is(err, ErrCyclic) {
			t.Errorf("%s: NormalizeOneOf: expected ErrCyclic, got %v", name, err)
		}
		if _, err := Normalize(root); !errors.Is(err, ErrCyclic) {
			t.Errorf("%s: Normalize: expected ErrCyclic, got %v", name, err)
		}
	}
}

func TestRewrite_DetectsListCycle(t *testing.T) {
	t.Parallel()
	items := make([]any, 1)
	items[0] = items
	root := ObjectOf("type", "array", "items", items)
	if _, err := DisallowAdditionalProperties(root); !errors.Is(err, ErrCyclic) {
		t.Fatalf("expected ErrCyclic, got %v", err)
	}
}

func TestRewrite_SharedSubtreeRewrittenOnce(t *testing.T) {
	t.Parallel()
	shared := ObjectOf("type", "object", "properties", ObjectOf("x", ObjectOf("type", "string")))
	root := ObjectOf("type", "object", "properties", ObjectOf("a", shared, "b", shared))
	calls := 0
	out, err := Rewrite(root, func(o *Object) *Object {
		if o == shared {
			calls++
		}
		return o
	})
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if calls != 1 {
		t.Fatalf("shared subtree visited %d times", calls)
	}
	props, _ := out.(*Object).Object("properties")
	a, _ := props.Object("a")
	b, _ := props.Object("b")
	if a != b || a == shared {
		t.Fatalf("expected one shared copy")
	}
}

func TestRewrite_SharedSubtreeIsNotACycle(t *testing.T) {
	t.Parallel()
	shared := ObjectOf("type", "object")
	root := ObjectOf("type", "object", "properties", ObjectOf("a", shared, "b", shared))
	out, err := DisallowAdditionalProperties(root)
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	props, _ := out.(*Object).Object("properties")
	a, _ := props.Object("a")
	if a == shared {
		t.Fatalf("expected copy of shared subtree")
	}
	if shared.Has("additionalProperties") {
		t.Fatalf("shared subtree was modified")
	}
}

func TestRewrite_LeavesPassThrough(t *testing.T) {
	t.Parallel()
	for _, leaf := range []any{nil, true, int64(3), "x", []any{"a"}} {
		out, err := DisallowAdditionalProperties(leaf)
		if err != nil {
			t.Fatalf("rewrite %v: %v", leaf, err)
		}
		if !Equal(out, leaf) {
			t.Fatalf("leaf changed: %v -> %v", leaf, out)
		}
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	o, ok := v.(*Object)
	if !ok {
		return "<non-object>"
	}
	b, err := o.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}
