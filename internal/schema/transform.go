package schema

import "errors"

// ErrCyclic is returned when a node is reachable from itself.
var ErrCyclic = errors.New("schema: cyclic schema graph")

// Modifier rewrites a single object node. It must not mutate its argument;
// returning the argument unchanged is allowed.
type Modifier func(*Object) *Object

// Rewrite applies mod to node and then to the children of whatever mod
// returned: object properties, array items (single or tuple) and oneOf
// branches. Rewriting is top-down, so children introduced by mod are
// themselves visited. Every visited object is copied before its children are
// replaced; the input tree is left untouched. An input that reaches itself
// through any object or list fails with ErrCyclic before mod runs. A subtree
// shared by several parents is rewritten once and the result shared.
func Rewrite(node any, mod Modifier) (any, error) {
	if err := checkAcyclic(node); err != nil {
		return nil, err
	}
	r := &rewriter{
		mod:  mod,
		path: make(map[*Object]struct{}),
		memo: make(map[*Object]any),
	}
	return r.rewrite(node)
}

// Pipeline composes modifiers into a single Rewrite pass per modifier, in
// order.
func Pipeline(mods ...Modifier) func(any) (any, error) {
	return func(node any) (any, error) {
		var err error
		for _, mod := range mods {
			node, err = Rewrite(node, mod)
			if err != nil {
				return nil, err
			}
		}
		return node, nil
	}
}

// checkAcyclic walks every object and list reachable from node, depth first.
func checkAcyclic(node any) error {
	const (
		active = 1
		done   = 2
	)
	state := make(map[any]int)
	var walk func(any) error
	walk = func(n any) error {
		var (
			id       any
			children []any
		)
		switch v := n.(type) {
		case *Object:
			if v == nil {
				return nil
			}
			id = v
			for _, k := range v.Keys() {
				c, _ := v.Get(k)
				children = append(children, c)
			}
		case []any:
			if len(v) == 0 {
				return nil
			}
			id = &v[0]
			children = v
		default:
			return nil
		}
		switch state[id] {
		case active:
			return ErrCyclic
		case done:
			return nil
		}
		state[id] = active
		for _, c := range children {
			if err := walk(c); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}
	return walk(node)
}

type rewriter struct {
	mod  Modifier
	path map[*Object]struct{}
	// memo maps input objects to their finished rewrite.
	memo map[*Object]any
}

func (r *rewriter) rewrite(node any) (any, error) {
	obj, ok := node.(*Object)
	if !ok || obj == nil {
		return node, nil
	}
	if done, ok := r.memo[obj]; ok {
		return done, nil
	}
	// Modifiers may build objects that are not part of the input.
	if _, seen := r.path[obj]; seen {
		return nil, ErrCyclic
	}
	r.path[obj] = struct{}{}
	defer delete(r.path, obj)

	out := r.mod(obj)
	if out == nil {
		r.memo[obj] = nil
		return nil, nil
	}
	out = out.ShallowCopy()

	switch TypeOf(out) {
	case "object":
		if props, ok := out.Object("properties"); ok {
			next := NewObject()
			for _, k := range props.Keys() {
				child, _ := props.Get(k)
				rc, err := r.rewrite(child)
				if err != nil {
					return nil, err
				}
				next.Set(k, rc)
			}
			out.Set("properties", next)
		}
	case "array":
		if items, ok := out.Get("items"); ok {
			ri, err := r.rewriteList(items)
			if err != nil {
				return nil, err
			}
			out.Set("items", ri)
		}
	}
	if branches, ok := out.Get("oneOf"); ok {
		if list, isList := branches.([]any); isList {
			rb, err := r.rewriteList(list)
			if err != nil {
				return nil, err
			}
			out.Set("oneOf", rb)
		}
	}
	r.memo[obj] = out
	return out, nil
}

// rewriteList handles a single schema or a tuple of schemas.
func (r *rewriter) rewriteList(node any) (any, error) {
	list, ok := node.([]any)
	if !ok {
		return r.rewrite(node)
	}
	out := make([]any, len(list))
	for i, item := range list {
		v, err := r.rewrite(item)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// DisallowAdditionalProperties closes every object schema that does not state
// an additionalProperties policy of its own.
func DisallowAdditionalProperties(node any) (any, error) {
	return Rewrite(node, denyAdditional)
}

func denyAdditional(o *Object) *Object {
	if TypeOf(o) != "object" || o.Has("additionalProperties") {
		return o
	}
	c := o.ShallowCopy()
	c.Set("additionalProperties", false)
	return c
}

// NormalizeOneOf pushes the sibling fields of every oneOf node down into each
// alternative, leaving a node that holds only the oneOf list. Fields of an
// alternative win over the shared ones.
func NormalizeOneOf(node any) (any, error) {
	return Rewrite(node, flattenOneOf)
}

func flattenOneOf(o *Object) *Object {
	raw, ok := o.Get("oneOf")
	if !ok {
		return o
	}
	branches, ok := raw.([]any)
	if !ok {
		return o
	}
	shared := o.Without("oneOf")
	merged := make([]any, len(branches))
	for i, b := range branches {
		sub, isObj := b.(*Object)
		if !isObj || sub == nil {
			merged[i] = b
			continue
		}
		m := shared.ShallowCopy()
		for _, k := range sub.Keys() {
			v, _ := sub.Get(k)
			m.Set(k, v)
		}
		merged[i] = m
	}
	return ObjectOf("oneOf", merged)
}

// Normalize is the pipeline applied to every schema fragment that ends up in
// the contract: alternation flattening, then default-deny.
var Normalize = Pipeline(flattenOneOf, denyAdditional)
