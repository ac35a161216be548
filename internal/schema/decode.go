package schema

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DecodeError describes a document that could not be turned into a tree.
// Line and Column are 1-based and zero when unknown.
type DecodeError struct {
	Line    int
	Column  int
	Message string
}

func (e *DecodeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Message)
	}
	return e.Message
}

// MaxNodes bounds the number of nodes a document may expand to once its
// aliases are counted at every use.
const MaxNodes = 100_000

// Decode parses a YAML (or JSON) document into a tree. Mapping key order is
// preserved. Duplicate keys, merge keys and aliases that refer to one of
// their own ancestors are rejected. Every use of an anchor yields the same
// decoded value. An empty document decodes to nil.
func Decode(data []byte) (any, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &DecodeError{Message: strings.TrimPrefix(err.Error(), "yaml: ")}
	}
	if doc.Kind == 0 {
		return nil, nil
	}
	d := &decoder{
		active: make(map[*yaml.Node]bool),
		memo:   make(map[*yaml.Node]any),
		sizes:  make(map[*yaml.Node]int),
	}
	return d.node(&doc)
}

type decoder struct {
	// active holds the nodes currently being expanded, to catch aliases
	// pointing back at an ancestor.
	active map[*yaml.Node]bool
	// memo and sizes hold the value and expanded node count of every
	// anchored node decoded so far.
	memo     map[*yaml.Node]any
	sizes    map[*yaml.Node]int
	expanded int
}

func (d *decoder) node(n *yaml.Node) (any, error) {
	if d.active[n] {
		return nil, &DecodeError{Line: n.Line, Column: n.Column, Message: "alias refers to an enclosing node (cyclic schema)"}
	}
	if v, ok := d.memo[n]; ok {
		return v, d.spend(n, d.sizes[n])
	}
	start := d.expanded
	if err := d.spend(n, 1); err != nil {
		return nil, err
	}

	d.active[n] = true
	v, err := d.decode(n)
	delete(d.active, n)
	if err != nil {
		return nil, err
	}
	if n.Anchor != "" {
		d.memo[n] = v
		d.sizes[n] = d.expanded - start
	}
	return v, nil
}

func (d *decoder) spend(n *yaml.Node, count int) error {
	d.expanded += count
	if d.expanded > MaxNodes {
		return &DecodeError{Line: n.Line, Column: n.Column, Message: fmt.Sprintf("document expands to more than %d nodes through aliases", MaxNodes)}
	}
	return nil
}

func (d *decoder) decode(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return d.node(n.Content[0])
	case yaml.AliasNode:
		return d.node(n.Alias)
	case yaml.MappingNode:
		return d.mapping(n)
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := d.node(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.ScalarNode:
		return scalar(n)
	default:
		return nil, &DecodeError{Line: n.Line, Column: n.Column, Message: fmt.Sprintf("unsupported YAML node kind %d", n.Kind)}
	}
}

func (d *decoder) mapping(n *yaml.Node) (*Object, error) {
	o := NewObject()
	for i := 0; i+1 < len(n.Content); i += 2 {
		kn, vn := n.Content[i], n.Content[i+1]
		if kn.Kind == yaml.AliasNode {
			kn = kn.Alias
		}
		if kn.ShortTag() == "!!merge" {
			return nil, &DecodeError{Line: kn.Line, Column: kn.Column, Message: "merge keys (<<) are not supported"}
		}
		if kn.Kind != yaml.ScalarNode {
			return nil, &DecodeError{Line: kn.Line, Column: kn.Column, Message: "mapping keys must be scalars"}
		}
		key := kn.Value
		if o.Has(key) {
			return nil, &DecodeError{Line: kn.Line, Column: kn.Column, Message: fmt.Sprintf("duplicate key %q", key)}
		}
		v, err := d.node(vn)
		if err != nil {
			return nil, err
		}
		o.Set(key, v)
	}
	return o, nil
}

func scalar(n *yaml.Node) (any, error) {
	switch n.ShortTag() {
	case "!!null":
		return nil, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, wrapScalarErr(n, err)
		}
		return b, nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			// Out of int64 range; keep it as a float like JSON would.
			f, ferr := strconv.ParseFloat(n.Value, 64)
			if ferr != nil {
				return nil, wrapScalarErr(n, err)
			}
			return f, nil
		}
		return i, nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, wrapScalarErr(n, err)
		}
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, &DecodeError{Line: n.Line, Column: n.Column, Message: fmt.Sprintf("non-finite number %q", n.Value)}
		}
		return f, nil
	case "!!str", "":
		return n.Value, nil
	case "!!timestamp":
		// Schema documents are JSON-compatible; keep the literal text.
		return n.Value, nil
	default:
		return nil, &DecodeError{Line: n.Line, Column: n.Column, Message: fmt.Sprintf("unsupported tag %s", n.Tag)}
	}
}

func wrapScalarErr(n *yaml.Node, err error) error {
	var te *yaml.TypeError
	msg := err.Error()
	if errors.As(err, &te) && len(te.Errors) > 0 {
		msg = te.Errors[0]
	}
	return &DecodeError{Line: n.Line, Column: n.Column, Message: msg}
}
