// Package perms resolves composite permission roles into flat bitmasks.
package perms

import (
	"fmt"
	"sort"
	"strings"

	"github.com/codecup-codeday/rctf-spooky/internal/spec"
)

// Table maps every declared role to its resolved bitmask and remembers the
// declaration order.
type Table struct {
	order  []string
	values map[string]int64
}

// Names returns the roles in declaration order.
func (t *Table) Names() []string { return append([]string(nil), t.order...) }

func (t *Table) Len() int { return len(t.order) }

// Value returns the bitmask of a role.
func (t *Table) Value(name string) (int64, bool) {
	v, ok := t.values[name]
	return v, ok
}

// Mask ORs together the bitmasks of the named roles. An empty list yields 0.
func (t *Table) Mask(names ...string) (int64, error) {
	var mask int64
	for _, n := range names {
		v, ok := t.values[n]
		if !ok {
			return 0, &spec.Error{
				Code:    spec.UndeclaredReference,
				Message: fmt.Sprintf("undeclared role %q", n),
				Roles:   []string{n},
			}
		}
		mask |= v
	}
	return mask, nil
}

// Resolve computes the bitmask of every entry. Base roles resolve to
// 1<<Index; a composite role resolves once all the roles it lists have
// resolved. Entries are retried pass after pass, so declaration order does
// not matter. A pass that resolves nothing means the remaining entries form a
// cycle or refer to undeclared roles.
func Resolve(entries []spec.PermissionEntry) (*Table, error) {
	t := &Table{values: make(map[string]int64, len(entries))}
	byName := make(map[string]spec.PermissionEntry, len(entries))
	queue := make([]string, 0, len(entries))
	for _, e := range entries {
		if _, dup := byName[e.Name]; dup {
			return nil, &spec.Error{
				Code:     spec.DuplicateDefinition,
				Message:  fmt.Sprintf("role %q is declared twice", e.Name),
				Identity: e.Name,
			}
		}
		if !e.Composite && (e.Index < 0 || e.Index > 30) {
			return nil, &spec.Error{
				Code:     spec.SchemaValidation,
				Message:  fmt.Sprintf("role %q has bit index %d outside [0, 30]", e.Name, e.Index),
				Identity: e.Name,
			}
		}
		byName[e.Name] = e
		t.order = append(t.order, e.Name)
		queue = append(queue, e.Name)
	}

	for len(queue) > 0 {
		pass := len(queue)
		for i := 0; i < pass; i++ {
			name := queue[0]
			queue = queue[1:]
			e := byName[name]
			if !e.Composite {
				t.values[name] = int64(1) << e.Index
				continue
			}
			mask, ok := t.tryUnion(e.Refs)
			if ok {
				t.values[name] = mask
			} else {
				queue = append(queue, name)
			}
		}
		if len(queue) == pass {
			stuck := append([]string(nil), queue...)
			sort.Strings(stuck)
			return nil, &spec.Error{
				Code:     spec.UnresolvableReference,
				Message:  fmt.Sprintf("perms: reference loop or undeclared role among %s", strings.Join(stuck, ", ")),
				Identity: "perms",
				Roles:    stuck,
			}
		}
	}
	return t, nil
}

func (t *Table) tryUnion(refs []string) (int64, bool) {
	var mask int64
	for _, r := range refs {
		v, ok := t.values[r]
		if !ok {
			return 0, false
		}
		mask |= v
	}
	return mask, true
}
