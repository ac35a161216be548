package contract

import (
	"fmt"
	"sort"
	"strings"

	"github.com/codecup-codeday/rctf-spooky/internal/perms"
	"github.com/codecup-codeday/rctf-spooky/internal/schema"
	"github.com/codecup-codeday/rctf-spooky/internal/spec"
)

// Input gathers everything Synthesize consumes. Responses and Routes may be
// in any order.
type Input struct {
	Responses   []*spec.ResponseDefinition
	Permissions *spec.PermissionConfig
	Table       *perms.Table
	Routes      []*spec.RouteDefinition
}

// Synthesize turns validated definitions into a Bundle. Schema fragments are
// normalized on the way; the definitions themselves are not modified.
func Synthesize(in Input) (*Bundle, error) {
	if in.Permissions == nil || in.Table == nil {
		return nil, fmt.Errorf("contract: permissions are required")
	}

	b := &Bundle{}

	defs := append([]*spec.ResponseDefinition(nil), in.Responses...)
	sort.Slice(defs, func(i, j int) bool { return defs[i].Kind < defs[j].Kind })
	byKind := make(map[string]*Response, len(defs))
	for _, d := range defs {
		r, err := synthesizeResponse(d)
		if err != nil {
			return nil, err
		}
		b.Responses = append(b.Responses, r)
		byKind[r.Kind] = r
	}

	entries := make([]Permission, 0, in.Table.Len())
	for _, e := range in.Permissions.Entries {
		v, ok := in.Table.Value(e.Name)
		if !ok {
			return nil, &spec.Error{
				Code:     spec.UndeclaredReference,
				Message:  fmt.Sprintf("role %q has no resolved value", e.Name),
				Location: in.Permissions.Path,
				Identity: e.Name,
			}
		}
		p := Permission{Name: e.Name, Value: v, Composite: e.Composite}
		if e.Composite {
			p.Refs = append([]string(nil), e.Refs...)
		}
		entries = append(entries, p)
	}
	b.Permissions = newPermissions(entries, in.Permissions.Path)

	routes := append([]*spec.RouteDefinition(nil), in.Routes...)
	sort.Slice(routes, func(i, j int) bool { return routes[i].Ident < routes[j].Ident })
	for _, d := range routes {
		r, err := synthesizeRoute(d, byKind, b.Permissions)
		if err != nil {
			return nil, err
		}
		b.Routes = append(b.Routes, r)
	}
	return b, nil
}

func synthesizeResponse(d *spec.ResponseDefinition) (*Response, error) {
	r := &Response{
		Kind:           d.Kind,
		TypeName:       d.TypeName,
		Status:         d.Status,
		Variant:        d.Variant,
		Message:        d.Message,
		RawContentType: d.RawContentType,
		Source:         d.Path,
	}
	var err error
	if d.Data != nil {
		if r.Data, err = shape(d.TypeName+"Data", d.Data, d.Path, d.Kind); err != nil {
			return nil, err
		}
	}
	if d.RawJSON != nil {
		if r.RawJSON, err = shape(d.TypeName, d.RawJSON, d.Path, d.Kind); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func synthesizeRoute(d *spec.RouteDefinition, byKind map[string]*Response, p *Permissions) (*Route, error) {
	r := &Route{
		Ident:         d.Ident,
		TypeName:      d.TypeName,
		Method:        d.Method,
		Path:          d.URLPath,
		RequireAuth:   d.RequireAuth,
		ResponseKinds: append([]string(nil), d.Responses...),
		Perms:         append([]string(nil), d.Perms...),
		Source:        d.Path,
	}

	var missing []spec.Violation
	for i, kind := range d.Responses {
		resp, ok := byKind[kind]
		if !ok {
			missing = append(missing, spec.Violation{
				Pointer: fmt.Sprintf("#/responses/%d", i),
				Field:   "enum",
				Reason:  fmt.Sprintf("undeclared response kind %q", kind),
			})
			continue
		}
		r.Responses = append(r.Responses, resp)
	}
	for i, role := range d.Perms {
		v, ok := p.Lookup(role)
		if !ok {
			missing = append(missing, spec.Violation{
				Pointer: fmt.Sprintf("#/perms/%d", i),
				Field:   "enum",
				Reason:  fmt.Sprintf("undeclared role %q", role),
			})
			continue
		}
		r.PermMask |= v
	}
	if len(missing) > 0 {
		return nil, &spec.Error{
			Code:       spec.UndeclaredReference,
			Message:    fmt.Sprintf("route %s refers to undeclared names", d.Ident),
			Location:   d.Path,
			Identity:   d.Ident,
			Violations: missing,
		}
	}

	prefix := r.RequestTypeName()
	var err error
	if d.Body != nil {
		if r.Body, err = shape(prefix+"Body", d.Body, d.Path, d.Ident); err != nil {
			return nil, err
		}
	}
	if d.Querystring != nil {
		if r.Querystring, err = shape(prefix+"QS", d.Querystring, d.Path, d.Ident); err != nil {
			return nil, err
		}
	}
	if d.Params != nil {
		if r.Params, err = shape(prefix+"Params", d.Params, d.Path, d.Ident); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func shape(name string, fragment any, location, identity string) (*Shape, error) {
	normalized, err := schema.Normalize(fragment)
	if err != nil {
		return nil, &spec.Error{
			Code:     spec.SchemaValidation,
			Message:  fmt.Sprintf("%s: cannot normalize schema %s: %v", identity, name, err),
			Location: location,
			Identity: identity,
			Cause:    err,
		}
	}
	return &Shape{Name: name, Schema: normalized}, nil
}

// Summary is a one-line description of the bundle for logs and the CLI.
func (b *Bundle) Summary() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("%d response kinds", len(b.Responses)))
	if b.Permissions != nil {
		parts = append(parts, fmt.Sprintf("%d roles", len(b.Permissions.Entries)))
	}
	parts = append(parts, fmt.Sprintf("%d routes", len(b.Routes)))
	return strings.Join(parts, ", ")
}
