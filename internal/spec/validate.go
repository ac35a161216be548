package spec

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	json "github.com/goccy/go-json"

	"github.com/codecup-codeday/rctf-spooky/internal/schema"
)

// Validation runs in two independent passes. The structural pass checks a
// document against a fixed, embedded meta-schema. The referential pass checks
// names against the sets of responses and roles that were loaded before.

//go:embed metaschema/*.yml
var metaFS embed.FS

// DocumentKind selects a meta-schema.
type DocumentKind string

const (
	ResponseDocument   DocumentKind = "response"
	PermissionDocument DocumentKind = "perms"
	RouteDocument      DocumentKind = "route"
)

var metaSchemas = struct {
	once    sync.Once
	schemas map[DocumentKind]*openapi3.Schema
	err     error
}{}

// MetaSchema returns the compiled meta-schema for a document kind. The
// returned schema is shared and must not be modified.
func MetaSchema(kind DocumentKind) (*openapi3.Schema, error) {
	metaSchemas.once.Do(func() {
		metaSchemas.schemas = make(map[DocumentKind]*openapi3.Schema, 3)
		for _, k := range []DocumentKind{ResponseDocument, PermissionDocument, RouteDocument} {
			s, err := loadMetaSchema(k)
			if err != nil {
				metaSchemas.err = err
				return
			}
			metaSchemas.schemas[k] = s
		}
	})
	if metaSchemas.err != nil {
		return nil, metaSchemas.err
	}
	s, ok := metaSchemas.schemas[kind]
	if !ok {
		return nil, fmt.Errorf("spec: unknown document kind %q", kind)
	}
	return s, nil
}

func loadMetaSchema(kind DocumentKind) (*openapi3.Schema, error) {
	raw, err := metaFS.ReadFile("metaschema/" + string(kind) + ".schema.yml")
	if err != nil {
		return nil, fmt.Errorf("read %s meta-schema: %w", kind, err)
	}
	tree, err := schema.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s meta-schema: %w", kind, err)
	}
	obj, ok := tree.(*schema.Object)
	if !ok {
		return nil, fmt.Errorf("%s meta-schema is not an object", kind)
	}
	data, err := obj.MarshalJSON()
	if err != nil {
		return nil, err
	}
	s := &openapi3.Schema{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("load %s meta-schema: %w", kind, err)
	}
	if err := s.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("%s meta-schema is invalid: %w", kind, err)
	}
	return s, nil
}

// CheckStructure validates doc against the meta-schema of kind and returns
// every violation found, or nil.
func CheckStructure(kind DocumentKind, doc any) ([]Violation, error) {
	meta, err := MetaSchema(kind)
	if err != nil {
		return nil, err
	}
	verr := meta.VisitJSON(schema.Plain(doc), openapi3.MultiErrors())
	if verr == nil {
		return nil, nil
	}
	return collectViolations(verr), nil
}

func collectViolations(err error) []Violation {
	var out []Violation
	var walk func(error)
	walk = func(err error) {
		switch e := err.(type) {
		case openapi3.MultiError:
			for _, inner := range e {
				walk(inner)
			}
		case *openapi3.SchemaError:
			out = append(out, Violation{
				Pointer: pointer(e.JSONPointer()),
				Field:   e.SchemaField,
				Reason:  e.Reason,
			})
		default:
			var se *openapi3.SchemaError
			if errors.As(err, &se) {
				walk(se)
				return
			}
			out = append(out, Violation{Reason: err.Error()})
		}
	}
	walk(err)
	return dedupe(out)
}

func pointer(parts []string) string {
	if len(parts) == 0 {
		return "#"
	}
	escaped := make([]string, len(parts))
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~", "~0")
		escaped[i] = strings.ReplaceAll(p, "/", "~1")
	}
	return "#/" + strings.Join(escaped, "/")
}

func dedupe(vs []Violation) []Violation {
	seen := make(map[Violation]struct{}, len(vs))
	out := vs[:0]
	for _, v := range vs {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Refs holds the names that routes and composite roles may refer to, sorted
// so that violations come out in a reproducible order.
type Refs struct {
	ResponseKinds []string
	Roles         []string
}

// NewRefs builds sorted reference sets from loaded definitions.
func NewRefs(responses []*ResponseDefinition, perms *PermissionConfig) Refs {
	r := Refs{}
	for _, d := range responses {
		r.ResponseKinds = append(r.ResponseKinds, d.Kind)
	}
	if perms != nil {
		r.Roles = perms.Names()
	}
	sort.Strings(r.ResponseKinds)
	sort.Strings(r.Roles)
	return r
}

func (r Refs) hasKind(name string) bool { return contains(r.ResponseKinds, name) }
func (r Refs) hasRole(name string) bool { return contains(r.Roles, name) }

func contains(sorted []string, name string) bool {
	i := sort.SearchStrings(sorted, name)
	return i < len(sorted) && sorted[i] == name
}

// CheckPermissionRefs reports composite entries naming undeclared roles.
func CheckPermissionRefs(cfg *PermissionConfig) []Violation {
	refs := NewRefs(nil, cfg)
	var out []Violation
	for _, e := range cfg.Entries {
		if !e.Composite {
			continue
		}
		for i, ref := range e.Refs {
			if !refs.hasRole(ref) {
				out = append(out, Violation{
					Pointer: pointer([]string{e.Name, fmt.Sprint(i)}),
					Field:   "enum",
					Reason:  fmt.Sprintf("undeclared role %q (allowed: %s)", ref, strings.Join(refs.Roles, ", ")),
				})
			}
		}
	}
	return out
}

// CheckRouteRefs reports response kinds and roles a route names but nobody
// declared.
func CheckRouteRefs(route *RouteDefinition, refs Refs) []Violation {
	var out []Violation
	for i, kind := range route.Responses {
		if !refs.hasKind(kind) {
			out = append(out, Violation{
				Pointer: pointer([]string{"responses", fmt.Sprint(i)}),
				Field:   "enum",
				Reason:  fmt.Sprintf("undeclared response kind %q", kind),
			})
		}
	}
	for i, role := range route.Perms {
		if !refs.hasRole(role) {
			out = append(out, Violation{
				Pointer: pointer([]string{"perms", fmt.Sprint(i)}),
				Field:   "enum",
				Reason:  fmt.Sprintf("undeclared role %q", role),
			})
		}
	}
	return out
}
