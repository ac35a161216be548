// Package contract holds the compiled, consumer-facing description of an API:
// response kinds, the permission table and routes with their request shapes.
package contract

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/codecup-codeday/rctf-spooky/internal/spec"
)

// Bundle is the output of a compilation. Every slice is in a deterministic
// order so that rendering it twice gives identical bytes.
type Bundle struct {
	Responses   []*Response  `json:"responses"`
	Permissions *Permissions `json:"permissions"`
	Routes      []*Route     `json:"routes"`
}

// Response describes one response kind.
type Response struct {
	Kind     string       `json:"kind"`
	TypeName string       `json:"typeName"`
	Status   int          `json:"status"`
	Variant  spec.Variant `json:"variant"`

	Message string `json:"message,omitempty"`
	// Data is the normalized schema of the message payload, named
	// <TypeName>Data.
	Data *Shape `json:"data,omitempty"`
	// RawJSON is the normalized schema of a raw JSON body, named TypeName.
	RawJSON        *Shape `json:"rawJson,omitempty"`
	RawContentType string `json:"rawContentType,omitempty"`

	Source string `json:"-"`
}

// HasPayload reports whether a typed payload exists for the kind.
func (r *Response) HasPayload() bool { return r.Data != nil || r.RawJSON != nil }

// Permission is one resolved role.
type Permission struct {
	Name      string   `json:"name"`
	Value     int64    `json:"value"`
	Composite bool     `json:"composite,omitempty"`
	Refs      []string `json:"refs,omitempty"`
}

// Permissions lists the resolved roles in declaration order.
type Permissions struct {
	Entries []Permission `json:"entries"`
	Source  string       `json:"-"`

	index map[string]int
}

func newPermissions(entries []Permission, source string) *Permissions {
	p := &Permissions{Entries: entries, Source: source, index: make(map[string]int, len(entries))}
	for i, e := range entries {
		p.index[e.Name] = i
	}
	return p
}

// Lookup returns the bitmask of a role.
func (p *Permissions) Lookup(name string) (int64, bool) {
	if p == nil {
		return 0, false
	}
	i, ok := p.index[name]
	if !ok {
		return 0, false
	}
	return p.Entries[i].Value, true
}

// Shape is a named, normalized schema.
type Shape struct {
	Name   string `json:"name"`
	Schema any    `json:"schema"`
}

// Route describes one endpoint.
type Route struct {
	Ident       string          `json:"ident"`
	TypeName    string          `json:"typeName"`
	Method      spec.HttpMethod `json:"method"`
	Path        string          `json:"path"`
	RequireAuth bool            `json:"requireAuth"`

	// ResponseKinds keeps the order the route declared them in.
	ResponseKinds []string    `json:"responses"`
	Responses     []*Response `json:"-"`

	Perms    []string `json:"perms,omitempty"`
	PermMask int64    `json:"permMask"`

	Body        *Shape `json:"body,omitempty"`
	Querystring *Shape `json:"querystring,omitempty"`
	Params      *Shape `json:"params,omitempty"`

	Source string `json:"-"`
}

// RequestTypeName is the prefix of every request shape of the route.
func (r *Route) RequestTypeName() string { return r.TypeName + "Request" }

// ResponseByKind finds a response kind in the bundle.
func (b *Bundle) ResponseByKind(kind string) (*Response, bool) {
	for _, r := range b.Responses {
		if r.Kind == kind {
			return r, true
		}
	}
	return nil, false
}

// JSON renders the bundle as indented JSON. Schema key order is preserved.
func (b *Bundle) JSON() ([]byte, error) {
	out, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// DeclaredTypes lists the named types an emitter declares for the bundle:
// message payloads and their data, raw JSON payloads and route request
// shapes, in bundle order.
func (b *Bundle) DeclaredTypes() []string {
	var names []string
	for _, r := range b.Responses {
		switch r.Variant {
		case spec.VariantMessage:
			if r.Data != nil {
				names = append(names, r.Data.Name)
			}
			names = append(names, r.TypeName)
		case spec.VariantRawJSON:
			if r.RawJSON != nil {
				names = append(names, r.RawJSON.Name)
			}
		}
	}
	for _, r := range b.Routes {
		for _, s := range []*Shape{r.Body, r.Querystring, r.Params} {
			if s != nil {
				names = append(names, s.Name)
			}
		}
	}
	return names
}

// CheckTypeNames fails when two declared types share a name or one of them
// takes a name from reserved.
func (b *Bundle) CheckTypeNames(reserved ...string) error {
	taken := make(map[string]string, len(reserved))
	for _, name := range reserved {
		taken[name] = "a generated helper"
	}
	for _, name := range b.DeclaredTypes() {
		if by, ok := taken[name]; ok {
			return fmt.Errorf("type name %s is declared twice (clashes with %s)", name, by)
		}
		taken[name] = "another declared type"
	}
	return nil
}
