package spec

import "github.com/codecup-codeday/rctf-spooky/internal/schema"

// Definitions loaded from the source documents.

type HttpMethod string

const (
	GET     HttpMethod = "GET"
	POST    HttpMethod = "POST"
	PUT     HttpMethod = "PUT"
	PATCH   HttpMethod = "PATCH"
	DELETE  HttpMethod = "DELETE"
	HEAD    HttpMethod = "HEAD"
	OPTIONS HttpMethod = "OPTIONS"
)

// Variant names the payload form of a response kind.
type Variant string

const (
	VariantMessage        Variant = "message"
	VariantRawJSON        Variant = "rawJson"
	VariantRawContentType Variant = "rawContentType"
)

type ResponseDefinition struct {
	Kind     string // lowerCamel, from the file name
	TypeName string // Pascal form of Kind
	Path     string // source file
	Status   int
	Variant  Variant

	Message        string
	Data           any // schema of the data field; nil when absent
	RawJSON        any // schema of the whole body for VariantRawJSON
	RawContentType string

	Document *schema.Object
}

type PermissionEntry struct {
	Name string
	// Index is the bit index of a base role. It is meaningful only when
	// Composite is false.
	Index int
	// Refs lists the roles unioned into a composite role.
	Refs      []string
	Composite bool
}

// PermissionConfig is the permission document with entries in declaration
// order.
type PermissionConfig struct {
	Path    string
	Entries []PermissionEntry
}

// Names returns the declared role names in declaration order.
func (c *PermissionConfig) Names() []string {
	out := make([]string, 0, len(c.Entries))
	for _, e := range c.Entries {
		out = append(out, e.Name)
	}
	return out
}

type RouteDefinition struct {
	Ident       string // lowerCamel, from the path relative to the routes dir
	TypeName    string
	Path        string // source file
	Method      HttpMethod
	URLPath     string
	Responses   []string
	Perms       []string
	RequireAuth bool

	Body        any // schema fragments; nil when absent
	Querystring any
	Params      any

	Document *schema.Object
}
