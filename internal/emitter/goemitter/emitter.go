// Package goemitter renders a contract bundle as a single Go source file.
package goemitter

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"go/format"
	"go/token"
	"strconv"
	"strings"
	"text/template"

	json "github.com/goccy/go-json"

	"github.com/codecup-codeday/rctf-spooky/internal/contract"
	"github.com/codecup-codeday/rctf-spooky/internal/emitter/emitfs"
	"github.com/codecup-codeday/rctf-spooky/internal/naming"
	"github.com/codecup-codeday/rctf-spooky/internal/spec"
)

//go:embed templates/contract.go.tpl
var tplFS embed.FS

// DefaultPackage is used when Options.PackageName is empty.
const DefaultPackage = "apitypes"

// Options controls how the Go emitter renders a bundle.
type Options struct {
	OutDir      string // required; target directory
	PackageName string // Go package clause; defaults to DefaultPackage
	Force       bool   // overwrite a non-empty directory
	DryRun      bool   // don't write, only plan
	Verbose     bool
}

// Result returns the planned files and the resolved package name.
type Result struct {
	PackageName string
	Planned     []emitfs.PlannedFile
}

// Emit renders contract.go and contract.json.
func Emit(ctx context.Context, b *contract.Bundle, opts Options) (*Result, error) {
	if b == nil {
		return nil, fmt.Errorf("goemitter: nil bundle")
	}
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, fmt.Errorf("goemitter: OutDir is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pkg, err := packageName(opts.PackageName)
	if err != nil {
		return nil, err
	}

	files, err := Render(b, pkg)
	if err != nil {
		return nil, err
	}
	planned := emitfs.Plan(opts.OutDir, files)
	if !opts.DryRun {
		if err := emitfs.Write(opts.OutDir, files, opts.Force); err != nil {
			return nil, fmt.Errorf("goemitter: %w", err)
		}
	}
	return &Result{PackageName: pkg, Planned: planned}, nil
}

func packageName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return DefaultPackage, nil
	}
	name = strings.ToLower(strings.NewReplacer("-", "", "_", "", ".", "").Replace(name))
	if !token.IsIdentifier(name) || token.IsKeyword(name) {
		return "", fmt.Errorf("goemitter: %q is not a valid Go package name", raw)
	}
	return name, nil
}

// Render produces the file contents without touching the filesystem.
func Render(b *contract.Bundle, pkg string) (emitfs.Files, error) {
	data, err := buildData(b, pkg)
	if err != nil {
		return nil, err
	}
	text, err := tplFS.ReadFile("templates/contract.go.tpl")
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	tpl, err := template.New("contract.go").Parse(string(text))
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("exec template: %w", err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("goemitter: generated code does not parse: %w", err)
	}

	bundleJSON, err := b.JSON()
	if err != nil {
		return nil, fmt.Errorf("goemitter: marshal contract.json: %w", err)
	}
	return emitfs.Files{"contract.go": src, "contract.json": bundleJSON}, nil
}

type templateData struct {
	Package   string
	Perms     []permView
	Responses []responseView
	Routes    []routeView
	Types     []typeDecl
}

type permView struct {
	Const   string
	NameLit string
	Value   int64
}

type responseView struct {
	Const          string
	KindLit        string
	Status         int
	MessageLit     string
	ContentTypeLit string
	SchemaLit      string
}

type routeView struct {
	Const       string
	IdentLit    string
	MethodLit   string
	PathLit     string
	RequireAuth bool
	Perms       int64
	Kinds       string
	BodyLit     string
	QSLit       string
	ParamsLit   string
}

type typeDecl struct {
	Doc  string
	Name string
	Expr string
}

func buildData(b *contract.Bundle, pkg string) (*templateData, error) {
	d := &templateData{Package: pkg}
	used := map[string]int{}

	if b.Permissions != nil {
		for _, p := range b.Permissions.Entries {
			d.Perms = append(d.Perms, permView{
				Const:   constName("Perm", p.Name, used),
				NameLit: strconv.Quote(p.Name),
				Value:   p.Value,
			})
		}
	}

	kindConst := map[string]string{}
	for _, r := range b.Responses {
		c := constName("Kind", r.TypeName, used)
		kindConst[r.Kind] = c
		v := responseView{
			Const:          c,
			KindLit:        strconv.Quote(r.Kind),
			Status:         r.Status,
			MessageLit:     strconv.Quote(r.Message),
			ContentTypeLit: strconv.Quote(r.RawContentType),
			SchemaLit:      "nil",
		}
		switch r.Variant {
		case spec.VariantMessage:
			fields := []string{
				"Kind ResponseKind `json:\"kind\"`",
				"Message string `json:\"message\"`",
			}
			if r.Data != nil {
				d.Types = append(d.Types, typeDecl{Name: r.Data.Name, Expr: goType(r.Data.Schema)})
				fields = append(fields, fmt.Sprintf("Data %s `json:\"data\"`", r.Data.Name))
				lit, err := rawLiteral(r.Data.Schema)
				if err != nil {
					return nil, err
				}
				v.SchemaLit = lit
			}
			d.Types = append(d.Types, typeDecl{
				Doc:  fmt.Sprintf("// %s is the body of a %s response.\n", r.TypeName, r.Kind),
				Name: r.TypeName,
				Expr: "struct {\n" + strings.Join(fields, "\n") + "\n}",
			})
		case spec.VariantRawJSON:
			d.Types = append(d.Types, typeDecl{
				Doc:  fmt.Sprintf("// %s is the raw JSON body of a %s response.\n", r.TypeName, r.Kind),
				Name: r.RawJSON.Name,
				Expr: goType(r.RawJSON.Schema),
			})
			lit, err := rawLiteral(r.RawJSON.Schema)
			if err != nil {
				return nil, err
			}
			v.SchemaLit = lit
		}
		d.Responses = append(d.Responses, v)
	}

	for _, r := range b.Routes {
		kinds := make([]string, 0, len(r.ResponseKinds))
		for _, k := range r.ResponseKinds {
			c, ok := kindConst[k]
			if !ok {
				return nil, fmt.Errorf("goemitter: route %s names unknown response kind %q", r.Ident, k)
			}
			kinds = append(kinds, c)
		}
		v := routeView{
			Const:       constName("Route", r.TypeName, used),
			IdentLit:    strconv.Quote(r.Ident),
			MethodLit:   strconv.Quote(string(r.Method)),
			PathLit:     strconv.Quote(r.Path),
			RequireAuth: r.RequireAuth,
			Perms:       r.PermMask,
			Kinds:       strings.Join(kinds, ", "),
		}
		for _, s := range []struct {
			shape *contract.Shape
			slot  *string
			what  string
		}{
			{r.Body, &v.BodyLit, "body"},
			{r.Querystring, &v.QSLit, "query string"},
			{r.Params, &v.ParamsLit, "path parameters"},
		} {
			*s.slot = "nil"
			if s.shape == nil {
				continue
			}
			lit, err := rawLiteral(s.shape.Schema)
			if err != nil {
				return nil, err
			}
			*s.slot = lit
			d.Types = append(d.Types, typeDecl{
				Doc:  fmt.Sprintf("// %s is the %s of %s %s.\n", s.shape.Name, s.what, r.Method, r.Path),
				Name: s.shape.Name,
				Expr: goType(s.shape.Schema),
			})
		}
		d.Routes = append(d.Routes, v)
	}

	if err := b.CheckTypeNames(reserved...); err != nil {
		return nil, fmt.Errorf("goemitter: %w", err)
	}
	return d, nil
}

var reserved = []string{"Permission", "Permissions", "ResponseKind", "Response", "Responses", "Route", "Routes"}

// constName builds a unique exported identifier from a prefix and a name.
func constName(prefix, name string, used map[string]int) string {
	c := prefix + naming.Pascal(name)
	used[c]++
	if n := used[c]; n > 1 {
		c += strconv.Itoa(n)
	}
	return c
}

// rawLiteral renders a schema as a json.RawMessage conversion of a Go string
// literal.
func rawLiteral(node any) (string, error) {
	raw, err := json.Marshal(node)
	if err != nil {
		return "", fmt.Errorf("goemitter: marshal schema: %w", err)
	}
	s := string(raw)
	if strings.ContainsRune(s, '`') {
		return "json.RawMessage(" + strconv.Quote(s) + ")", nil
	}
	return "json.RawMessage(`" + s + "`)", nil
}
