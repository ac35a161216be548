// Package tsemitter renders a contract bundle as TypeScript modules.
package tsemitter

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"strings"
	"text/template"

	json "github.com/goccy/go-json"

	"github.com/codecup-codeday/rctf-spooky/internal/contract"
	"github.com/codecup-codeday/rctf-spooky/internal/emitter/emitfs"
	"github.com/codecup-codeday/rctf-spooky/internal/schema"
	"github.com/codecup-codeday/rctf-spooky/internal/spec"
)

//go:embed templates/*.tpl
var tplFS embed.FS

// Header starts every generated TypeScript module.
const Header = "// Code generated by apitypes. DO NOT EDIT.\n"

// Options controls how the TypeScript emitter renders a bundle.
type Options struct {
	OutDir      string // required; target directory
	PackageName string // when set, a package.json with this name is emitted
	Force       bool   // overwrite a non-empty directory
	DryRun      bool   // don't write, only plan
	Verbose     bool
}

// Result returns the planned files.
type Result struct {
	PackageName string
	Planned     []emitfs.PlannedFile
}

// Emit renders responses.ts, perms.ts, routes.ts, index.ts and contract.json.
func Emit(ctx context.Context, b *contract.Bundle, opts Options) (*Result, error) {
	if b == nil {
		return nil, fmt.Errorf("tsemitter: nil bundle")
	}
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, fmt.Errorf("tsemitter: OutDir is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	files, err := Render(b, strings.TrimSpace(opts.PackageName))
	if err != nil {
		return nil, err
	}
	planned := emitfs.Plan(opts.OutDir, files)
	if !opts.DryRun {
		if err := emitfs.Write(opts.OutDir, files, opts.Force); err != nil {
			return nil, fmt.Errorf("tsemitter: %w", err)
		}
	}
	return &Result{PackageName: strings.TrimSpace(opts.PackageName), Planned: planned}, nil
}

// Render produces the file contents without touching the filesystem.
func Render(b *contract.Bundle, packageName string) (emitfs.Files, error) {
	data, err := buildData(b)
	if err != nil {
		return nil, err
	}
	files := emitfs.Files{}
	for _, name := range []string{"responses.ts", "perms.ts", "routes.ts", "index.ts"} {
		out, err := execute(name+".tpl", data)
		if err != nil {
			return nil, err
		}
		files[name] = out
	}
	if packageName != "" {
		out, err := execute("package.json.tpl", struct{ PackageName string }{quote(packageName)})
		if err != nil {
			return nil, err
		}
		files["package.json"] = out
	}
	bundleJSON, err := b.JSON()
	if err != nil {
		return nil, fmt.Errorf("tsemitter: marshal contract.json: %w", err)
	}
	files["contract.json"] = bundleJSON
	return files, nil
}

func execute(name string, data any) ([]byte, error) {
	text, err := tplFS.ReadFile("templates/" + name)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", name, err)
	}
	tpl, err := template.New(name).Parse(string(text))
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("exec template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

type templateData struct {
	Header    string
	Methods   string
	Responses []responseView
	Perms     []permView
	Routes    []routeView
}

type responseView struct {
	Kind    string
	Payload string
	Decls   []string
	Literal string
}

type permView struct {
	Key   string
	Value int64
}

type routeView struct {
	Ident    string
	TypeName string
	Kinds    string
	Body     string
	QS       string
	Params   string
	Decls    []string
	Literal  string
}

var methods = []spec.HttpMethod{spec.GET, spec.POST, spec.PUT, spec.PATCH, spec.DELETE, spec.HEAD, spec.OPTIONS}

// helperTypes are declared by the templates; index.ts re-exports every
// module, so bundle types must not reuse them.
var helperTypes = []string{
	"ResponseKind", "ResponseKindName", "GetResponsePayloadType", "ResponsePayloads",
	"Permissions", "HttpMethod", "Route", "RouteName",
	"GetRouteBodyType", "GetRouteQSType", "GetRouteParamsType", "GetRouteResponseType",
}

func buildData(b *contract.Bundle) (*templateData, error) {
	reserved := append([]string(nil), helperTypes...)
	for _, r := range b.Routes {
		reserved = append(reserved, r.TypeName+"Route")
	}
	if err := b.CheckTypeNames(reserved...); err != nil {
		return nil, fmt.Errorf("tsemitter: %w", err)
	}

	d := &templateData{Header: Header}

	ms := make([]string, 0, len(methods))
	for _, m := range methods {
		ms = append(ms, quote(string(m)))
	}
	d.Methods = strings.Join(ms, " | ")

	for _, r := range b.Responses {
		v, err := responseData(r)
		if err != nil {
			return nil, err
		}
		d.Responses = append(d.Responses, v)
	}
	if b.Permissions != nil {
		for _, p := range b.Permissions.Entries {
			d.Perms = append(d.Perms, permView{Key: propertyKey(p.Name), Value: p.Value})
		}
	}
	for _, r := range b.Routes {
		v, err := routeData(r)
		if err != nil {
			return nil, err
		}
		d.Routes = append(d.Routes, v)
	}
	return d, nil
}

func responseData(r *contract.Response) (responseView, error) {
	v := responseView{Kind: r.Kind}
	lit := schema.ObjectOf("status", int64(r.Status))
	switch r.Variant {
	case spec.VariantMessage:
		lit.Set("message", r.Message)
		fields := []string{
			indentUnit + "kind: " + quote(r.Kind),
			indentUnit + "message: string",
		}
		if r.Data != nil {
			v.Decls = append(v.Decls, declare(r.Data.Name, r.Data.Schema))
			fields = append(fields, indentUnit+"data: "+r.Data.Name)
			lit.Set("data", r.Data.Schema)
		}
		v.Decls = append(v.Decls, fmt.Sprintf("export interface %s {\n%s\n}", r.TypeName, strings.Join(fields, "\n")))
		v.Payload = r.TypeName
	case spec.VariantRawJSON:
		v.Decls = append(v.Decls, declare(r.RawJSON.Name, r.RawJSON.Schema))
		v.Payload = r.RawJSON.Name
		lit.Set("rawJson", r.RawJSON.Schema)
	default:
		v.Payload = "unknown"
		lit.Set("rawContentType", r.RawContentType)
	}
	text, err := jsLiteral(lit, 1)
	if err != nil {
		return v, fmt.Errorf("tsemitter: response %s: %w", r.Kind, err)
	}
	v.Literal = text
	return v, nil
}

func routeData(r *contract.Route) (routeView, error) {
	v := routeView{Ident: r.Ident, TypeName: r.TypeName, Body: "never", QS: "never", Params: "never"}
	kinds := make([]string, 0, len(r.ResponseKinds))
	for _, k := range r.ResponseKinds {
		kinds = append(kinds, quote(k))
	}
	v.Kinds = strings.Join(kinds, " | ")

	lit := schema.ObjectOf("method", string(r.Method), "path", r.Path)
	if r.RequireAuth {
		lit.Set("requireAuth", true)
	}
	respList := make([]any, 0, len(r.ResponseKinds))
	for _, k := range r.ResponseKinds {
		respList = append(respList, k)
	}
	lit.Set("responses", respList)
	if len(r.Perms) > 0 {
		lit.Set("perms", r.PermMask)
	}

	fragments := schema.NewObject()
	for _, s := range []struct {
		key   string
		shape *contract.Shape
		slot  *string
	}{
		{"body", r.Body, &v.Body},
		{"querystring", r.Querystring, &v.QS},
		{"params", r.Params, &v.Params},
	} {
		if s.shape == nil {
			continue
		}
		v.Decls = append(v.Decls, declare(s.shape.Name, s.shape.Schema))
		*s.slot = s.shape.Name
		fragments.Set(s.key, s.shape.Schema)
	}
	if fragments.Len() > 0 {
		lit.Set("schema", fragments)
	}

	text, err := jsLiteral(lit, 1)
	if err != nil {
		return v, fmt.Errorf("tsemitter: route %s: %w", r.Ident, err)
	}
	v.Literal = text
	return v, nil
}

// jsLiteral renders a value as indented JSON, which is also a valid
// TypeScript expression, for a position depth levels deep.
func jsLiteral(v any, depth int) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, strings.Repeat(indentUnit, depth), indentUnit); err != nil {
		return "", err
	}
	return buf.String(), nil
}
