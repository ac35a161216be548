package spec

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/codecup-codeday/rctf-spooky/internal/naming"
	"github.com/codecup-codeday/rctf-spooky/internal/schema"
)

// Settings configures loader behavior.
type Settings struct {
	// Concurrency bounds how many documents of one set are read and
	// validated at the same time.
	Concurrency int
	Logger      zerolog.Logger
}

// DefaultSettings returns recommended defaults.
func DefaultSettings() Settings {
	return Settings{
		Concurrency: runtime.NumCPU(),
		Logger:      zerolog.Nop(),
	}
}

// Option mutates Settings.
type Option func(*Settings)

func WithConcurrency(n int) Option      { return func(s *Settings) { s.Concurrency = n } }
func WithLogger(l zerolog.Logger) Option { return func(s *Settings) { s.Logger = l } }

func newSettings(opts []Option) Settings {
	s := DefaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	if s.Concurrency <= 0 {
		s.Concurrency = 1
	}
	return s
}

var (
	yamlExtRe      = regexp.MustCompile(`\.ya?ml$`)
	responseKindRe = regexp.MustCompile(`^[a-z][a-zA-Z0-9]*$`)
)

// PermissionFileNames are the accepted names of the permission document.
var PermissionFileNames = []string{"perms.yaml", "perms.yml"}

// LoadResponses reads every response document under dir. The kind of a
// response is its file name without extension. Results are sorted by kind.
func LoadResponses(ctx context.Context, dir string, opts ...Option) ([]*ResponseDefinition, error) {
	settings := newSettings(opts)
	files, err := discover(dir)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]string, len(files))
	for _, f := range files {
		kind := yamlExtRe.ReplaceAllString(filepath.Base(f), "")
		if !responseKindRe.MatchString(kind) {
			return nil, &Error{
				Code:     InvalidName,
				Message:  fmt.Sprintf("response kind %q must start with a lowercase letter and contain only letters and digits", kind),
				Location: f,
				Identity: kind,
			}
		}
		if prev, dup := seen[kind]; dup {
			return nil, &Error{
				Code:     DuplicateDefinition,
				Message:  fmt.Sprintf("response kind %q is defined by both %s and %s", kind, prev, f),
				Location: f,
				Identity: kind,
			}
		}
		seen[kind] = f
	}

	defs, err := loadAll(ctx, files, settings.Concurrency, func(path string) (*ResponseDefinition, error) {
		kind := yamlExtRe.ReplaceAllString(filepath.Base(path), "")
		def, err := loadResponse(path, kind)
		if err != nil {
			return nil, err
		}
		settings.Logger.Debug().Str("kind", kind).Str("path", path).Str("variant", string(def.Variant)).Msg("loaded response")
		return def, nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Kind < defs[j].Kind })
	return defs, nil
}

func loadResponse(path, kind string) (*ResponseDefinition, error) {
	obj, err := readDocument(path, kind, ResponseDocument)
	if err != nil {
		return nil, err
	}
	def := &ResponseDefinition{
		Kind:     kind,
		TypeName: naming.Pascal(kind),
		Path:     path,
		Document: obj,
	}
	switch status, _ := obj.Get("status"); n := status.(type) {
	case int64:
		def.Status = int(n)
	case float64:
		def.Status = int(n)
	}
	switch {
	case obj.Has("message"):
		def.Variant = VariantMessage
		def.Message, _ = obj.String("message")
		if data, ok := obj.Get("data"); ok {
			def.Data = data
		}
	case obj.Has("rawJson"):
		def.Variant = VariantRawJSON
		def.RawJSON, _ = obj.Get("rawJson")
	default:
		def.Variant = VariantRawContentType
		def.RawContentType, _ = obj.String("rawContentType")
	}
	return def, nil
}

// FindPermissionConfig locates the single permission document in root.
func FindPermissionConfig(root string) (string, error) {
	var found []string
	for _, name := range PermissionFileNames {
		p := filepath.Join(root, name)
		st, err := os.Stat(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return "", &Error{Code: LoadError, Message: fmt.Sprintf("stat %s: %v", p, err), Location: p, Cause: err}
		}
		if st.Mode().IsRegular() {
			found = append(found, p)
		}
	}
	switch len(found) {
	case 0:
		return "", &Error{
			Code:     MissingConfig,
			Message:  fmt.Sprintf("no %s found in %s", strings.Join(PermissionFileNames, " or "), root),
			Location: root,
		}
	case 1:
		return found[0], nil
	default:
		return "", &Error{
			Code:     ConflictingConfig,
			Message:  fmt.Sprintf("conflicting permission documents: %s", strings.Join(found, ", ")),
			Location: root,
		}
	}
}

// LoadPermissions finds, reads and validates the permission document in
// root. Composite roles may only name declared roles.
func LoadPermissions(ctx context.Context, root string, opts ...Option) (*PermissionConfig, error) {
	settings := newSettings(opts)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := FindPermissionConfig(root)
	if err != nil {
		return nil, err
	}
	obj, err := readDocument(path, "perms", PermissionDocument)
	if err != nil {
		return nil, err
	}

	cfg := &PermissionConfig{Path: path}
	for _, name := range obj.Keys() {
		v, _ := obj.Get(name)
		switch val := v.(type) {
		case int64:
			cfg.Entries = append(cfg.Entries, PermissionEntry{Name: name, Index: int(val)})
		case float64:
			cfg.Entries = append(cfg.Entries, PermissionEntry{Name: name, Index: int(val)})
		case []any:
			refs, _ := obj.Strings(name)
			cfg.Entries = append(cfg.Entries, PermissionEntry{Name: name, Refs: refs, Composite: true})
		default:
			// The meta-schema admits nothing else.
			return nil, &Error{Code: SchemaValidation, Message: fmt.Sprintf("perms: role %q has unsupported value %T", name, v), Location: path, Identity: name}
		}
	}

	if vs := CheckPermissionRefs(cfg); len(vs) > 0 {
		return nil, &Error{
			Code:       UndeclaredReference,
			Message:    "perms: composite roles refer to undeclared roles",
			Location:   path,
			Identity:   "perms",
			Violations: vs,
		}
	}
	settings.Logger.Debug().Str("path", path).Int("roles", len(cfg.Entries)).Msg("loaded permissions")
	return cfg, nil
}

// LoadRoutes reads every route document under dir and checks it against the
// meta-schema and against refs. The identifier of a route is derived from
// its path relative to dir. Results are sorted by identifier.
func LoadRoutes(ctx context.Context, dir string, refs Refs, opts ...Option) ([]*RouteDefinition, error) {
	settings := newSettings(opts)
	files, err := discover(dir)
	if err != nil {
		return nil, err
	}

	idents := make(map[string]string, len(files))
	seen := make(map[string]string, len(files))
	for _, f := range files {
		ident, err := routeIdent(dir, f)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[ident]; dup {
			return nil, &Error{
				Code:     DuplicateDefinition,
				Message:  fmt.Sprintf("route %q is defined by both %s and %s", ident, prev, f),
				Location: f,
				Identity: ident,
			}
		}
		seen[ident] = f
		idents[f] = ident
	}

	defs, err := loadAll(ctx, files, settings.Concurrency, func(path string) (*RouteDefinition, error) {
		def, err := loadRoute(path, idents[path], refs)
		if err != nil {
			return nil, err
		}
		settings.Logger.Debug().Str("route", def.Ident).Str("method", string(def.Method)).Str("path", def.URLPath).Msg("loaded route")
		return def, nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Ident < defs[j].Ident })
	return defs, nil
}

func routeIdent(dir, file string) (string, error) {
	rel, err := filepath.Rel(dir, file)
	if err != nil {
		return "", &Error{Code: LoadError, Message: fmt.Sprintf("resolve %s: %v", file, err), Location: file, Cause: err}
	}
	raw := yamlExtRe.ReplaceAllString(strings.ReplaceAll(filepath.ToSlash(rel), "/", "-"), "")
	ident := naming.Camel(raw)
	if !naming.IsIdentifier(ident) {
		return "", &Error{
			Code:     InvalidName,
			Message:  fmt.Sprintf("route file %s does not yield a usable identifier (got %q)", rel, ident),
			Location: file,
			Identity: raw,
		}
	}
	return ident, nil
}

func loadRoute(path, ident string, refs Refs) (*RouteDefinition, error) {
	obj, err := readDocument(path, ident, RouteDocument)
	if err != nil {
		return nil, err
	}
	method, _ := obj.String("method")
	urlPath, _ := obj.String("path")
	def := &RouteDefinition{
		Ident:    ident,
		TypeName: naming.Pascal(ident),
		Path:     path,
		Method:   HttpMethod(method),
		URLPath:  urlPath,
		Document: obj,
	}
	def.Responses, _ = obj.Strings("responses")
	def.Perms, _ = obj.Strings("perms")
	if v, ok := obj.Get("requireAuth"); ok {
		def.RequireAuth, _ = v.(bool)
	}
	if fragments, ok := obj.Object("schema"); ok {
		def.Body, _ = fragments.Get("body")
		def.Querystring, _ = fragments.Get("querystring")
		def.Params, _ = fragments.Get("params")
	}

	if vs := CheckRouteRefs(def, refs); len(vs) > 0 {
		return nil, &Error{
			Code:       UndeclaredReference,
			Message:    fmt.Sprintf("route %s refers to undeclared names", ident),
			Location:   path,
			Identity:   ident,
			Violations: vs,
		}
	}
	return def, nil
}

// readDocument reads, parses and structurally validates one document.
func readDocument(path, identity string, kind DocumentKind) (*schema.Object, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Code: LoadError, Message: fmt.Sprintf("read file %s: %v", path, err), Location: path, Identity: identity, Cause: err}
	}
	tree, err := schema.Decode(raw)
	if err != nil {
		return nil, &Error{Code: ParseError, Message: fmt.Sprintf("parse %s: %v", path, err), Location: path, Identity: identity, Cause: err}
	}
	vs, err := CheckStructure(kind, tree)
	if err != nil {
		return nil, err
	}
	if len(vs) > 0 {
		return nil, &Error{
			Code:       SchemaValidation,
			Message:    fmt.Sprintf("%s %s is not valid", kind, identity),
			Location:   path,
			Identity:   identity,
			Violations: vs,
		}
	}
	return tree.(*schema.Object), nil
}

// discover lists the YAML files below dir in lexical order.
func discover(dir string) ([]string, error) {
	st, err := os.Stat(dir)
	if err != nil {
		return nil, &Error{Code: LoadError, Message: fmt.Sprintf("read directory %s: %v", dir, err), Location: dir, Cause: err}
	}
	if !st.IsDir() {
		return nil, &Error{Code: LoadError, Message: fmt.Sprintf("%s is not a directory", dir), Location: dir}
	}
	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !yamlExtRe.MatchString(d.Name()) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, &Error{Code: LoadError, Message: fmt.Sprintf("walk %s: %v", dir, err), Location: dir, Cause: err}
	}
	sort.Strings(files)
	return files, nil
}

// loadAll runs load for every file with at most limit calls in flight. All
// files are attempted; failures are joined in file order.
func loadAll[T any](ctx context.Context, files []string, limit int, load func(string) (T, error)) ([]T, error) {
	results := make([]T, len(files))
	errs := make([]error, len(files))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			results[i], errs[i] = load(f)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	switch len(failed) {
	case 0:
		return results, nil
	case 1:
		return nil, failed[0]
	default:
		return nil, errors.Join(failed...)
	}
}
