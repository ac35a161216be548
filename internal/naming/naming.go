// Package naming derives the identifiers used for generated artifacts from
// free-form document names.
package naming

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Pascal converts kebab-case, snake_case or camelCase names to PascalCase.
// Any run of non-alphanumeric characters separates words and the first letter
// of each word is uppercased, after any leading digits ("2fa" -> "2Fa").
// Camel humps are already word boundaries and are kept as they are.
func Pascal(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, seg := range segments(name) {
		i := strings.IndexFunc(seg, unicode.IsLetter)
		if i < 0 {
			b.WriteString(seg)
			continue
		}
		r, size := utf8.DecodeRuneInString(seg[i:])
		b.WriteString(seg[:i])
		b.WriteRune(unicode.ToUpper(r))
		b.WriteString(seg[i+size:])
	}
	return b.String()
}

// Camel converts a name to camelCase: the Pascal form with only its very
// first character lowercased.
func Camel(name string) string {
	p := Pascal(name)
	if p == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(p)
	return string(unicode.ToLower(r)) + p[size:]
}

// Derive returns both forms at once.
func Derive(name string) (pascal, camel string) {
	pascal = Pascal(name)
	if pascal == "" {
		return "", ""
	}
	r, size := utf8.DecodeRuneInString(pascal)
	return pascal, string(unicode.ToLower(r)) + pascal[size:]
}

// IsIdentifier reports whether s can be used verbatim as a Go or TypeScript
// identifier.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}

func segments(name string) []string {
	return strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
