package spec

import (
	"fmt"
	"strings"
)

// ErrorCode categorizes compiler errors for clearer handling and messaging.
type ErrorCode string

const (
	MissingConfig         ErrorCode = "MissingConfig"
	ConflictingConfig     ErrorCode = "ConflictingConfig"
	SchemaValidation      ErrorCode = "SchemaValidation"
	UnresolvableReference ErrorCode = "UnresolvableReference"
	UndeclaredReference   ErrorCode = "UndeclaredReference"
	DuplicateDefinition   ErrorCode = "DuplicateDefinition"
	InvalidName           ErrorCode = "InvalidName"
	ParseError            ErrorCode = "ParseError"
	LoadError             ErrorCode = "LoadError"
)

// Violation is one structural or referential problem inside a document.
type Violation struct {
	Pointer string // JSON Pointer into the document, e.g. "#/responses/1"
	Field   string // schema keyword that failed, e.g. "enum" or "required"
	Reason  string
}

func (v Violation) String() string {
	var b strings.Builder
	if v.Pointer != "" {
		b.WriteString(v.Pointer)
		b.WriteString(": ")
	}
	b.WriteString(v.Reason)
	if v.Field != "" {
		b.WriteString(" (")
		b.WriteString(v.Field)
		b.WriteString(")")
	}
	return b.String()
}

// Error is a structured compiler error. Location is the file that caused it
// when there is one; Identity is the derived definition name.
type Error struct {
	Code       ErrorCode
	Message    string
	Location   string
	Identity   string
	Violations []Violation
	Roles      []string // stuck roles for UnresolvableReference
	Cause      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Violations) > 0 {
		fmt.Fprintf(&b, " (%d violation", len(e.Violations))
		if len(e.Violations) > 1 {
			b.WriteString("s")
		}
		b.WriteString(")")
		for _, v := range e.Violations {
			b.WriteString("\n  - ")
			b.WriteString(v.String())
		}
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// HasCode reports whether err is, or wraps, an *Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	for _, e := range flatten(err) {
		if se, ok := e.(*Error); ok && se.Code == code {
			return true
		}
	}
	return false
}

// Errors returns every *Error contained in err, unpacking joined errors.
func Errors(err error) []*Error {
	var out []*Error
	for _, e := range flatten(err) {
		if se, ok := e.(*Error); ok {
			out = append(out, se)
		}
	}
	return out
}

func flatten(err error) []error {
	if err == nil {
		return nil
	}
	switch x := err.(type) {
	case interface{ Unwrap() []error }:
		var out []error
		for _, e := range x.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	case *Error:
		return []error{x}
	case interface{ Unwrap() error }:
		if inner := x.Unwrap(); inner != nil {
			return flatten(inner)
		}
	}
	return []error{err}
}
