package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/codecup-codeday/rctf-spooky/internal/spec"
)

// writeReport prints every structured compiler error contained in err with
// its code, location and violations. Other errors are printed as-is.
func writeReport(w io.Writer, err error, noColor bool) {
	header := color.New(color.FgRed, color.Bold)
	gray := color.New(color.FgHiBlack)
	yellow := color.New(color.FgYellow)
	if noColor {
		header.DisableColor()
		gray.DisableColor()
		yellow.DisableColor()
	}

	errs := spec.Errors(err)
	if len(errs) == 0 {
		header.Fprintf(w, "✗ %v\n", err)
		return
	}
	for _, se := range errs {
		header.Fprintf(w, "✗ %s: %s\n", se.Code, se.Message)
		if se.Location != "" {
			gray.Fprintf(w, "   at %s\n", se.Location)
		}
		if se.Identity != "" && !strings.Contains(se.Message, se.Identity) {
			gray.Fprintf(w, "   definition %s\n", se.Identity)
		}
		if len(se.Roles) > 0 {
			yellow.Fprintf(w, "   roles: %s\n", strings.Join(se.Roles, ", "))
		}
		for _, v := range se.Violations {
			yellow.Fprintf(w, "   - %s\n", v.String())
		}
		if se.Cause != nil && len(se.Violations) == 0 {
			gray.Fprintf(w, "   cause: %v\n", se.Cause)
		}
	}
}

// reportCompileError writes the report and returns an error that keeps the
// original chain for errors.As.
func reportCompileError(w io.Writer, err error, noColor bool) error {
	writeReport(w, err, noColor)
	n := len(spec.Errors(err))
	if n == 0 {
		n = 1
	}
	return &compileError{count: n, err: err}
}

type compileError struct {
	count int
	err   error
}

func (e *compileError) Error() string {
	if e.count == 1 {
		return "compilation failed with 1 error"
	}
	return fmt.Sprintf("compilation failed with %d errors", e.count)
}

func (e *compileError) Unwrap() error { return e.err }

func (e *compileError) Is(target error) bool { return target == ErrCompile }
