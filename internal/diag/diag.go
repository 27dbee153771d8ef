// Package diag implements the compiler core's fail-fast,
// diagnostic-accumulating error model: every compilation step reports
// success as a boolean, and on failure appends exactly one formatted
// message — category, source span, explanation — to a caller-supplied
// bag. No partial Prototype is ever handed further down the pipeline.
package diag

import (
	"fmt"

	"github.com/dianpeng/lavascript/source"
)

// Kind enumerates the error categories the compiler core distinguishes.
type Kind int

const (
	UpvalueOverflow Kind = iota
	RegisterOverflow
	TooManyLiterals
	TooManyPrototypes
	FunctionTooLong
	FunctionNameRedefine
	LocalVariableNotExisted
)

func (k Kind) String() string {
	switch k {
	case UpvalueOverflow:
		return "UpvalueOverflow"
	case RegisterOverflow:
		return "RegisterOverflow"
	case TooManyLiterals:
		return "TooManyLiterals"
	case TooManyPrototypes:
		return "TooManyPrototypes"
	case FunctionTooLong:
		return "FunctionTooLong"
	case FunctionNameRedefine:
		return "FunctionNameRedefine"
	case LocalVariableNotExisted:
		return "LocalVariableNotExisted"
	default:
		return "Unknown"
	}
}

// Error is one accumulated diagnostic.
type Error struct {
	Kind    Kind
	Span    source.Span
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s@[%d,%d): %s", e.Kind, e.Span.Start, e.Span.End, e.Message)
}

// Bag accumulates diagnostics for one compilation. Callers check Ok()
// after a build step; a non-empty Bag means the caller must unwind
// without handing the (incomplete) result further down the pipeline.
type Bag struct {
	errs []*Error
}

// Add appends one diagnostic and returns false, so call sites can write
// `return b.Add(...)` from a `(ok bool)` method.
func (b *Bag) Add(kind Kind, span source.Span, format string, args ...any) bool {
	b.errs = append(b.errs, &Error{Kind: kind, Span: span, Message: fmt.Sprintf(format, args...)})
	return false
}

func (b *Bag) Ok() bool { return len(b.errs) == 0 }

func (b *Bag) Errors() []*Error { return b.errs }

func (b *Bag) Error() string {
	if b.Ok() {
		return ""
	}
	s := b.errs[0].Error()
	for _, e := range b.errs[1:] {
		s += "; " + e.Error()
	}
	return s
}
