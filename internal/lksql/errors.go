package lksql

import (
	"errors"
	"fmt"
	"strings"

	"github.com/atlekbai/lksql/internal/fieldkey"
)

var (
	ErrUnsupportedOperation      = errors.New("unsupported operation")
	ErrRenderInvariant           = errors.New("render invariant violation")
	ErrAlreadyRendered           = errors.New("relation already rendered")
	ErrNamedParameterNotProvided = errors.New("named parameter not provided")
)

// ParseError reports malformed input or a semantic error found while
// building relations (unknown table, unknown function, bad alias).
// Pos is -1 when no source position is known.
type ParseError struct {
	Pos int
	Msg string
	Err error
}

func (e *ParseError) Error() string {
	if e.Pos < 0 {
		return "parse error: " + e.Msg
	}
	return fmt.Sprintf("parse error at position %d: %s", e.Pos, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

func parseErrorf(pos int, format string, args ...any) *ParseError {
	return &ParseError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// UnresolvedFieldError is returned when a field key cannot be bound in any
// reachable scope. Alias names the relation where resolution gave up.
type UnresolvedFieldError struct {
	Key   fieldkey.FieldKey
	Alias string
}

func (e *UnresolvedFieldError) Error() string {
	if e.Alias == "" {
		return fmt.Sprintf("unresolved field %q", e.Key.String())
	}
	return fmt.Sprintf("unresolved field %q in %s", e.Key.String(), e.Alias)
}

// AmbiguousColumnError is returned when an unqualified name matches columns
// of more than one relation.
type AmbiguousColumnError struct {
	Key        fieldkey.FieldKey
	Candidates []string
}

func (e *AmbiguousColumnError) Error() string {
	return fmt.Sprintf("ambiguous column %q, candidates: %s", e.Key.String(), strings.Join(e.Candidates, ", "))
}

// UnsupportedOperationError is returned by every mutating operation on a
// compiled view.
type UnsupportedOperationError struct {
	Op    string
	Table string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("%s is not supported on query %s", e.Op, e.Table)
}

func (e *UnsupportedOperationError) Is(target error) bool {
	return target == ErrUnsupportedOperation
}

// RenderInvariantError signals a relation tree that cannot be rendered. It
// is fatal for the compilation and is never collected as a diagnostic.
type RenderInvariantError struct {
	Relation string
	Reason   string
}

func (e *RenderInvariantError) Error() string {
	return fmt.Sprintf("render invariant violation in %s: %s", e.Relation, e.Reason)
}

func (e *RenderInvariantError) Is(target error) bool {
	return target == ErrRenderInvariant
}

// CompileError carries every diagnostic collected during one compilation.
type CompileError struct {
	Errors []error
}

func (e *CompileError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d errors: %s", len(e.Errors), strings.Join(msgs, "; "))
}

func (e *CompileError) Unwrap() []error { return e.Errors }
