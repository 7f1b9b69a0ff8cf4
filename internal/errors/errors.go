// Package errors defines the error kinds surfaced to the operator. None of
// them are retried automatically.
package errors

import (
	"errors"
	"fmt"
)

// Kind categorizes a failure for the caller.
type Kind string

const (
	// KindConnection: server unreachable or credentials rejected.
	KindConnection Kind = "connection"
	// KindStatement: a statement failed mid-sequence.
	KindStatement Kind = "statement"
	// KindCatalogAccess: the backup directory is missing or unreadable.
	KindCatalogAccess Kind = "catalog_access"
	// KindFilesystem: deleting or copying a backup artifact failed.
	KindFilesystem Kind = "filesystem"
	// KindBusy: a run was requested while another one is active.
	KindBusy Kind = "busy"
	// KindValidation: the request was incomplete.
	KindValidation Kind = "validation"
	KindUnknown    Kind = "unknown"
)

// Error carries a Kind plus the operation that produced it.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	// Index is the 0-based statement position for KindStatement.
	Index *int
	Cause error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by Kind, so errors.Is(err, ErrBusy) works on
// wrapped values.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// ErrBusy is returned when a run is requested while one is in flight.
var ErrBusy = &Error{Kind: KindBusy, Message: "another operation is already running"}

func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func Wrap(kind Kind, op string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Cause: cause}
}

// Statement reports a failure of the statement at index.
func Statement(op string, index int, cause error) *Error {
	i := index
	return &Error{Kind: KindStatement, Op: op, Index: &i, Cause: cause}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
