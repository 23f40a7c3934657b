package entity

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every error the engine can produce into the taxonomy
// from which the retry policy (C6) and the executor's completion path decide
// what to do next.
type ErrorKind int8

const (
	// KindUnknown is the zero value; never returned deliberately.
	KindUnknown ErrorKind = iota
	// KindInvalidArgument covers malformed or missing command fields.
	KindInvalidArgument
	// KindNotFound covers a missing principal, resource, verb, or scheme.
	KindNotFound
	// KindConflict covers duplicate names, cycles, and grant/deny conflicts.
	KindConflict
	// KindUnsupported covers an unregistered command kind.
	KindUnsupported
	// KindTransient covers timeouts, connection resets, and unique races.
	KindTransient
	// KindTerminal covers a transient error that exhausted retries.
	KindTerminal
	// KindIntegrity covers audit-chain gaps or hash mismatches.
	KindIntegrity
)

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnsupported:
		return "unsupported"
	case KindTransient:
		return "transient"
	case KindTerminal:
		return "terminal"
	case KindIntegrity:
		return "integrity"
	default:
		return "unknown"
	}
}

// Error is the typed error carried through the engine. It mirrors the
// teacher's {EntityType, Title, Message, Code, Err} error shape so every
// failure path produces the same fields regardless of which component
// raised it.
type Error struct {
	Kind       ErrorKind
	EntityType string
	Title      string
	Message    string
	Code       string
	Err        error
	// Attempts is the number of calls made to the failing operation before
	// it was promoted to KindTerminal; zero for every other kind.
	Attempts int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Err != nil {
		return e.Err.Error()
	}

	return fmt.Sprintf("%s error on %s", e.Kind, e.EntityType)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewInvalidArgument builds a non-retryable invalid-argument error.
func NewInvalidArgument(entityType, message string) *Error {
	return &Error{Kind: KindInvalidArgument, EntityType: entityType, Title: "Invalid Argument", Message: message, Code: "ACS-0001"}
}

// NewNotFound builds a non-retryable not-found error.
func NewNotFound(entityType string, id any) *Error {
	return &Error{
		Kind:       KindNotFound,
		EntityType: entityType,
		Title:      "Entity Not Found",
		Message:    fmt.Sprintf("no %s found for id %v", entityType, id),
		Code:       "ACS-0002",
	}
}

// NewConflict builds a non-retryable conflict error with a remediation hint.
func NewConflict(entityType, message string) *Error {
	return &Error{Kind: KindConflict, EntityType: entityType, Title: "Conflict", Message: message, Code: "ACS-0003"}
}

// NewUnsupported builds a non-retryable unsupported-command error.
func NewUnsupported(kind string) *Error {
	return &Error{
		Kind:    KindUnsupported,
		Title:   "Unsupported Command",
		Message: fmt.Sprintf("command kind %q is not registered", kind),
		Code:    "ACS-0004",
	}
}

// NewTransient wraps an underlying transport/store error as retryable.
func NewTransient(entityType string, err error) *Error {
	return &Error{Kind: KindTransient, EntityType: entityType, Title: "Transient Failure", Err: err, Code: "ACS-0005"}
}

// NewTerminal promotes a transient error that exhausted its retry budget.
func NewTerminal(entityType string, err error, attempts int) *Error {
	return &Error{
		Kind:       KindTerminal,
		EntityType: entityType,
		Title:      "Terminal Failure",
		Message:    fmt.Sprintf("persistence failed after %d attempts", attempts),
		Err:        err,
		Code:       "ACS-0006",
		Attempts:   attempts,
	}
}

// NewIntegrity builds an integrity-check error; never returned from the live
// command path, only from audit verification.
func NewIntegrity(message string) *Error {
	return &Error{Kind: KindIntegrity, Title: "Integrity Violation", Message: message, Code: "ACS-0007"}
}

// AttemptsOf extracts the attempt count recorded by NewTerminal, or 0 if err
// is not a terminal *Error (spec.md §4.5 "the attempt count").
func AttemptsOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Attempts
	}

	return 0
}

// KindOf extracts the ErrorKind from err, defaulting to KindTransient for
// unrecognized errors so unknown failures are retried rather than silently
// swallowed as non-retryable.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	if err == nil {
		return KindUnknown
	}

	return KindTransient
}

// ErrCancelled is returned when a command's context is done before the
// executor begins processing it.
var ErrCancelled = errors.New("command cancelled before execution")
