// Package core defines the entity types, validation rules, and error
// kinds shared by every component of the sync core.
package core

import "fmt"

// ErrorKind is the closed set of error categories surfaced at the
// component boundary (spec §7). Every CoreError carries exactly one.
type ErrorKind string

const (
	ErrInvalidArgument ErrorKind = "invalid_argument"
	ErrNotFound        ErrorKind = "not_found"
	ErrNotMember       ErrorKind = "not_member"
	ErrNotAuthorized   ErrorKind = "not_authorized"
	ErrPoolNotFound    ErrorKind = "pool_not_found"
	ErrInvalidVersion  ErrorKind = "invalid_version"
	ErrIO              ErrorKind = "io_error"
	ErrCache           ErrorKind = "cache_error"
	ErrCRDT            ErrorKind = "crdt_error"
	ErrSecretStore     ErrorKind = "secret_store_error"
	ErrAlreadyJoined   ErrorKind = "already_joined"
	ErrInternal        ErrorKind = "internal"
)

// exitCodes maps each kind to a stable numeric code for boundary
// wrappers (spec §6 "Exit codes").
var exitCodes = map[ErrorKind]int{
	ErrInvalidArgument: 10,
	ErrNotFound:        11,
	ErrNotMember:       12,
	ErrNotAuthorized:   12, // wire-layer synonym for NotMember
	ErrPoolNotFound:    13,
	ErrInvalidVersion:  14,
	ErrIO:              20,
	ErrCache:           21,
	ErrCRDT:            22,
	ErrSecretStore:     23,
	ErrAlreadyJoined:   30,
	ErrInternal:        99,
}

// CoreError is the error type every public operation returns on failure.
type CoreError struct {
	Kind    ErrorKind
	Message string
	Err     error // wrapped cause, if any
}

func (e *CoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CoreError) Unwrap() error { return e.Err }

// ExitCode returns the stable numeric exit code for this error's kind.
func (e *CoreError) ExitCode() int { return exitCodes[e.Kind] }

// NewError constructs a CoreError with no wrapped cause.
func NewError(kind ErrorKind, message string) *CoreError {
	return &CoreError{Kind: kind, Message: message}
}

// WrapError constructs a CoreError wrapping an underlying cause.
func WrapError(kind ErrorKind, message string, cause error) *CoreError {
	return &CoreError{Kind: kind, Message: message, Err: cause}
}

// KindOf extracts the ErrorKind from err if it is (or wraps) a
// *CoreError, else reports ErrInternal.
func KindOf(err error) ErrorKind {
	var ce *CoreError
	if ok := asCoreError(err, &ce); ok {
		return ce.Kind
	}
	return ErrInternal
}

func asCoreError(err error, target **CoreError) bool {
	for err != nil {
		if ce, ok := err.(*CoreError); ok {
			*target = ce
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
