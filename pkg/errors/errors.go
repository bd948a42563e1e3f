// Package errors implements coreledger's error taxonomy: a *Error carrying a
// stable ERR code plus an optionally wrapped cause, in the same
// code+message+wrapped-error shape as the teacher's errors/Error.go, minus
// the gRPC/protobuf marshalling (no RPC surface lives in this repository).
package errors

import (
	"errors"
	"fmt"
)

// Error is the concrete error type returned by every fallible coreledger
// operation.
type Error struct {
	Code       ERR
	Message    string
	WrappedErr error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.WrappedErr == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.WrappedErr)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.WrappedErr
}

// Is reports whether error codes match, walking wrapped *Error chains.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	var ue *Error
	if errors.As(target, &ue) && e.Code == ue.Code {
		return true
	}
	if unwrapped := errors.Unwrap(e); unwrapped != nil {
		if ue, ok := unwrapped.(*Error); ok {
			return ue.Is(target)
		}
	}
	return false
}

// New builds an *Error with the given code and formatted message. If the
// last argument is an error, it becomes the wrapped cause.
func New(code ERR, message string, args ...interface{}) *Error {
	var wrapped error
	if len(args) > 0 {
		if err, ok := args[len(args)-1].(error); ok {
			wrapped = err
			args = args[:len(args)-1]
		}
	}
	if len(args) > 0 {
		message = fmt.Sprintf(message, args...)
	}
	return &Error{Code: code, Message: message, WrappedErr: wrapped}
}

// Predefined sentinels for the taxonomy required by spec.md §7.
var (
	ErrUnknownParent    = New(ERR_UNKNOWN_PARENT, "parent header not found in store")
	ErrAncientFork      = New(ERR_ANCIENT_FORK, "fork exceeds maximum walk-back length")
	ErrCannotCanonize   = New(ERR_CANNOT_CANONIZE, "cannot canonize block")
	ErrCannotDecanonize = New(ERR_CANNOT_DECANONIZE, "cannot decanonize best block")
	ErrInconsistentData = New(ERR_INCONSISTENT_DATA, "stored record has inconsistent shape")
	ErrValueTooLong      = New(ERR_VALUE_TOO_LONG, "replacement value length does not match stored length")
	ErrKeyTooLong        = New(ERR_KEY_TOO_LONG, "key exceeds 255 bytes")
	ErrNotFound          = New(ERR_NOT_FOUND, "not found")
)

// DatabaseError wraps a lower-layer (PFL/CAL/KHI) error into the domain
// taxonomy, the same role from_ham/from_serial play in blockchain_db.rs.
func DatabaseError(err error) *Error {
	if err == nil {
		return nil
	}
	if de, ok := err.(*Error); ok {
		return de
	}
	return New(ERR_DATABASE_ERROR, err.Error())
}

// Is is the package-level errors.Is passthrough, kept for call sites that
// don't otherwise import the standard errors package.
func Is(err, target error) bool { return errors.Is(err, target) }

// As is the package-level errors.As passthrough.
func As(err error, target any) bool { return errors.As(err, target) }
