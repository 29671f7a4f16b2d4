package types

import (
	"errors"
	"fmt"
)

// ErrorKind is the error taxonomy of spec.md §7. It names a category, not a
// language type, so callers branch on Kind rather than on a concrete Go
// error type.
type ErrorKind string

const (
	ErrNotFound          ErrorKind = "NotFound"
	ErrInvalidData       ErrorKind = "InvalidData"
	ErrPermissionDenied  ErrorKind = "PermissionDenied"
	ErrPaymentRequired   ErrorKind = "PaymentRequired"
	ErrInvalidPermission ErrorKind = "InvalidPermission"
	ErrSerialization     ErrorKind = "Serialization"
	ErrStorage           ErrorKind = "Storage"
	ErrConflict          ErrorKind = "Conflict"
	ErrEval              ErrorKind = "EvalError"
	ErrParse             ErrorKind = "ParseError"
	ErrNetwork           ErrorKind = "Network"
	ErrTimeout           ErrorKind = "Timeout"
	ErrSecurity          ErrorKind = "Security"
)

// Error is the public error type returned across package boundaries. Its
// message omits internal identifiers (atom/ref uuids); callers that need
// those for diagnostics should consult logs keyed by CorrelationID instead.
type Error struct {
	Kind          ErrorKind
	Message       string
	CorrelationID string
	cause         error
}

func (e *Error) Error() string {
	if e.Kind == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause, if any, for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// NewError builds an Error of the given kind with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds an Error of the given kind that wraps cause.
func WrapError(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// WithCorrelationID attaches a correlation id for diagnostic logging and
// returns the receiver for chaining.
func (e *Error) WithCorrelationID(id string) *Error {
	e.CorrelationID = id
	return e
}

// KindOf extracts the ErrorKind from err if it is (or wraps) an *Error,
// returning ("", false) otherwise.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
