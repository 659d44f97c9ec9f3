// Package apierr defines the closed set of error kinds surfaced by the
// platform (spec §7) and the Result envelope every user-facing operation
// (CLI, tool registry, IQL) returns instead of panicking.
package apierr

import (
	"errors"
	"fmt"
)

// Kind is one of the closed error kinds the platform distinguishes.
type Kind string

const (
	KindNotFound            Kind = "not-found"
	KindTransient           Kind = "transient"
	KindPermissionDenied    Kind = "permission-denied"
	KindInvalidArgument     Kind = "invalid-argument"
	KindQuotaExceeded       Kind = "quota-exceeded"
	KindInvalidCursor       Kind = "invalid-cursor"
	KindDanglingEdge        Kind = "dangling-edge"
	KindPolicyDenied        Kind = "policy-denied"
	KindExpiredConfirmation Kind = "expired-confirmation"
)

// Error wraps an underlying cause with one of the closed Kinds so callers
// can branch with errors.Is/errors.As without string-matching messages.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, apierr.NotFound) match any *Error of that Kind,
// ignoring message/cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind around an existing error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Sentinel values for use with errors.Is(err, apierr.NotFound) style checks.
var (
	NotFound            = &Error{Kind: KindNotFound}
	Transient           = &Error{Kind: KindTransient}
	PermissionDenied    = &Error{Kind: KindPermissionDenied}
	InvalidArgument     = &Error{Kind: KindInvalidArgument}
	QuotaExceeded       = &Error{Kind: KindQuotaExceeded}
	InvalidCursor       = &Error{Kind: KindInvalidCursor}
	DanglingEdge        = &Error{Kind: KindDanglingEdge}
	PolicyDenied        = &Error{Kind: KindPolicyDenied}
	ExpiredConfirmation = &Error{Kind: KindExpiredConfirmation}
)

// KindOf extracts the Kind from err, if it (or something it wraps) is an
// *Error. The zero Kind is returned otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Result is the envelope every user-facing operation returns: it never lets
// an error propagate as a panic, carrying success/message/data|error
// instead.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Ok builds a successful Result.
func Ok(message string, data any) Result {
	return Result{Success: true, Message: message, Data: data}
}

// Fail builds a failed Result from an error, preserving its message.
func Fail(message string, err error) Result {
	return Result{Success: false, Message: message, Error: err.Error()}
}
