package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	ErrKindInvalidDate      ErrorKind = "InvalidDate"
	ErrKindInvalidCondition ErrorKind = "InvalidCondition"
	ErrKindPolicyViolation  ErrorKind = "PolicyViolation"
	ErrKindInvalidInput     ErrorKind = "InvalidInput"

	ErrKindToolUnavailable   ErrorKind = "ToolUnavailable"
	ErrKindInvalidTransition ErrorKind = "InvalidTransition"
	ErrKindNotFound          ErrorKind = "NotFound"
	ErrKindNotOwner          ErrorKind = "NotOwner"
	ErrKindPermissionDenied  ErrorKind = "PermissionDenied"

	ErrKindTimeout     ErrorKind = "Timeout"
	ErrKindUnavailable ErrorKind = "Unavailable"
)

// Error is the structured failure returned by every workflow operation.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works
// regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func WrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Kind sentinels for errors.Is.
var (
	ErrInvalidDate       = &Error{Kind: ErrKindInvalidDate}
	ErrInvalidCondition  = &Error{Kind: ErrKindInvalidCondition}
	ErrPolicyViolation   = &Error{Kind: ErrKindPolicyViolation}
	ErrInvalidInput      = &Error{Kind: ErrKindInvalidInput}
	ErrToolUnavailable   = &Error{Kind: ErrKindToolUnavailable}
	ErrInvalidTransition = &Error{Kind: ErrKindInvalidTransition}
	ErrNotFound          = &Error{Kind: ErrKindNotFound}
	ErrNotOwner          = &Error{Kind: ErrKindNotOwner}
	ErrPermissionDenied  = &Error{Kind: ErrKindPermissionDenied}
	ErrTimeout           = &Error{Kind: ErrKindTimeout}
	ErrUnavailable       = &Error{Kind: ErrKindUnavailable}
)

// KindOf returns the kind of a domain error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsDomainError reports whether err carries a business-rule kind, i.e. one
// that must not be retried.
func IsDomainError(err error) bool {
	switch KindOf(err) {
	case "", ErrKindTimeout, ErrKindUnavailable:
		return false
	}
	return true
}
