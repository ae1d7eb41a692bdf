// Package apperr defines the unified error taxonomy shared by every broker
// and meeting-coordinator component.
package apperr

import (
	"errors"
	"fmt"
)

// Code identifies one of the stable error kinds the core surfaces to callers.
type Code string

const (
	NotFound         Code = "NOT_FOUND"
	Duplicate        Code = "DUPLICATE"
	Validation       Code = "VALIDATION"
	Unauthorized     Code = "UNAUTHORIZED"
	Forbidden        Code = "FORBIDDEN"
	QueueFull        Code = "QUEUE_FULL"
	RateLimited      Code = "RATE_LIMITED"
	ProtocolMismatch Code = "PROTOCOL_MISMATCH"
	InvalidState     Code = "INVALID_STATE"
	Expired          Code = "EXPIRED"
	Internal         Code = "INTERNAL"
)

// Error is the structured error type every component returns. Field/Path
// context is optional and mainly populated by VALIDATION errors.
type Error struct {
	Code    Code
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds an *Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Code to an underlying error, preserving it via Unwrap.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// FieldError returns a VALIDATION error naming the offending field.
func FieldError(field, message string) *Error {
	return &Error{Code: Validation, Message: message, Field: field}
}

// CodeOf extracts the Code from err, defaulting to Internal when err does
// not carry a *Error in its chain.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

// Is reports whether err's Code (anywhere in its chain) equals code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
