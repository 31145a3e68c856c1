// Package errors provides the coded error type used across the daemon.  Every
// layer returns an *AppError so that callers can decide between fatal startup
// handling and counted per-payload handling without string matching.  The type
// supports the standard errors.Is / errors.As / errors.Unwrap traversal.
package errors

import (
	"errors"
	"fmt"
)

// AppError is the single structured error carrier.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
// Format: "[<code>] <message>: <cause>", the cause segment omitted when nil.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, enabling errors.Is / errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *AppError with the same code.  This lets
// callers write errors.Is(err, errors.New(errors.ErrCodeConfig, "")) style
// sentinel checks against any error produced by this package.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// New builds an AppError with the given code and message.
func New(code ErrorCode, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf builds an AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an existing error.  Returns nil when
// err is nil so call sites can wrap unconditionally.
func Wrap(err error, code ErrorCode, msg string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// CodeOf extracts the ErrorCode from any error in the chain, or
// ErrCodeUnknown when none is an AppError.
func CodeOf(err error) ErrorCode {
	var e *AppError
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeUnknown
}

// Is re-exports the standard library helper so callers need a single errors
// import.
func Is(err, target error) bool { return errors.Is(err, target) }

// As re-exports the standard library helper.
func As(err error, target interface{}) bool { return errors.As(err, target) }
