package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrUnauthenticated    = errors.New("user not authenticated")
	ErrInvalidTransition  = errors.New("invalid job status transition")
	ErrMissingStorageKey  = errors.New("no storage key provided for folder lookup")
	ErrLockHeld           = errors.New("lock is held by another owner")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrUpstream           = errors.New("processing endpoint call failed")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid database execution context")
)

// Code is a stable, client-facing error classification.
type Code string

const (
	CodeNotFound        Code = "NOT_FOUND"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeBadRequest      Code = "BAD_REQUEST"
	CodeConflict        Code = "CONFLICT"
	CodeTooManyRequests Code = "TOO_MANY_REQUESTS"
	CodeInternal        Code = "INTERNAL_SERVER_ERROR"
	CodeUpstream        Code = "UPSTREAM_FAILURE"
)

// Error pairs a Code with a message that is safe to show to the caller.
// Err keeps the underlying cause for logs and errors.Is checks.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, Err: cause}
}

func NotFound(msg string) *Error     { return newError(CodeNotFound, msg, ErrNotFound) }
func Unauthorized(msg string) *Error { return newError(CodeUnauthorized, msg, ErrUnauthenticated) }
func BadRequest(msg string) *Error   { return newError(CodeBadRequest, msg, ErrInvalidArgument) }
func Conflict(msg string) *Error     { return newError(CodeConflict, msg, ErrInvalidTransition) }
func TooManyRequests(msg string) *Error {
	return newError(CodeTooManyRequests, msg, ErrRateLimited)
}

func Internal(msg string, cause error) *Error { return newError(CodeInternal, msg, cause) }

func Upstream(msg string, cause error) *Error {
	if cause == nil {
		cause = ErrUpstream
	}
	return newError(CodeUpstream, msg, cause)
}

// CodeOf classifies err. Typed errors keep their code; known sentinels are
// mapped; anything else is internal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrUnauthenticated):
		return CodeUnauthorized
	case errors.Is(err, ErrInvalidArgument):
		return CodeBadRequest
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrAlreadyExists):
		return CodeConflict
	case errors.Is(err, ErrRateLimited):
		return CodeTooManyRequests
	case errors.Is(err, ErrUpstream):
		return CodeUpstream
	default:
		return CodeInternal
	}
}

// MessageOf returns the caller-safe message for err, falling back to fallback
// for untyped errors so driver text never leaks.
func MessageOf(err error, fallback string) string {
	var de *Error
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return fallback
}
