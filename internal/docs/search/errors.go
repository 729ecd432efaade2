package search

import (
	errors "github.com/Laisky/errors/v2"
)

// ErrorCode identifies a machine-stable search error code.
type ErrorCode string

const (
	ErrCodeInvalidQuery  ErrorCode = "INVALID_QUERY"
	ErrCodeSearchBackend ErrorCode = "SEARCH_BACKEND_ERROR"
)

// Error is a typed search error.
type Error struct {
	Code      ErrorCode
	Message   string
	Retryable bool
}

// Error returns the error message.
func (e *Error) Error() string {
	if e == nil {
		return "search error: <nil>"
	}
	if e.Message == "" {
		return "search error: " + string(e.Code)
	}
	return e.Message
}

// NewError constructs a typed search error.
func NewError(code ErrorCode, message string, retryable bool) *Error {
	return &Error{Code: code, Message: message, Retryable: retryable}
}

// IsCode reports whether the error chain contains the given code.
func IsCode(err error, code ErrorCode) bool {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Code == code
	}
	return false
}
