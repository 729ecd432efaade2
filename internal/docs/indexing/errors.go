package indexing

import (
	"fmt"

	errors "github.com/Laisky/errors/v2"
)

// ErrorCode identifies a machine-stable indexing error code.
type ErrorCode string

const (
	ErrCodeDocumentNotFound   ErrorCode = "DOCUMENT_NOT_FOUND"
	ErrCodeChunkLimitExceeded ErrorCode = "CHUNK_LIMIT_EXCEEDED"
	ErrCodeEmbeddingMismatch  ErrorCode = "EMBEDDING_MISMATCH"
	ErrCodeInvalidPayload     ErrorCode = "INVALID_PAYLOAD"
)

// Error captures a typed indexing error with retryability metadata.
type Error struct {
	Code      ErrorCode
	Message   string
	Retryable bool
}

// Error returns the error message.
func (e *Error) Error() string {
	if e == nil {
		return "indexing error: <nil>"
	}
	if e.Message == "" {
		return fmt.Sprintf("indexing error: %s", e.Code)
	}
	return e.Message
}

// Permanent reports whether retrying cannot help. The job queue honors it.
func (e *Error) Permanent() bool {
	return e != nil && !e.Retryable
}

// NewError constructs a typed indexing error.
func NewError(code ErrorCode, message string, retryable bool) *Error {
	return &Error{Code: code, Message: message, Retryable: retryable}
}

// AsError extracts a typed indexing error from the error chain.
func AsError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed, true
	}
	return nil, false
}

// IsCode reports whether the error chain contains the given code.
func IsCode(err error, code ErrorCode) bool {
	if typed, ok := AsError(err); ok {
		return typed.Code == code
	}
	return false
}

// IsPermanent reports whether err carries a non-retryable indexing error.
func IsPermanent(err error) bool {
	if typed, ok := AsError(err); ok {
		return !typed.Retryable
	}
	return false
}
