package store

import errors "github.com/Laisky/errors/v2"

var (
	// ErrDocumentNotFound is returned when a document does not exist for the tenant.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrCommandNotFound is returned when a document command does not exist for the tenant.
	ErrCommandNotFound = errors.New("document command not found")
	// ErrContentChanged is returned when a document was edited while its chunks were being built.
	ErrContentChanged = errors.New("document content changed during indexing")
)
