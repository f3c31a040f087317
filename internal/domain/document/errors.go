package document

import "errors"

var (
	// ErrNotFound indicates no document has been stored yet.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidInput indicates a bad kind, missing user or non-object body.
	ErrInvalidInput = errors.New("invalid document input")
)
