// Package apperr holds the sentinel errors shared across layers.
package apperr

import "errors"

var (
	// ErrNotFound reports that a source file has no bound companion note.
	ErrNotFound = errors.New("does not exist")
	// ErrAlreadyExists reports that a source file already has a companion note.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalid reports a request the vault cannot accept, such as
	// uploading a note as a source.
	ErrInvalid = errors.New("invalid")
)
