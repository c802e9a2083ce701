// Package apperr defines sentinel errors shared across transports.
package apperr

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrNotOpen  = errors.New("document not open")
)
