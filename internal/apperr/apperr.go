// Package apperr defines the error kinds every feature reports through.
// Feature errors wrap one of these so the HTTP layer can map them with errors.Is.
package apperr

import "errors"

var (
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrBadRequest   = errors.New("bad request")
	ErrForbidden    = errors.New("forbidden")
)
