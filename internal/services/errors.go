package services

import "errors"

// Sentinel errors mapped to HTTP status codes by the handlers.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidState = errors.New("invalid state")
	ErrValidation   = errors.New("validation failed")
)
