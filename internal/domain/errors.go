package domain

import "errors"

// Error kinds. Services wrap these with context via fmt.Errorf("...: %w", ...)
// and the HTTP layer maps them to status codes with errors.Is.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrDependency      = errors.New("dependency unavailable")
)
