package sqlite

import "errors"

// Sentinel error kinds for this package.
var (
	ErrNotConfigured = errors.New("storage is not configured")
	ErrAlreadyExists = errors.New("record already exists")
	ErrNotFound      = errors.New("record not found")
)
