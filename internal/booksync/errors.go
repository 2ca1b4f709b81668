package booksync

import "errors"

var (
	ErrNotAuthenticated  = errors.New("user not authenticated")
	ErrRemoteUnavailable = errors.New("remote store unavailable")
	ErrNotFound          = errors.New("book not found")
	ErrMigrationFailed   = errors.New("asset migration failed")
	ErrInvalidBook       = errors.New("invalid book data")
)
