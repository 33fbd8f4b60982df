package storage

import "errors"

// Common storage errors
var (
	// ErrUserNotFound indicates that user was not found in storage
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates that user with this username already exists
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrRowNotFound indicates that a domain row was not found
	ErrRowNotFound = errors.New("row not found")

	// ErrRowAlreadyExists indicates that a domain row with this id already exists
	ErrRowAlreadyExists = errors.New("row already exists")

	// ErrCVRNotFound indicates that the CVR is missing, expired or belongs to another client group
	ErrCVRNotFound = errors.New("cvr not found")

	// ErrCVRConflict indicates that the cvr id is already held by another client group
	ErrCVRConflict = errors.New("cvr id belongs to another client group")

	// ErrUnknownCollection indicates a collection the ledger cannot project
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrTransient помечает ошибки, которые имеет смысл повторить (SQLITE_BUSY и т.п.)
	ErrTransient = errors.New("transient storage error")
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
