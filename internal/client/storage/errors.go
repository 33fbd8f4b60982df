package storage

import "errors"

// Common client storage errors
var (
	// ErrAuthNotFound indicates that no authentication data exists
	ErrAuthNotFound = errors.New("authentication data not found")

	// ErrRowNotFound indicates that the replica has no such row
	ErrRowNotFound = errors.New("row not found")

	// ErrInvalidPatch indicates a patch operation the replica cannot apply
	ErrInvalidPatch = errors.New("invalid patch operation")
)
