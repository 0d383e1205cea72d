package repositories

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates the attempted write would violate a uniqueness constraint.
	ErrConflict = errors.New("record conflict")
	// ErrAlreadyResolved indicates a conditional transition found the request
	// no longer pending (or no longer accepted, for completion): the caller
	// lost the race and must treat the outcome as final.
	ErrAlreadyResolved = errors.New("request already resolved")
)
