package domain

import "errors"

// Sentinel errors returned by repository implementations.
// The Logic layer translates them into its own error vocabulary.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict indicates a write lost a race against a concurrent
	// transaction (serialization failure, deadlock, busy database or a
	// uniqueness violation). The whole transaction may be retried.
	ErrConflict = errors.New("write conflict")

	// ErrInvalidReference indicates a write named a row that does not exist
	// (foreign key violation). Retrying cannot succeed.
	ErrInvalidReference = errors.New("referenced record does not exist")
)
