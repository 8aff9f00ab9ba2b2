package storage

import "errors"

// Sentinel errors forming the repository error taxonomy. Callers classify
// failures with errors.Is; the API layer maps them to HTTP status codes.
var (
	// ErrNotFound marks lookups for sessions, templates, or channels that do
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks writes that would violate a uniqueness rule, such as
	// starting a session on a channel that is already live.
	ErrConflict = errors.New("conflict")

	// ErrInvalidArgument marks structurally valid requests carrying unusable
	// values, such as a zero page size.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnavailable marks failures of an external dependency the repository
	// cannot reach.
	ErrUnavailable = errors.New("dependency unavailable")
)
