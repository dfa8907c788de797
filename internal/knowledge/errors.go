package knowledge

import "errors"

// Domain error taxonomy. Transport layers map these onto their own status
// codes; everything wrapping one of these is a domain outcome, everything
// else is treated as infrastructure failure.
var (
	// ErrValidation marks malformed input, rejected before any mutation.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized marks a missing or invalid identity credential.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound marks a reference to a nonexistent bug, solution, or agent.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a uniqueness-constraint collision. It is resolved
	// internally by retry and must never reach a caller.
	ErrConflict = errors.New("conflict")

	// ErrUnavailable marks a store or index outage. Retryable by callers,
	// distinct from every domain error above.
	ErrUnavailable = errors.New("backend unavailable")
)

// IsRetryable reports whether err is an infrastructure failure the caller
// may retry with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
