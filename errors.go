package searchcache

import (
	"errors"
)

// Sentinel errors for common search cache error conditions.
// These can be used with errors.Is() for error handling.
var (
	// ErrSearchNotFound indicates the referenced search does not exist.
	ErrSearchNotFound = errors.New("searchcache: search not found")

	// ErrInvalidArgument indicates a malformed request value, such as a
	// negative page offset or count.
	ErrInvalidArgument = errors.New("searchcache: invalid argument")

	// ErrInvalidTransition indicates a status transition the state machine
	// does not allow, such as completing a search that was never claimed.
	// Losing a claim race is NOT this error; a lost claim is a normal
	// outcome reported through ClaimForExecution's boolean result.
	ErrInvalidTransition = errors.New("searchcache: invalid status transition")

	// ErrConfig indicates an invalid service configuration, such as an
	// expiry window shorter than the reuse window.
	ErrConfig = errors.New("searchcache: invalid configuration")
)

// IsNotFoundError returns true if the error indicates an unknown search.
//
// Example usage:
//
//	page, err := svc.FetchPage(ctx, id, 0, 20, searchcache.FetchAsync)
//	if searchcache.IsNotFoundError(err) {
//	    // The search expired or never existed; start a new one.
//	}
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrSearchNotFound)
}

// IsInvalidArgumentError returns true if the error indicates a malformed
// request value.
func IsInvalidArgumentError(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}
