package usecase

import crerr "github.com/cockroachdb/errors"

var (
	ErrInvalidInput          = crerr.New("invalid input")
	ErrNotFound              = crerr.New("not found")
	ErrUnauthorized          = crerr.New("unauthorized")
	ErrDependencyUnavailable = crerr.New("dependency unavailable")
	// ErrPublish wraps failures of the publish phase. Per-record failures never
	// reach the caller.
	ErrPublish = crerr.New("publish failed")
	// ErrRunLocked means another runner holds the harvest lock.
	ErrRunLocked = crerr.New("harvest run already in progress")
)
