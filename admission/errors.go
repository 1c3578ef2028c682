package admission

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRejected matches every *RejectedError.
	ErrRejected = errors.New("admission: concurrency limit reached")
	// ErrUnknownSession is returned when no identity could be resolved.
	ErrUnknownSession = errors.New("admission: session identity unknown")
	// ErrSessionNotFound is returned by Migrate when neither identity has a record.
	ErrSessionNotFound = errors.New("admission: session not found")
	// ErrSessionInUse is returned by Migrate when the durable identity
	// belongs to another live stream.
	ErrSessionInUse = errors.New("admission: identity held by another session")
	// ErrNotProvisional is returned by Migrate for a record that already
	// left the provisional state.
	ErrNotProvisional = errors.New("admission: session is not provisional")
)

// RejectedError is returned by TryAdmit when the session has no free permit.
// It is retryable and never affects the session itself.
type RejectedError struct {
	Identity   string
	Limit      int
	RetryAfter time.Duration
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("admission: session %q reached its limit of %d concurrent operations, retry after %s",
		e.Identity, e.Limit, e.RetryAfter)
}

// Is reports whether target is ErrRejected.
func (e *RejectedError) Is(target error) bool { return target == ErrRejected }
