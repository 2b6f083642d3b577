package thread

import "errors"

var (
	// ErrNotFound: the post or parent vanished; the affected scope shows a
	// passive placeholder and is not retried automatically.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCursor: pagination desync; the affected level restarts from
	// the beginning.
	ErrInvalidCursor = errors.New("invalid cursor")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrRateLimited     = errors.New("rate limited")
)

// ValidationError is surfaced inline near the composer that triggered it; it
// never affects the tree.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
