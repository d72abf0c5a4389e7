package link

import "errors"

// Domain errors for link lifecycle management.
var (
	// ErrIllegalTransition is returned when a state change is outside the lifecycle graph.
	ErrIllegalTransition = errors.New("link: illegal state transition")

	// ErrClosed is returned by sessions that were closed locally.
	ErrClosed = errors.New("link: session closed")
)
