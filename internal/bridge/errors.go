package bridge

import "errors"

// Domain errors for the bridge.
var (
	// ErrNoBroker is returned when the bridge is built without a broker link.
	ErrNoBroker = errors.New("bridge: broker link is required")

	// ErrUnknownLink is returned when a route names a link the bridge does not own.
	ErrUnknownLink = errors.New("bridge: unknown link")

	// ErrDuplicateLink is returned when two links share a name.
	ErrDuplicateLink = errors.New("bridge: duplicate link name")
)
