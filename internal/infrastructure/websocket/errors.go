package websocket

import "errors"

// Domain-specific errors for socket links.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrDialFailed is returned when the client handshake with the peer fails.
	ErrDialFailed = errors.New("websocket: dial failed")

	// ErrProtocol marks a malformed frame or an unexpected close code.
	ErrProtocol = errors.New("websocket: protocol error")

	// ErrReadFailed marks a transport failure on the read side.
	ErrReadFailed = errors.New("websocket: read failed")

	// ErrWriteFailed marks a transport failure on the write side.
	ErrWriteFailed = errors.New("websocket: write failed")

	// ErrIdleTimeout is returned when no frame arrived within idle_timeout.
	ErrIdleTimeout = errors.New("websocket: idle timeout")

	// ErrHandshake is returned when an application handshake goes off script.
	ErrHandshake = errors.New("websocket: handshake failed")

	// ErrUnauthorized is returned when a token is missing or rejected.
	ErrUnauthorized = errors.New("websocket: unauthorized")

	// ErrInvalidChannel is returned by Send for an empty channel with no default.
	ErrInvalidChannel = errors.New("websocket: channel cannot be empty")
)
