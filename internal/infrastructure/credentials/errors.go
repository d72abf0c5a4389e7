package credentials

import "errors"

// Domain-specific errors for token providers.
var (
	// ErrNoToken is returned when a provider has no token to offer.
	ErrNoToken = errors.New("credentials: no token available")

	// ErrUnavailable is returned while the token endpoint circuit is open.
	ErrUnavailable = errors.New("credentials: token endpoint unavailable")

	// ErrBadResponse is returned for non-2xx or undecodable token responses.
	ErrBadResponse = errors.New("credentials: bad token response")

	// ErrUnknownType is returned by New for an unsupported provider type.
	ErrUnknownType = errors.New("credentials: unknown provider type")
)
