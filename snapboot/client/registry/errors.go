package registry

import "errors"

// The agent decides between retry and graceful fallback based on these
// kinds, so every failure of the client maps onto exactly one of them.
var (
	ErrNotFound    = errors.New("not found in registry")
	ErrUnreachable = errors.New("registry unreachable")
	ErrMalformed   = errors.New("malformed registry response")
)
