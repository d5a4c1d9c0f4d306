package cdn

import "errors"

// Sentinel errors.
var (
	// ErrNotFound is returned when the remote has no blob at the requested path.
	ErrNotFound = errors.New("cdn: not found")

	// ErrTransport is returned for any other unexpected remote response.
	ErrTransport = errors.New("cdn: transport error")
)
