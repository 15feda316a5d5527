package explorer

import "errors"

var (
	// ErrConnectionLost means the session with the environment ended. It is
	// not retried; the process should shut down cleanly.
	ErrConnectionLost = errors.New("connection to environment lost")

	// ErrMalformed marks an observation that could not be used. The rest of
	// its batch is skipped and the controller carries on.
	ErrMalformed = errors.New("malformed observation")

	// ErrNoFrontier means there is no cell left worth exploring
	ErrNoFrontier = errors.New("no exploration target")

	// ErrInternal wraps a fault recovered from the event loop
	ErrInternal = errors.New("internal fault")
)
