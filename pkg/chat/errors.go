package chat

import "errors"

var (
	// ErrNotFound is returned for operations on a connection that is no
	// longer (or was never) registered. Callers treat it as "connection
	// already gone" and drop the frame.
	ErrNotFound = errors.New("connection not found")

	// ErrNotAuthenticated is returned when an operation requires a
	// completed authenticate step.
	ErrNotAuthenticated = errors.New("connection not authenticated")

	// ErrAlreadyAuthenticated is returned when authenticate is called
	// twice on the same connection.
	ErrAlreadyAuthenticated = errors.New("connection already authenticated")

	// ErrAlreadyRegistered is returned when a transport ID collides with a
	// live registration.
	ErrAlreadyRegistered = errors.New("connection already registered")

	// ErrSendBufferFull marks a connection whose outbound buffer
	// overflowed; the broadcaster closes such connections.
	ErrSendBufferFull = errors.New("send buffer full")
)
