package chat

import (
	"time"

	"github.com/google/uuid"
)

// Transport is the send/close capability of one live client connection.
// *transport.Connection implements it; tests substitute fakes.
type Transport interface {
	ID() uuid.UUID
	// Send enqueues a frame for delivery. It returns false when the
	// connection is closed or its send buffer is full, in which case the
	// connection should be treated as dead.
	Send(msg []byte) bool
	Close(err error)
}

// Connection is the registry's record of a single transport session.
// The registry owns these exclusively; all mutation happens under its lock.
type Connection struct {
	ID        uuid.UUID
	Transport Transport
	IPAddress string

	// UserID is empty until the connection authenticates.
	UserID string
	// RoomID is empty while the connection is in no room.
	RoomID string

	Typing           bool
	LastTypingSignal time.Time

	CreatedAt time.Time
}

// User aggregates the live connections authenticated as one user. Presence
// is derived from the connection count, never set directly.
type User struct {
	ID          string
	Connections map[uuid.UUID]*Connection
}

// Room is a named channel with its current member connections.
type Room struct {
	ID      string
	Members map[uuid.UUID]*Connection
}

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusAway    PresenceStatus = "away"
	StatusOffline PresenceStatus = "offline"
)

// Departure summarizes what a connection left behind when it was
// unregistered, so callers can run the matching broadcasts.
type Departure struct {
	UserID      string
	RoomID      string
	WasTyping   bool
	WentOffline bool
}

// TypingExpiry identifies a typing flag cleared by the janitor sweep.
type TypingExpiry struct {
	ConnID uuid.UUID
	RoomID string
	UserID string
}
