package chat

import (
	"time"

	"github.com/google/uuid"
)

// Registry is the source of truth for live connections, their identities and
// their room memberships. Implementations must make JoinRoom's room switch
// and Unregister atomic with respect to every other operation: no caller may
// observe a connection in two rooms, or in none, mid-switch.
type Registry interface {
	// --- Connection lifecycle ---
	Register(t Transport, ipAddr string) (*Connection, error)
	// Authenticate marks the connection as the given user. wentOnline
	// reports whether this was the user's first live connection.
	Authenticate(connID uuid.UUID, userID string) (wentOnline bool, err error)
	// Unregister removes the connection entirely, leaving its room first.
	// The second return is false if the connection was already gone.
	Unregister(connID uuid.UUID) (Departure, bool)

	// --- Room membership ---
	// JoinRoom atomically moves the connection into roomID, leaving any
	// previous room. prevRoomID is the room left ("" if none); prevTyping
	// reports whether a typing flag was cleared on the way out.
	JoinRoom(connID uuid.UUID, roomID string) (prevRoomID string, prevTyping bool, err error)
	// LeaveCurrentRoom is idempotent; it reports the room left, if any.
	LeaveCurrentRoom(connID uuid.UUID) (roomID string, wasTyping bool)

	// --- Typing state ---
	// SetTyping flips the connection's typing flag. changed is false when
	// the flag already had the requested value or the connection is not in
	// a room.
	SetTyping(connID uuid.UUID, typing bool) (roomID, userID string, changed bool)
	// ExpireTyping clears typing flags whose last signal is older than ttl.
	ExpireTyping(ttl time.Duration) []TypingExpiry

	// --- Maintenance ---
	PruneEmptyRooms() int

	// --- Read-only snapshots ---
	Connection(connID uuid.UUID) (*Connection, bool)
	Connections() []*Connection
	RoomMembers(roomID string) []*Connection
	RoomMemberUsers(roomID string) []string
	OnlineUsers() []string
	ConnectionCountForIP(ipAddr string) int
}

// Filter decides whether message text is acceptable. Pure and stateless, so
// it can be swapped for a smarter classifier without touching the protocol
// layer.
type Filter interface {
	Allowed(text string) bool
}
