// Package registry provides the in-memory chat.Registry implementation.
package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Shadowcake59/ChatVerse/pkg/chat"
	"github.com/google/uuid"
)

// InMemory keeps all connection, user and room state behind a single
// RWMutex. Critical sections are map operations only; no I/O ever happens
// under the lock, so contention stays low and the room-switch invariant is
// trivially atomic.
type InMemory struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]*chat.Connection
	users map[string]*chat.User
	rooms map[string]*chat.Room

	logger *slog.Logger
}

// compile-time check to ensure InMemory implements chat.Registry.
var _ chat.Registry = (*InMemory)(nil)

func NewInMemory(logger *slog.Logger) *InMemory {
	return &InMemory{
		conns:  make(map[uuid.UUID]*chat.Connection),
		users:  make(map[string]*chat.User),
		rooms:  make(map[string]*chat.Room),
		logger: logger.With(slog.String("component", "registry")),
	}
}

// --- Connection lifecycle ---

func (r *InMemory) Register(t chat.Transport, ipAddr string) (*chat.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	connID := t.ID()
	if _, exists := r.conns[connID]; exists {
		return nil, chat.ErrAlreadyRegistered
	}
	conn := &chat.Connection{
		ID:        connID,
		Transport: t,
		IPAddress: ipAddr,
		CreatedAt: time.Now(),
	}
	r.conns[connID] = conn
	r.logger.Debug("Connection registered", slog.String("connID", connID.String()))
	return conn, nil
}

func (r *InMemory) Authenticate(connID uuid.UUID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return false, chat.ErrNotFound
	}
	if conn.UserID != "" {
		return false, chat.ErrAlreadyAuthenticated
	}

	user, exists := r.users[userID]
	if !exists {
		user = &chat.User{
			ID:          userID,
			Connections: make(map[uuid.UUID]*chat.Connection),
		}
		r.users[userID] = user
	}

	conn.UserID = userID
	user.Connections[connID] = conn
	wentOnline := len(user.Connections) == 1

	r.logger.Debug("Connection authenticated",
		slog.String("connID", connID.String()),
		slog.String("userID", userID),
		slog.Bool("wentOnline", wentOnline),
	)
	return wentOnline, nil
}

func (r *InMemory) Unregister(connID uuid.UUID) (chat.Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		// already unregistered
		return chat.Departure{}, false
	}
	delete(r.conns, connID)

	dep := chat.Departure{UserID: conn.UserID}
	dep.RoomID, dep.WasTyping = r.leaveRoomLocked(conn)

	if conn.UserID != "" {
		if user, ok := r.users[conn.UserID]; ok {
			delete(user.Connections, connID)
			if len(user.Connections) == 0 {
				delete(r.users, conn.UserID)
				dep.WentOffline = true
			}
		}
	}

	r.logger.Debug("Connection unregistered",
		slog.String("connID", connID.String()),
		slog.String("userID", dep.UserID),
		slog.Bool("wentOffline", dep.WentOffline),
	)
	return dep, true
}

// --- Room membership ---

func (r *InMemory) JoinRoom(connID uuid.UUID, roomID string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return "", false, chat.ErrNotFound
	}
	if conn.UserID == "" {
		return "", false, chat.ErrNotAuthenticated
	}
	if conn.RoomID == roomID {
		// already a member; nothing to switch
		return roomID, false, nil
	}

	prevRoomID, prevTyping := r.leaveRoomLocked(conn)

	room, exists := r.rooms[roomID]
	if !exists {
		room = &chat.Room{
			ID:      roomID,
			Members: make(map[uuid.UUID]*chat.Connection),
		}
		r.rooms[roomID] = room
	}
	room.Members[connID] = conn
	conn.RoomID = roomID

	r.logger.Debug("Connection joined room",
		slog.String("connID", connID.String()),
		slog.String("roomID", roomID),
		slog.String("prevRoomID", prevRoomID),
	)
	return prevRoomID, prevTyping, nil
}

func (r *InMemory) LeaveCurrentRoom(connID uuid.UUID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return "", false
	}
	return r.leaveRoomLocked(conn)
}

// leaveRoomLocked removes conn from its current room, clearing its typing
// flag and deleting the room if it became empty. Caller holds r.mu.
func (r *InMemory) leaveRoomLocked(conn *chat.Connection) (string, bool) {
	roomID := conn.RoomID
	if roomID == "" {
		return "", false
	}

	wasTyping := conn.Typing
	conn.RoomID = ""
	conn.Typing = false

	if room, ok := r.rooms[roomID]; ok {
		delete(room.Members, conn.ID)
		if len(room.Members) == 0 {
			delete(r.rooms, roomID)
			r.logger.Debug("Removed empty room", slog.String("roomID", roomID))
		}
	}
	return roomID, wasTyping
}

// --- Typing state ---

func (r *InMemory) SetTyping(connID uuid.UUID, typing bool) (string, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok || conn.RoomID == "" {
		return "", "", false
	}
	if typing {
		conn.LastTypingSignal = time.Now()
	}
	if conn.Typing == typing {
		return conn.RoomID, conn.UserID, false
	}
	conn.Typing = typing
	return conn.RoomID, conn.UserID, true
}

func (r *InMemory) ExpireTyping(ttl time.Duration) []chat.TypingExpiry {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	var expired []chat.TypingExpiry
	for _, conn := range r.conns {
		if conn.Typing && conn.LastTypingSignal.Before(cutoff) {
			conn.Typing = false
			expired = append(expired, chat.TypingExpiry{
				ConnID: conn.ID,
				RoomID: conn.RoomID,
				UserID: conn.UserID,
			})
		}
	}
	if len(expired) > 0 {
		r.logger.Debug("Expired stale typing flags", slog.Int("count", len(expired)))
	}
	return expired
}

// --- Maintenance ---

// PruneEmptyRooms is a safety net behind the eager empty-room deletion in
// leaveRoomLocked; the janitor runs it periodically.
func (r *InMemory) PruneEmptyRooms() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	pruned := 0
	for roomID, room := range r.rooms {
		if len(room.Members) == 0 {
			delete(r.rooms, roomID)
			pruned++
		}
	}
	return pruned
}

// --- Read-only snapshots ---

func (r *InMemory) Connection(connID uuid.UUID) (*chat.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connID]
	return conn, ok
}

func (r *InMemory) Connections() []*chat.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*chat.Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

func (r *InMemory) RoomMembers(roomID string) []*chat.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	members := make([]*chat.Connection, 0, len(room.Members))
	for _, c := range room.Members {
		members = append(members, c)
	}
	return members
}

func (r *InMemory) RoomMemberUsers(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	seen := make(map[string]struct{}, len(room.Members))
	users := make([]string, 0, len(room.Members))
	for _, c := range room.Members {
		if _, dup := seen[c.UserID]; dup {
			continue
		}
		seen[c.UserID] = struct{}{}
		users = append(users, c.UserID)
	}
	return users
}

func (r *InMemory) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// users map only holds entries with at least one live connection
	users := make([]string, 0, len(r.users))
	for id := range r.users {
		users = append(users, id)
	}
	return users
}

func (r *InMemory) ConnectionCountForIP(ipAddr string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, c := range r.conns {
		if c.IPAddress == ipAddr {
			count++
		}
	}
	return count
}
