package registry_test

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Shadowcake59/ChatVerse/pkg/chat"
	"github.com/Shadowcake59/ChatVerse/pkg/chat/registry"
	"github.com/google/uuid"
)

// --- Test Suite Setup ---

func newTestLogger() *slog.Logger {
	// Discard logger output during tests by setting a high level
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func newTestRegistry() *registry.InMemory {
	return registry.NewInMemory(newTestLogger())
}

type fakeTransport struct {
	id uuid.UUID
}

func newFakeTransport() *fakeTransport       { return &fakeTransport{id: uuid.New()} }
func (f *fakeTransport) ID() uuid.UUID       { return f.id }
func (f *fakeTransport) Send(msg []byte) bool { return true }
func (f *fakeTransport) Close(err error)     {}

func register(t *testing.T, r *registry.InMemory) *chat.Connection {
	t.Helper()
	conn, err := r.Register(newFakeTransport(), "127.0.0.1")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return conn
}

func authenticate(t *testing.T, r *registry.InMemory, connID uuid.UUID, userID string) bool {
	t.Helper()
	wentOnline, err := r.Authenticate(connID, userID)
	if err != nil {
		t.Fatalf("Authenticate(%s) failed: %v", userID, err)
	}
	return wentOnline
}

// --- Connection lifecycle ---

func TestConnectionLifecycle(t *testing.T) {
	r := newTestRegistry()
	conn := register(t, r)

	got, found := r.Connection(conn.ID)
	if !found {
		t.Fatal("Connection failed to find registered connection")
	}
	if got.ID != conn.ID {
		t.Errorf("Retrieved connection ID mismatch")
	}

	dep, ok := r.Unregister(conn.ID)
	if !ok {
		t.Fatal("Unregister reported connection missing")
	}
	if dep.UserID != "" || dep.RoomID != "" || dep.WentOffline {
		t.Errorf("Unexpected departure for unauthenticated connection: %+v", dep)
	}
	if _, found := r.Connection(conn.ID); found {
		t.Error("Found connection after unregister")
	}
}

func TestRegisterDuplicateID(t *testing.T) {
	r := newTestRegistry()
	tr := newFakeTransport()
	if _, err := r.Register(tr, "1.1.1.1"); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if _, err := r.Register(tr, "1.1.1.1"); !errors.Is(err, chat.ErrAlreadyRegistered) {
		t.Errorf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	conn := register(t, r)
	authenticate(t, r, conn.ID, "user-1")

	if _, ok := r.Unregister(conn.ID); !ok {
		t.Fatal("first Unregister should report the connection present")
	}
	if dep, ok := r.Unregister(conn.ID); ok {
		t.Errorf("second Unregister should be a no-op, got %+v", dep)
	}
	if got := len(r.OnlineUsers()); got != 0 {
		t.Errorf("expected 0 online users, got %d", got)
	}
}

// --- Authentication and presence refcount ---

func TestAuthenticateTwiceFails(t *testing.T) {
	r := newTestRegistry()
	conn := register(t, r)
	authenticate(t, r, conn.ID, "user-1")

	if _, err := r.Authenticate(conn.ID, "user-1"); !errors.Is(err, chat.ErrAlreadyAuthenticated) {
		t.Errorf("expected ErrAlreadyAuthenticated, got %v", err)
	}
}

func TestAuthenticateUnknownConnection(t *testing.T) {
	r := newTestRegistry()
	if _, err := r.Authenticate(uuid.New(), "user-1"); !errors.Is(err, chat.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPresenceRefcount(t *testing.T) {
	r := newTestRegistry()
	userID := "user-multi"
	conn1 := register(t, r)
	conn2 := register(t, r)

	if !authenticate(t, r, conn1.ID, userID) {
		t.Error("first connection should report wentOnline")
	}
	if authenticate(t, r, conn2.ID, userID) {
		t.Error("second connection must not report wentOnline")
	}

	dep, _ := r.Unregister(conn1.ID)
	if dep.WentOffline {
		t.Error("user still has a live connection; must not go offline")
	}
	if got := len(r.OnlineUsers()); got != 1 {
		t.Errorf("expected 1 online user, got %d", got)
	}

	dep, _ = r.Unregister(conn2.ID)
	if !dep.WentOffline {
		t.Error("closing the last connection must report wentOffline")
	}
	if got := len(r.OnlineUsers()); got != 0 {
		t.Errorf("expected 0 online users, got %d", got)
	}
}

// --- Room membership ---

func TestJoinRequiresAuthentication(t *testing.T) {
	r := newTestRegistry()
	conn := register(t, r)
	if _, _, err := r.JoinRoom(conn.ID, "general"); !errors.Is(err, chat.ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestAtMostOneRoom(t *testing.T) {
	r := newTestRegistry()
	conn := register(t, r)
	authenticate(t, r, conn.ID, "user-1")

	if prev, _, err := r.JoinRoom(conn.ID, "room-a"); err != nil || prev != "" {
		t.Fatalf("JoinRoom(room-a) = (%q, %v)", prev, err)
	}
	prev, _, err := r.JoinRoom(conn.ID, "room-b")
	if err != nil {
		t.Fatalf("JoinRoom(room-b) failed: %v", err)
	}
	if prev != "room-a" {
		t.Errorf("expected previous room room-a, got %q", prev)
	}

	if members := r.RoomMembers("room-a"); len(members) != 0 {
		t.Errorf("room-a should be empty after switch, has %d members", len(members))
	}
	members := r.RoomMembers("room-b")
	if len(members) != 1 || members[0].ID != conn.ID {
		t.Errorf("room-b should contain exactly the switched connection")
	}
	got, _ := r.Connection(conn.ID)
	if got.RoomID != "room-b" {
		t.Errorf("connection RoomID = %q, want room-b", got.RoomID)
	}
}

func TestJoinSameRoomIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	conn := register(t, r)
	authenticate(t, r, conn.ID, "user-1")
	r.JoinRoom(conn.ID, "general")

	prev, _, err := r.JoinRoom(conn.ID, "general")
	if err != nil {
		t.Fatalf("re-join failed: %v", err)
	}
	if prev != "general" {
		t.Errorf("re-join should report the same room, got %q", prev)
	}
	if members := r.RoomMembers("general"); len(members) != 1 {
		t.Errorf("expected 1 member, got %d", len(members))
	}
}

func TestLeaveCurrentRoom(t *testing.T) {
	r := newTestRegistry()
	conn := register(t, r)
	authenticate(t, r, conn.ID, "user-1")
	r.JoinRoom(conn.ID, "general")
	r.SetTyping(conn.ID, true)

	roomID, wasTyping := r.LeaveCurrentRoom(conn.ID)
	if roomID != "general" || !wasTyping {
		t.Errorf("LeaveCurrentRoom = (%q, %v), want (general, true)", roomID, wasTyping)
	}

	// idempotent when not in a room
	roomID, wasTyping = r.LeaveCurrentRoom(conn.ID)
	if roomID != "" || wasTyping {
		t.Errorf("second LeaveCurrentRoom = (%q, %v), want empty", roomID, wasTyping)
	}

	// empty room is removed eagerly
	if members := r.RoomMemberUsers("general"); members != nil {
		t.Errorf("expected empty room to be gone, got members %v", members)
	}
}

func TestUnregisterLeavesRoom(t *testing.T) {
	r := newTestRegistry()
	conn1 := register(t, r)
	conn2 := register(t, r)
	authenticate(t, r, conn1.ID, "user-1")
	authenticate(t, r, conn2.ID, "user-2")
	r.JoinRoom(conn1.ID, "general")
	r.JoinRoom(conn2.ID, "general")
	r.SetTyping(conn1.ID, true)

	dep, _ := r.Unregister(conn1.ID)
	if dep.RoomID != "general" {
		t.Errorf("departure RoomID = %q, want general", dep.RoomID)
	}
	if !dep.WasTyping {
		t.Error("departure should report the typing flag was set")
	}

	users := r.RoomMemberUsers("general")
	if len(users) != 1 || users[0] != "user-2" {
		t.Errorf("room members after unregister = %v, want [user-2]", users)
	}
}

// --- Typing state ---

func TestSetTypingRequiresRoom(t *testing.T) {
	r := newTestRegistry()
	conn := register(t, r)
	authenticate(t, r, conn.ID, "user-1")

	if _, _, changed := r.SetTyping(conn.ID, true); changed {
		t.Error("typing outside a room must not register")
	}
}

func TestSetTypingReportsTransitionsOnly(t *testing.T) {
	r := newTestRegistry()
	conn := register(t, r)
	authenticate(t, r, conn.ID, "user-1")
	r.JoinRoom(conn.ID, "general")

	roomID, userID, changed := r.SetTyping(conn.ID, true)
	if !changed || roomID != "general" || userID != "user-1" {
		t.Errorf("SetTyping(true) = (%q, %q, %v)", roomID, userID, changed)
	}
	if _, _, changed := r.SetTyping(conn.ID, true); changed {
		t.Error("repeated typing_start must not report a change")
	}
	if _, _, changed := r.SetTyping(conn.ID, false); !changed {
		t.Error("typing_stop after typing_start must report a change")
	}
}

func TestExpireTyping(t *testing.T) {
	r := newTestRegistry()
	conn := register(t, r)
	authenticate(t, r, conn.ID, "user-1")
	r.JoinRoom(conn.ID, "general")
	r.SetTyping(conn.ID, true)

	if expired := r.ExpireTyping(time.Minute); len(expired) != 0 {
		t.Errorf("fresh typing flag expired too early: %v", expired)
	}

	time.Sleep(5 * time.Millisecond)
	expired := r.ExpireTyping(time.Millisecond)
	if len(expired) != 1 {
		t.Fatalf("expected 1 expiry, got %d", len(expired))
	}
	if expired[0].RoomID != "general" || expired[0].UserID != "user-1" {
		t.Errorf("unexpected expiry record: %+v", expired[0])
	}
	if _, _, changed := r.SetTyping(conn.ID, false); changed {
		t.Error("flag should already be cleared after expiry")
	}
}

// --- Snapshots and maintenance ---

func TestConnectionCountForIP(t *testing.T) {
	r := newTestRegistry()
	r.Register(newFakeTransport(), "10.0.0.1")
	r.Register(newFakeTransport(), "10.0.0.1")
	r.Register(newFakeTransport(), "10.0.0.2")

	if got := r.ConnectionCountForIP("10.0.0.1"); got != 2 {
		t.Errorf("ConnectionCountForIP(10.0.0.1) = %d, want 2", got)
	}
	if got := r.ConnectionCountForIP("10.0.0.3"); got != 0 {
		t.Errorf("ConnectionCountForIP(10.0.0.3) = %d, want 0", got)
	}
}

func TestRoomMemberUsersDeduplicates(t *testing.T) {
	r := newTestRegistry()
	conn1 := register(t, r)
	conn2 := register(t, r)
	authenticate(t, r, conn1.ID, "user-1")
	authenticate(t, r, conn2.ID, "user-1")
	r.JoinRoom(conn1.ID, "general")
	r.JoinRoom(conn2.ID, "general")

	users := r.RoomMemberUsers("general")
	if len(users) != 1 || users[0] != "user-1" {
		t.Errorf("expected deduplicated [user-1], got %v", users)
	}
}

func TestConcurrentJoinAndUnregister(t *testing.T) {
	r := newTestRegistry()
	const goroutines = 50
	var wg sync.WaitGroup

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, err := r.Register(newFakeTransport(), "127.0.0.1")
			if err != nil {
				t.Errorf("Register failed: %v", err)
				return
			}
			userID := "user" + strconv.Itoa(i%10)
			if _, err := r.Authenticate(conn.ID, userID); err != nil {
				t.Errorf("Authenticate failed: %v", err)
				return
			}
			r.JoinRoom(conn.ID, "room"+strconv.Itoa(i%3))
			r.JoinRoom(conn.ID, "room"+strconv.Itoa((i+1)%3))
			r.SetTyping(conn.ID, true)
			r.Unregister(conn.ID)
		}(i)
	}
	wg.Wait()

	if got := len(r.Connections()); got != 0 {
		t.Errorf("expected no connections left, got %d", got)
	}
	if got := len(r.OnlineUsers()); got != 0 {
		t.Errorf("expected no online users left, got %d", got)
	}
	if pruned := r.PruneEmptyRooms(); pruned != 0 {
		t.Errorf("empty rooms should have been removed eagerly, pruned %d", pruned)
	}
}
