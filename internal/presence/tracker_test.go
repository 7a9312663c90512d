package presence_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/Shadowcake59/ChatVerse/internal/broadcast"
	"github.com/Shadowcake59/ChatVerse/internal/presence"
	"github.com/Shadowcake59/ChatVerse/internal/store"
	"github.com/Shadowcake59/ChatVerse/pkg/chat"
	"github.com/Shadowcake59/ChatVerse/pkg/chat/registry"
	"github.com/google/uuid"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

type fakeTransport struct {
	id uuid.UUID

	mu   sync.Mutex
	sent [][]byte
}

func newFakeTransport() *fakeTransport { return &fakeTransport{id: uuid.New()} }

func (f *fakeTransport) ID() uuid.UUID { return f.id }

func (f *fakeTransport) Send(msg []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return true
}

func (f *fakeTransport) Close(err error) {}

type presenceEvent struct {
	Type    string `json:"type"`
	Payload struct {
		UserID string `json:"userId"`
		Status string `json:"status"`
	} `json:"payload"`
}

func (f *fakeTransport) presenceEvents(t *testing.T) []presenceEvent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	var events []presenceEvent
	for _, msg := range f.sent {
		var ev presenceEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("failed to decode event: %v", err)
		}
		if ev.Type == chat.EventPresenceChanged {
			events = append(events, ev)
		}
	}
	return events
}

type fixture struct {
	reg     *registry.InMemory
	tracker *presence.Tracker
}

func newFixture() *fixture {
	logger := newTestLogger()
	reg := registry.NewInMemory(logger)
	bc := broadcast.New(logger, reg)
	return &fixture{
		reg:     reg,
		tracker: presence.NewTracker(logger, reg, bc, store.NopPresenceMirror{}),
	}
}

func (fx *fixture) connect(t *testing.T, userID string) *fakeTransport {
	t.Helper()
	tr := newFakeTransport()
	if _, err := fx.reg.Register(tr, "127.0.0.1"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	wentOnline, err := fx.reg.Authenticate(tr.ID(), userID)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if wentOnline {
		fx.tracker.UserOnline(context.Background(), userID)
	}
	return tr
}

func (fx *fixture) disconnect(t *testing.T, tr *fakeTransport) {
	t.Helper()
	dep, ok := fx.reg.Unregister(tr.ID())
	if !ok {
		return
	}
	if dep.WentOffline {
		fx.tracker.UserOffline(context.Background(), dep.UserID)
	}
}

func TestOnlineBroadcastReachesAllIncludingSelf(t *testing.T) {
	fx := newFixture()
	observer := fx.connect(t, "observer")
	self := fx.connect(t, "u1")

	for name, tr := range map[string]*fakeTransport{"observer": observer, "self": self} {
		events := tr.presenceEvents(t)
		found := false
		for _, ev := range events {
			if ev.Payload.UserID == "u1" && ev.Payload.Status == "online" {
				found = true
			}
		}
		if !found {
			t.Errorf("%s did not receive online broadcast for u1: %+v", name, events)
		}
	}
}

func TestSingleOfflineBroadcastForMultipleConnections(t *testing.T) {
	fx := newFixture()
	observer := fx.connect(t, "observer")

	conns := []*fakeTransport{
		fx.connect(t, "u1"),
		fx.connect(t, "u1"),
		fx.connect(t, "u1"),
	}

	if got := fx.tracker.Status("u1"); got != chat.StatusOnline {
		t.Fatalf("Status = %v, want online", got)
	}

	for _, c := range conns {
		fx.disconnect(t, c)
	}

	offline := 0
	for _, ev := range observer.presenceEvents(t) {
		if ev.Payload.UserID == "u1" && ev.Payload.Status == "offline" {
			offline++
		}
	}
	if offline != 1 {
		t.Errorf("observer saw %d offline broadcasts for u1, want exactly 1", offline)
	}
	if got := fx.tracker.Status("u1"); got != chat.StatusOffline {
		t.Errorf("Status = %v, want offline", got)
	}
}

func TestAwayAndBack(t *testing.T) {
	fx := newFixture()
	observer := fx.connect(t, "observer")
	fx.connect(t, "u1")

	fx.tracker.SetAway(context.Background(), "u1")
	if got := fx.tracker.Status("u1"); got != chat.StatusAway {
		t.Errorf("Status after SetAway = %v, want away", got)
	}
	// repeated SetAway must not rebroadcast
	fx.tracker.SetAway(context.Background(), "u1")

	fx.tracker.SetBack(context.Background(), "u1")
	if got := fx.tracker.Status("u1"); got != chat.StatusOnline {
		t.Errorf("Status after SetBack = %v, want online", got)
	}

	away, online := 0, 0
	for _, ev := range observer.presenceEvents(t) {
		if ev.Payload.UserID != "u1" {
			continue
		}
		switch ev.Payload.Status {
		case "away":
			away++
		case "online":
			online++
		}
	}
	if away != 1 {
		t.Errorf("saw %d away broadcasts, want 1", away)
	}
	if online != 2 { // initial online + back from away
		t.Errorf("saw %d online broadcasts, want 2", online)
	}
}

func TestSetAwayIgnoresOfflineUser(t *testing.T) {
	fx := newFixture()
	observer := fx.connect(t, "observer")

	fx.tracker.SetAway(context.Background(), "ghost")
	if got := fx.tracker.Status("ghost"); got != chat.StatusOffline {
		t.Errorf("Status = %v, want offline", got)
	}
	for _, ev := range observer.presenceEvents(t) {
		if ev.Payload.UserID == "ghost" {
			t.Errorf("unexpected broadcast for offline user: %+v", ev)
		}
	}
}
