package server

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/Shadowcake59/ChatVerse/internal/identity"
	"github.com/Shadowcake59/ChatVerse/internal/store"
	"github.com/Shadowcake59/ChatVerse/pkg/config"
	"github.com/google/uuid"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

type fakeTransport struct {
	id uuid.UUID
}

func newFakeTransport() *fakeTransport      { return &fakeTransport{id: uuid.New()} }
func (f *fakeTransport) ID() uuid.UUID      { return f.id }
func (f *fakeTransport) Send([]byte) bool   { return true }
func (f *fakeTransport) Close(err error)    {}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	stores := Stores{
		Messages: store.NopMessageStore{},
		Presence: store.NopPresenceMirror{},
	}
	return NewApp(newTestLogger(), context.Background(), cfg, stores, identity.NewJWTResolver("test-secret"))
}

func TestSweepTypingFloorsZeroTTL(t *testing.T) {
	// zero-value config: TypingTTL unset
	app := newTestApp(t, &config.Config{})

	tr := newFakeTransport()
	if _, err := app.registry.Register(tr, "127.0.0.1"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := app.registry.Authenticate(tr.ID(), "u1"); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if _, _, err := app.registry.JoinRoom(tr.ID(), "general"); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}
	app.registry.SetTyping(tr.ID(), true)

	app.sweepTyping()

	if _, _, changed := app.registry.SetTyping(tr.ID(), false); !changed {
		t.Error("fresh typing flag was expired by a sweep with unset TTL")
	}
}
