// Package presence derives user online/away/offline status from connection
// lifecycle and broadcasts every transition.
package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Shadowcake59/ChatVerse/internal/broadcast"
	"github.com/Shadowcake59/ChatVerse/internal/store"
	"github.com/Shadowcake59/ChatVerse/pkg/chat"
	"github.com/google/uuid"
)

const mirrorTimeout = 5 * time.Second

type changedPayload struct {
	UserID string              `json:"userId"`
	Status chat.PresenceStatus `json:"status"`
}

// Tracker owns the away overlay on top of the registry's refcount-derived
// online state. Transitions are driven by the protocol layer (refcount
// edges) or server-side calls (away), never directly by client frames, so a
// client cannot spoof another user's presence.
type Tracker struct {
	logger *slog.Logger
	reg    chat.Registry
	bc     *broadcast.Broadcaster
	mirror store.PresenceMirror

	mu   sync.Mutex
	away map[string]bool
}

func NewTracker(logger *slog.Logger, reg chat.Registry, bc *broadcast.Broadcaster, mirror store.PresenceMirror) *Tracker {
	return &Tracker{
		logger: logger.With(slog.String("component", "presence")),
		reg:    reg,
		bc:     bc,
		mirror: mirror,
		away:   make(map[string]bool),
	}
}

// UserOnline is called on a user's 0→1 connection transition.
func (t *Tracker) UserOnline(ctx context.Context, userID string) {
	t.mu.Lock()
	delete(t.away, userID)
	t.mu.Unlock()
	t.announce(userID, chat.StatusOnline)
}

// UserOffline is called after the user's last connection closed.
func (t *Tracker) UserOffline(ctx context.Context, userID string) {
	t.mu.Lock()
	delete(t.away, userID)
	t.mu.Unlock()
	t.announce(userID, chat.StatusOffline)
}

// SetAway marks an online user as away. Reserved server-side API; no inbound
// frame reaches it.
func (t *Tracker) SetAway(ctx context.Context, userID string) {
	if !t.isOnline(userID) {
		return
	}
	t.mu.Lock()
	already := t.away[userID]
	t.away[userID] = true
	t.mu.Unlock()
	if already {
		return
	}
	t.announce(userID, chat.StatusAway)
}

// SetBack returns an away user to online.
func (t *Tracker) SetBack(ctx context.Context, userID string) {
	t.mu.Lock()
	wasAway := t.away[userID]
	delete(t.away, userID)
	t.mu.Unlock()
	if !wasAway || !t.isOnline(userID) {
		return
	}
	t.announce(userID, chat.StatusOnline)
}

// Status reports the user's current derived presence.
func (t *Tracker) Status(userID string) chat.PresenceStatus {
	if !t.isOnline(userID) {
		return chat.StatusOffline
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.away[userID] {
		return chat.StatusAway
	}
	return chat.StatusOnline
}

func (t *Tracker) isOnline(userID string) bool {
	for _, id := range t.reg.OnlineUsers() {
		if id == userID {
			return true
		}
	}
	return false
}

// announce broadcasts the transition to every connection (the user's own
// included) and mirrors it to the store best-effort.
func (t *Tracker) announce(userID string, status chat.PresenceStatus) {
	t.bc.ToAll(chat.Event{
		Type:    chat.EventPresenceChanged,
		Payload: changedPayload{UserID: userID, Status: status},
	}, uuid.Nil)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := t.mirror.UpdateUserStatus(ctx, userID, string(status)); err != nil {
			t.logger.Warn("Presence mirror write failed",
				slog.String("userID", userID),
				slog.Any("error", err),
			)
		}
	}()
}
