// Package store defines the narrow ports to durable storage. The broadcast
// core only ever calls these interfaces; concrete backends live in the
// subpackages.
package store

import (
	"context"
	"time"
)

type NewMessage struct {
	RoomID   string
	UserID   string
	Content  string
	ImageURL string
	Type     string // "text" or "image"
}

type StoredMessage struct {
	ID        string
	RoomID    string
	UserID    string
	Content   string
	ImageURL  string
	Type      string
	CreatedAt time.Time
}

// MessageStore is the durable write path. A PersistMessage failure is
// surfaced to the sender and suppresses the broadcast; UpdateLastRead is
// best-effort.
type MessageStore interface {
	PersistMessage(ctx context.Context, msg NewMessage) (*StoredMessage, error)
	UpdateLastRead(ctx context.Context, roomID, userID string) error
}

// PresenceMirror receives best-effort writes of soft state that is already
// authoritative in memory. Failures are logged, never surfaced to clients.
type PresenceMirror interface {
	UpdateUserStatus(ctx context.Context, userID, status string) error
	UpdateTypingStatus(ctx context.Context, roomID, userID string, typing bool) error
}

// NopMessageStore is used when no database is configured.
type NopMessageStore struct{}

func (NopMessageStore) PersistMessage(_ context.Context, msg NewMessage) (*StoredMessage, error) {
	return &StoredMessage{
		RoomID:    msg.RoomID,
		UserID:    msg.UserID,
		Content:   msg.Content,
		ImageURL:  msg.ImageURL,
		Type:      msg.Type,
		CreatedAt: time.Now(),
	}, nil
}

func (NopMessageStore) UpdateLastRead(context.Context, string, string) error { return nil }

// NopPresenceMirror is used when no redis is configured.
type NopPresenceMirror struct{}

func (NopPresenceMirror) UpdateUserStatus(context.Context, string, string) error { return nil }

func (NopPresenceMirror) UpdateTypingStatus(context.Context, string, string, bool) error {
	return nil
}
