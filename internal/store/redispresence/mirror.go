// Package redispresence implements store.PresenceMirror on redis, so other
// services can read presence/typing state without touching the chat server.
package redispresence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Shadowcake59/ChatVerse/internal/store"
	"github.com/redis/go-redis/v9"
)

const (
	presenceKeyPrefix = "presence:"
	typingKeyPrefix   = "typing:"
	onlineSetKey      = "online_users"
)

type presenceRecord struct {
	UserID   string    `json:"userId"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"lastSeen"`
}

type Mirror struct {
	client *redis.Client
	ttl    time.Duration
}

var _ store.PresenceMirror = (*Mirror)(nil)

func New(addr, password string) (*Mirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Mirror{
		client: client,
		ttl:    120 * time.Second,
	}, nil
}

// SetTTL overrides the default expiry on presence and typing keys.
func (m *Mirror) SetTTL(ttl time.Duration) {
	m.ttl = ttl
}

func (m *Mirror) UpdateUserStatus(ctx context.Context, userID, status string) error {
	record := presenceRecord{
		UserID:   userID,
		Status:   status,
		LastSeen: time.Now(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal presence record: %w", err)
	}

	key := presenceKeyPrefix + userID

	// Use pipeline for atomic operations
	pipe := m.client.Pipeline()
	if status == "offline" {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, onlineSetKey, userID)
	} else {
		pipe.Set(ctx, key, data, m.ttl)
		pipe.SAdd(ctx, onlineSetKey, userID)
		pipe.Expire(ctx, onlineSetKey, m.ttl*2)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update presence: %w", err)
	}
	return nil
}

func (m *Mirror) UpdateTypingStatus(ctx context.Context, roomID, userID string, typing bool) error {
	key := typingKeyPrefix + roomID + ":" + userID
	var err error
	if typing {
		// Short TTL: a typing flag that is never cleared must expire on
		// its own.
		err = m.client.Set(ctx, key, "1", 30*time.Second).Err()
	} else {
		err = m.client.Del(ctx, key).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to update typing status: %w", err)
	}
	return nil
}

func (m *Mirror) Close() error {
	return m.client.Close()
}
