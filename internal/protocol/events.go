package protocol

import (
	"time"

	"github.com/Shadowcake59/ChatVerse/pkg/chat"
)

// Error codes carried in outbound error frames.
const (
	CodeNotAuthenticated     = "not_authenticated"
	CodeAlreadyAuthenticated = "already_authenticated"
	CodeInvalidToken         = "invalid_token"
	CodeMalformedFrame       = "malformed_frame"
	CodeUnknownType          = "unknown_type"
	CodeMessageTooLong       = "message_too_long"
	CodeNotInRoom            = "not_in_room"
	CodeRateLimited          = "rate_limited"
	CodePersistenceFailed    = "persistence_failed"
)

type authenticatedPayload struct {
	UserID string `json:"userId"`
}

type onlineUsersPayload struct {
	Users []string `json:"users"`
}

type roomJoinedPayload struct {
	RoomID  string   `json:"roomId"`
	Members []string `json:"members"`
}

type newMessagePayload struct {
	ID        string    `json:"id,omitempty"`
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content,omitempty"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	Type      string    `json:"messageType"`
	CreatedAt time.Time `json:"createdAt"`
}

type userTypingPayload struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type roomMemberPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type messageBlockedPayload struct {
	Reason string `json:"reason"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UserTypingEvent is exported for the janitor, which emits typing-stopped
// events when stale flags expire.
func UserTypingEvent(roomID, userID string, isTyping bool) chat.Event {
	return chat.Event{
		Type:    chat.EventUserTyping,
		Payload: userTypingPayload{RoomID: roomID, UserID: userID, IsTyping: isTyping},
	}
}

func userJoinedEvent(roomID, userID string) chat.Event {
	return chat.Event{
		Type:    chat.EventUserJoined,
		Payload: roomMemberPayload{RoomID: roomID, UserID: userID},
	}
}

func userLeftEvent(roomID, userID string) chat.Event {
	return chat.Event{
		Type:    chat.EventUserLeft,
		Payload: roomMemberPayload{RoomID: roomID, UserID: userID},
	}
}
