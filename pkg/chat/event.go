package chat

import "encoding/json"

// Outbound event types carried on the client channel.
const (
	EventAuthenticated   = "authenticated"
	EventOnlineUsers     = "online_users"
	EventRoomJoined      = "room_joined"
	EventNewMessage      = "new_message"
	EventUserTyping      = "user_typing"
	EventUserJoined      = "user_joined"
	EventUserLeft        = "user_left"
	EventPresenceChanged = "presence_changed"
	EventMessageBlocked  = "message_blocked"
	EventError           = "error"
)

// Event is the wire envelope for one outbound frame.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}
