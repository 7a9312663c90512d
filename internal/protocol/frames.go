package protocol

import "encoding/json"

// Inbound frame types accepted on the client channel.
const (
	FrameAuthenticate = "authenticate"
	FrameJoinRoom     = "join_room"
	FrameSendMessage  = "send_message"
	FrameTypingStart  = "typing_start"
	FrameTypingStop   = "typing_stop"
)

// Frame is the wire envelope for one inbound message.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type authenticatePayload struct {
	Token string `json:"token"`
}

type joinRoomPayload struct {
	RoomID string `json:"roomId"`
}

type sendMessagePayload struct {
	Content  string `json:"content"`
	ImageURL string `json:"imageUrl"`
}
