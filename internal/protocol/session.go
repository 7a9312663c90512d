// Package protocol implements the per-connection session state machine: it
// validates inbound frames against the connection's state and dispatches
// them to the registry, broadcaster, presence tracker and stores.
package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Shadowcake59/ChatVerse/internal/broadcast"
	"github.com/Shadowcake59/ChatVerse/internal/identity"
	"github.com/Shadowcake59/ChatVerse/internal/presence"
	"github.com/Shadowcake59/ChatVerse/internal/store"
	"github.com/Shadowcake59/ChatVerse/pkg/chat"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

const mirrorTimeout = 5 * time.Second

type State int

const (
	StateConnected State = iota
	StateAuthenticated
	StateInRoom
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateInRoom:
		return "in_room"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Deps bundles the collaborators a session dispatches to.
type Deps struct {
	Logger      *slog.Logger
	Registry    chat.Registry
	Broadcaster *broadcast.Broadcaster
	Presence    *presence.Tracker
	Messages    store.MessageStore
	Mirror      store.PresenceMirror
	Resolver    identity.Resolver
	Filter      chat.Filter

	MaxMessageLength int
	RateLimitBurst   int
	RateLimitRefill  time.Duration
}

// Session is the state machine for one connection. Frames arrive one at a
// time from the read pump; HandleClose may race a frame, so session state
// sits behind a mutex.
type Session struct {
	deps      Deps
	transport chat.Transport
	connID    uuid.UUID
	limiter   *tokenBucket
	logger    *slog.Logger

	mu     sync.Mutex
	state  State
	userID string
	roomID string
}

func NewSession(deps Deps, transport chat.Transport) *Session {
	if deps.MaxMessageLength <= 0 {
		deps.MaxMessageLength = 2000
	}
	return &Session{
		deps:      deps,
		transport: transport,
		connID:    transport.ID(),
		limiter:   newTokenBucket(deps.RateLimitBurst, deps.RateLimitRefill),
		logger: deps.Logger.With(
			slog.String("component", "session"),
			slog.String("connID", transport.ID().String()),
		),
	}
}

// State reports the session's current protocol state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HandleFrame is the transport's message handler. Each frame is handled
// independently: a bad frame gets an error reply and leaves the session
// state untouched.
func (s *Session) HandleFrame(ctx context.Context, connID uuid.UUID, msg []byte) {
	s.mu.Lock()
	closed := s.state == StateClosed
	s.mu.Unlock()
	if closed {
		return
	}

	if !s.limiter.allow() {
		s.sendError(CodeRateLimited, "too many frames, slow down")
		return
	}

	// Peek the type before committing to a full decode.
	frameType := gjson.GetBytes(msg, "type")
	if !frameType.Exists() || frameType.Type != gjson.String {
		s.sendError(CodeMalformedFrame, "frame is missing a string 'type' field")
		return
	}

	var frame Frame
	if err := json.Unmarshal(msg, &frame); err != nil {
		s.sendError(CodeMalformedFrame, "frame is not valid JSON")
		return
	}

	switch frame.Type {
	case FrameAuthenticate:
		s.handleAuthenticate(ctx, frame)
	case FrameJoinRoom:
		s.handleJoinRoom(ctx, frame)
	case FrameSendMessage:
		s.handleSendMessage(ctx, frame)
	case FrameTypingStart:
		s.handleTyping(ctx, true)
	case FrameTypingStop:
		s.handleTyping(ctx, false)
	default:
		s.sendError(CodeUnknownType, "unknown frame type: "+frame.Type)
	}
}

// HandleClose is the transport's close handler; it runs the full disconnect
// cleanup and is safe to call more than once.
func (s *Session) HandleClose(connID uuid.UUID, err error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.mu.Unlock()

	dep, ok := s.deps.Registry.Unregister(connID)
	if !ok {
		return
	}

	if dep.RoomID != "" {
		if dep.WasTyping {
			s.deps.Broadcaster.ToRoom(dep.RoomID, UserTypingEvent(dep.RoomID, dep.UserID, false), uuid.Nil)
			s.mirrorTyping(dep.RoomID, dep.UserID, false)
		}
		s.deps.Broadcaster.ToRoom(dep.RoomID, userLeftEvent(dep.RoomID, dep.UserID), uuid.Nil)
	}
	if dep.WentOffline {
		s.deps.Presence.UserOffline(context.Background(), dep.UserID)
	}

	s.logger.Info("Session closed",
		slog.String("userID", dep.UserID),
		slog.Any("reason", err),
	)
}

// --- Frame handlers ---

func (s *Session) handleAuthenticate(ctx context.Context, frame Frame) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state != StateConnected {
		s.sendError(CodeAlreadyAuthenticated, "connection is already authenticated")
		return
	}

	var payload authenticatePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		s.sendError(CodeMalformedFrame, "authenticate payload is not valid JSON")
		return
	}

	userID, err := s.deps.Resolver.Resolve(ctx, payload.Token)
	if err != nil {
		s.logger.Warn("Token resolution failed", slog.Any("error", err))
		s.sendError(CodeInvalidToken, "could not resolve identity from token")
		return
	}

	wentOnline, err := s.deps.Registry.Authenticate(s.connID, userID)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			// connection vanished mid-frame; nothing to do
			return
		}
		s.sendError(CodeAlreadyAuthenticated, "connection is already authenticated")
		return
	}

	s.mu.Lock()
	s.state = StateAuthenticated
	s.userID = userID
	s.mu.Unlock()

	s.sendEvent(chat.Event{Type: chat.EventAuthenticated, Payload: authenticatedPayload{UserID: userID}})
	s.sendEvent(chat.Event{Type: chat.EventOnlineUsers, Payload: onlineUsersPayload{Users: s.deps.Registry.OnlineUsers()}})

	if wentOnline {
		s.deps.Presence.UserOnline(ctx, userID)
	}

	s.logger.Info("Session authenticated", slog.String("userID", userID))
}

func (s *Session) handleJoinRoom(ctx context.Context, frame Frame) {
	s.mu.Lock()
	state, userID := s.state, s.userID
	s.mu.Unlock()

	if state == StateConnected {
		s.sendError(CodeNotAuthenticated, "authenticate before joining a room")
		return
	}

	var payload joinRoomPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil || payload.RoomID == "" {
		s.sendError(CodeMalformedFrame, "join_room requires a 'roomId' field")
		return
	}

	prevRoomID, prevTyping, err := s.deps.Registry.JoinRoom(s.connID, payload.RoomID)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			return
		}
		s.sendError(CodeNotAuthenticated, "authenticate before joining a room")
		return
	}

	s.mu.Lock()
	s.state = StateInRoom
	s.roomID = payload.RoomID
	s.mu.Unlock()

	switched := prevRoomID != "" && prevRoomID != payload.RoomID
	if switched {
		if prevTyping {
			s.deps.Broadcaster.ToRoom(prevRoomID, UserTypingEvent(prevRoomID, userID, false), uuid.Nil)
			s.mirrorTyping(prevRoomID, userID, false)
		}
		s.deps.Broadcaster.ToRoom(prevRoomID, userLeftEvent(prevRoomID, userID), uuid.Nil)
		s.updateLastRead(prevRoomID, userID)
	}
	if prevRoomID != payload.RoomID {
		s.deps.Broadcaster.ToRoom(payload.RoomID, userJoinedEvent(payload.RoomID, userID), s.connID)
	}

	s.sendEvent(chat.Event{Type: chat.EventRoomJoined, Payload: roomJoinedPayload{
		RoomID:  payload.RoomID,
		Members: s.deps.Registry.RoomMemberUsers(payload.RoomID),
	}})

	s.logger.Info("Session joined room",
		slog.String("userID", userID),
		slog.String("roomID", payload.RoomID),
		slog.String("prevRoomID", prevRoomID),
	)
}

func (s *Session) handleSendMessage(ctx context.Context, frame Frame) {
	s.mu.Lock()
	state, userID, roomID := s.state, s.userID, s.roomID
	s.mu.Unlock()

	switch state {
	case StateConnected:
		s.sendError(CodeNotAuthenticated, "authenticate before sending messages")
		return
	case StateAuthenticated:
		s.sendError(CodeNotInRoom, "join a room before sending messages")
		return
	}

	var payload sendMessagePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		s.sendError(CodeMalformedFrame, "send_message payload is not valid JSON")
		return
	}

	// Nothing to send: not an error, just drop it.
	if payload.Content == "" && payload.ImageURL == "" {
		return
	}

	// Clients enforce the limit before sending; re-check defensively.
	if utf8.RuneCountInString(payload.Content) > s.deps.MaxMessageLength {
		s.sendError(CodeMessageTooLong, "message exceeds maximum length")
		return
	}

	if payload.Content != "" && !s.deps.Filter.Allowed(payload.Content) {
		s.sendEvent(chat.Event{
			Type:    chat.EventMessageBlocked,
			Payload: messageBlockedPayload{Reason: "message contains blocked content"},
		})
		return
	}

	msgType := "text"
	if payload.ImageURL != "" {
		msgType = "image"
	}

	stored, err := s.deps.Messages.PersistMessage(ctx, store.NewMessage{
		RoomID:   roomID,
		UserID:   userID,
		Content:  payload.Content,
		ImageURL: payload.ImageURL,
		Type:     msgType,
	})
	if err != nil {
		s.logger.Error("Failed to persist message", slog.Any("error", err))
		s.sendError(CodePersistenceFailed, "message could not be saved")
		return
	}

	s.deps.Broadcaster.ToRoom(roomID, chat.Event{Type: chat.EventNewMessage, Payload: newMessagePayload{
		ID:        stored.ID,
		RoomID:    roomID,
		UserID:    userID,
		Content:   stored.Content,
		ImageURL:  stored.ImageURL,
		Type:      stored.Type,
		CreatedAt: stored.CreatedAt,
	}}, s.connID)
}

func (s *Session) handleTyping(ctx context.Context, typing bool) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	switch state {
	case StateConnected:
		s.sendError(CodeNotAuthenticated, "authenticate before sending typing signals")
		return
	case StateAuthenticated:
		s.sendError(CodeNotInRoom, "join a room before sending typing signals")
		return
	}

	roomID, userID, changed := s.deps.Registry.SetTyping(s.connID, typing)
	if !changed {
		return
	}

	s.deps.Broadcaster.ToRoom(roomID, UserTypingEvent(roomID, userID, typing), s.connID)
	s.mirrorTyping(roomID, userID, typing)
}

// --- Reply and side-effect helpers ---

func (s *Session) sendEvent(event chat.Event) {
	msg, err := event.Encode()
	if err != nil {
		s.logger.Error("Failed to encode event", slog.String("type", event.Type), slog.Any("error", err))
		return
	}
	if !s.transport.Send(msg) {
		s.logger.Warn("Reply dropped, connection is dead", slog.String("type", event.Type))
	}
}

func (s *Session) sendError(code, message string) {
	s.sendEvent(chat.Event{Type: chat.EventError, Payload: errorPayload{Code: code, Message: message}})
}

// updateLastRead is best-effort; a store failure is logged, not surfaced.
func (s *Session) updateLastRead(roomID, userID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := s.deps.Messages.UpdateLastRead(ctx, roomID, userID); err != nil {
			s.logger.Warn("Last-read update failed",
				slog.String("roomID", roomID),
				slog.Any("error", err),
			)
		}
	}()
}

func (s *Session) mirrorTyping(roomID, userID string, typing bool) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := s.deps.Mirror.UpdateTypingStatus(ctx, roomID, userID, typing); err != nil {
			s.logger.Warn("Typing mirror write failed",
				slog.String("roomID", roomID),
				slog.Any("error", err),
			)
		}
	}()
}
