// Package broadcast fans events out to room members and to the whole
// registry. Delivery is fire-and-forget per connection: one dead client
// never blocks the others.
package broadcast

import (
	"log/slog"
	"sync"

	"github.com/Shadowcake59/ChatVerse/pkg/chat"
	"github.com/google/uuid"
)

// Broadcaster serializes all fan-outs behind one mutex, which gives every
// room FIFO delivery order. Sends are non-blocking buffer enqueues, so the
// critical section never waits on a slow client.
type Broadcaster struct {
	mu     sync.Mutex
	reg    chat.Registry
	logger *slog.Logger
}

func New(logger *slog.Logger, reg chat.Registry) *Broadcaster {
	return &Broadcaster{
		reg:    reg,
		logger: logger.With(slog.String("component", "broadcaster")),
	}
}

// ToRoom delivers event to every connection in the room except exclude
// (uuid.Nil excludes no one).
func (b *Broadcaster) ToRoom(roomID string, event chat.Event, exclude uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliver(b.reg.RoomMembers(roomID), event, exclude)
}

// ToAll delivers event to every registered connection, used for global
// presence changes.
func (b *Broadcaster) ToAll(event chat.Event, exclude uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliver(b.reg.Connections(), event, exclude)
}

func (b *Broadcaster) deliver(targets []*chat.Connection, event chat.Event, exclude uuid.UUID) {
	msg, err := event.Encode()
	if err != nil {
		b.logger.Error("Failed to encode event", slog.String("type", event.Type), slog.Any("error", err))
		return
	}

	for _, conn := range targets {
		if conn.ID == exclude {
			continue
		}
		if conn.Transport.Send(msg) {
			continue
		}
		// A refused send means the client is dead or hopelessly behind.
		// Close it asynchronously; the transport's close handler runs the
		// normal disconnect cleanup, including unregistration.
		b.logger.Warn("Dropping unresponsive connection",
			slog.String("connID", conn.ID.String()),
			slog.String("event", event.Type),
		)
		go conn.Transport.Close(chat.ErrSendBufferFull)
	}
}
