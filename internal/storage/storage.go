//go:generate go run go.uber.org/mock/mockgen -source=storage.go -destination=../mocks/mock_store.go -package=mocks
package storage

import (
	"context"
	"time"

	"github.com/fenggwsx/hirechat/internal/chat"
)

// Message represents a persisted chat message between two participants.
type Message struct {
	ID         string
	RoomID     string
	Sender     chat.Identity
	SenderName string
	Receiver   chat.Identity
	Body       string
	CreatedAt  time.Time
	Read       bool
}

// Store defines persistence operations used by the messaging core.
// Failing operations return a *chat.PersistenceError.
type Store interface {
	Close() error
	Migrate(ctx context.Context) error

	// AppendMessage assigns ID, CreatedAt (when zero) and Read=false, then
	// writes the message.
	AppendMessage(ctx context.Context, msg *Message) error
	// HistoryForRoom returns every message of the room, oldest first.
	HistoryForRoom(ctx context.Context, roomID string) ([]Message, error)
	// MarkRead flips unread messages of the room addressed to receiver and
	// reports how many changed.
	MarkRead(ctx context.Context, roomID string, receiver chat.Identity) (int64, error)
	CountUnread(ctx context.Context, receiver chat.Identity) (int64, error)
	DistinctRoomsFor(ctx context.Context, participant chat.Identity) ([]string, error)
}

// Prepare fills the server-assigned fields of msg before it is written.
func Prepare(msg *Message, now time.Time, newID func() string) {
	if msg.ID == "" {
		msg.ID = newID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	msg.Read = false
}
