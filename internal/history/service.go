// Package history is the request/response read side of the messaging core.
package history

import (
	"context"
	"log/slog"

	"github.com/fenggwsx/hirechat/internal/chat"
	"github.com/fenggwsx/hirechat/internal/storage"
)

// Service answers conversation, unread and history queries from the
// Message Store. It keeps no state of its own.
type Service struct {
	store storage.Store
	log   *slog.Logger
}

// NewService wires the service to store.
func NewService(store storage.Store, log *slog.Logger) *Service {
	return &Service{store: store, log: log}
}

// Conversations lists the rooms participant has sent or received messages in.
func (s *Service) Conversations(ctx context.Context, participant chat.Identity) ([]string, error) {
	return s.store.DistinctRoomsFor(ctx, participant)
}

// UnreadCount counts messages addressed to participant that are still unread.
func (s *Service) UnreadCount(ctx context.Context, participant chat.Identity) (int64, error) {
	return s.store.CountUnread(ctx, participant)
}

// History returns the room between self and other, oldest first, then marks
// the messages addressed to self as read. The returned slice reflects the
// state before marking.
func (s *Service) History(ctx context.Context, self, other chat.Identity) ([]storage.Message, error) {
	room := chat.RoomID(self, other)
	messages, err := s.store.HistoryForRoom(ctx, room)
	if err != nil {
		return nil, err
	}
	changed, err := s.store.MarkRead(ctx, room, self)
	if err != nil {
		// The history was fetched; read state catches up on the next query.
		s.log.Warn("mark read failed", "room", room, "participant", self.Key(), "err", err)
		return messages, nil
	}
	if changed > 0 {
		s.log.Debug("messages marked read", "room", room, "participant", self.Key(), "count", changed)
	}
	return messages, nil
}
