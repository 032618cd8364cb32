package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/fenggwsx/hirechat/internal/chat"
	"github.com/fenggwsx/hirechat/internal/protocol"
	"github.com/fenggwsx/hirechat/internal/storage"
)

// dispatch routes an event according to the connection's state.
func (m *Manager) dispatch(ctx context.Context, s *clientSession, ev protocol.Event) error {
	switch s.state {
	case StateOnline:
		return m.dispatchOnline(ctx, s, ev)
	default:
		return &chat.ValidationError{Field: "state", Reason: fmt.Sprintf("connection is %s", s.state)}
	}
}

func (m *Manager) dispatchOnline(ctx context.Context, s *clientSession, ev protocol.Event) error {
	switch e := ev.(type) {
	case protocol.JoinRoom:
		return m.handleJoinRoom(s, e)
	case protocol.SendMessage:
		return m.handleSendMessage(ctx, s, e)
	case protocol.GetMessages:
		return m.handleGetMessages(ctx, s, e)
	default:
		return &chat.ValidationError{Field: "type", Reason: fmt.Sprintf("unsupported event %s", ev.Type())}
	}
}

func (m *Manager) handleJoinRoom(s *clientSession, e protocol.JoinRoom) error {
	receiver, err := e.Receiver()
	if err != nil {
		return err
	}
	room := chat.RoomID(s.identity, receiver)
	if !m.hub.Subscribe(room, s.handle) || !m.directory.JoinRoom(s.identity, room) {
		return fmt.Errorf("join room %s: connection %s is not registered", room, s.handle)
	}
	m.log.Debug("joined room", "handle", s.handle, "participant", s.identity.Key(), "room", room)
	return nil
}

func (m *Manager) handleSendMessage(ctx context.Context, s *clientSession, e protocol.SendMessage) error {
	if err := checkSelf(s.identity, e.SenderID, e.SenderKind, "sender"); err != nil {
		return err
	}
	receiver, err := e.Receiver()
	if err != nil {
		return err
	}
	name := strings.TrimSpace(e.SenderName)
	if name == "" {
		name = s.displayName
	}

	msg := storage.Message{
		RoomID:     chat.RoomID(s.identity, receiver),
		Sender:     s.identity,
		SenderName: name,
		Receiver:   receiver,
		Body:       e.Body,
	}
	if err := m.store.AppendMessage(ctx, &msg); err != nil {
		return err
	}

	delivered := m.hub.Broadcast(msg.RoomID, newEnvelope(protocol.MessageTypeReceiveMessage, protocol.NewChatMessage(msg)))
	m.log.Info("chat message stored",
		"id", msg.ID, "room", msg.RoomID, "participant", s.identity.Key(),
		"len", len(msg.Body), "delivered", delivered)
	return nil
}

func (m *Manager) handleGetMessages(ctx context.Context, s *clientSession, e protocol.GetMessages) error {
	if err := checkSelf(s.identity, e.SelfID, e.SelfKind, "self"); err != nil {
		return err
	}
	other, err := e.Other()
	if err != nil {
		return err
	}

	messages, err := m.history.History(ctx, s.identity, other)
	if err != nil {
		return err
	}
	return s.send(ctx, newEnvelope(protocol.MessageTypeMessageHistory, protocol.NewChatMessages(messages)))
}

// checkSelf accepts empty identity fields; present ones must match the
// connection.
func checkSelf(self chat.Identity, id, kind, field string) error {
	id = strings.TrimSpace(id)
	if id != "" && id != self.ID {
		return &chat.ValidationError{Field: field + "Id", Reason: "does not match connection"}
	}
	if kind != "" && chat.Kind(kind) != self.Kind {
		return &chat.ValidationError{Field: field + "Kind", Reason: "does not match connection"}
	}
	return nil
}
