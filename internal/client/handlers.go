package client

import (
	"github.com/fenggwsx/hirechat/internal/protocol"
)

func (a *App) handleEnvelope(env protocol.Envelope) {
	switch env.Type {
	case protocol.MessageTypeOnlineUsers:
		users, err := protocol.DecodePayload[[]protocol.OnlineUser](env.Payload)
		if err != nil {
			a.logErrorf("Failed to decode online users: %v", err)
			return
		}
		a.online = users
	case protocol.MessageTypeReceiveMessage:
		msg, err := protocol.DecodePayload[protocol.ChatMessage](env.Payload)
		if err != nil {
			a.logErrorf("Failed to decode message: %v", err)
			return
		}
		if msg.RoomID == a.currentRoom() {
			a.history = append(a.history, msg)
		} else {
			a.unseen[msg.RoomID]++
			a.logf("New message from %s", displayName(msg))
		}
	case protocol.MessageTypeMessageHistory:
		messages, err := protocol.DecodePayload[[]protocol.ChatMessage](env.Payload)
		if err != nil {
			a.logErrorf("Failed to decode history: %v", err)
			return
		}
		if len(messages) > 0 && messages[0].RoomID != a.currentRoom() {
			return
		}
		a.history = messages
		a.logf("Loaded %d messages", len(messages))
	case protocol.MessageTypeError:
		payload, err := protocol.DecodePayload[protocol.ErrorPayload](env.Payload)
		if err != nil {
			a.logErrorf("Server error")
			return
		}
		a.logErrorf("Server: %s", payload.Message)
	default:
		a.logErrorf("Received %s message", string(env.Type))
	}
	a.refresh()
}

func displayName(msg protocol.ChatMessage) string {
	if msg.SenderName != "" {
		return msg.SenderName
	}
	return msg.SenderID
}
