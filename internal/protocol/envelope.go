package protocol

import (
	"time"

	"github.com/fenggwsx/hirechat/internal/storage"
)

// MessageType enumerates live-channel event kinds.
type MessageType string

const (
	// Client to server.
	MessageTypeHandshake   MessageType = "handshake"
	MessageTypeJoinRoom    MessageType = "join-room"
	MessageTypeSendMessage MessageType = "send-message"
	MessageTypeGetMessages MessageType = "get-messages"

	// Server to client.
	MessageTypeOnlineUsers    MessageType = "online-users"
	MessageTypeReceiveMessage MessageType = "receive-message"
	MessageTypeMessageHistory MessageType = "message-history"
	MessageTypeError          MessageType = "error"
)

// Envelope wraps every payload sent over the wire.
type Envelope struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Token     string      `json:"token,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Handshake carries the connecting participant's identity metadata.
type Handshake struct {
	ParticipantID   string `json:"participantId" validate:"required,max=128"`
	ParticipantKind string `json:"participantKind" validate:"required,oneof=candidate hr"`
	DisplayName     string `json:"displayName" validate:"max=128"`
}

// OnlineUser is one entry of the online-users broadcast.
type OnlineUser struct {
	ParticipantID   string `json:"participantId"`
	ParticipantKind string `json:"participantKind"`
	DisplayName     string `json:"displayName"`
}

// ChatMessage is the wire form of a persisted message.
type ChatMessage struct {
	ID           string    `json:"id"`
	RoomID       string    `json:"roomId"`
	SenderID     string    `json:"senderId"`
	SenderKind   string    `json:"senderKind"`
	SenderName   string    `json:"senderName"`
	ReceiverID   string    `json:"receiverId"`
	ReceiverKind string    `json:"receiverKind"`
	Body         string    `json:"body"`
	Timestamp    time.Time `json:"timestamp"`
	Read         bool      `json:"read"`
}

// ErrorPayload reports a failed request to the originating connection.
type ErrorPayload struct {
	ReferenceID string `json:"referenceId,omitempty"`
	Message     string `json:"message"`
}

// NewChatMessage converts a stored message to its wire form.
func NewChatMessage(msg storage.Message) ChatMessage {
	return ChatMessage{
		ID:           msg.ID,
		RoomID:       msg.RoomID,
		SenderID:     msg.Sender.ID,
		SenderKind:   string(msg.Sender.Kind),
		SenderName:   msg.SenderName,
		ReceiverID:   msg.Receiver.ID,
		ReceiverKind: string(msg.Receiver.Kind),
		Body:         msg.Body,
		Timestamp:    msg.CreatedAt,
		Read:         msg.Read,
	}
}

// NewChatMessages converts stored messages, never returning nil.
func NewChatMessages(messages []storage.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages))
	for _, msg := range messages {
		out = append(out, NewChatMessage(msg))
	}
	return out
}
