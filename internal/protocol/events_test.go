package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fenggwsx/hirechat/internal/chat"
)

func TestDecodeEvent(t *testing.T) {
	t.Run("join room", func(t *testing.T) {
		ev, err := DecodeEvent(Envelope{
			Type:    MessageTypeJoinRoom,
			Payload: map[string]interface{}{"receiverId": "h1", "receiverKind": "hr"},
		})
		require.NoError(t, err)
		join, ok := ev.(JoinRoom)
		require.True(t, ok)
		receiver, err := join.Receiver()
		require.NoError(t, err)
		require.Equal(t, chat.Identity{ID: "h1", Kind: chat.KindHR}, receiver)
	})

	t.Run("send message", func(t *testing.T) {
		ev, err := DecodeEvent(Envelope{
			Type: MessageTypeSendMessage,
			Payload: SendMessage{
				SenderID: "u1", SenderKind: "candidate", SenderName: "Uma",
				ReceiverID: "h1", ReceiverKind: "hr", Body: "hello",
			},
		})
		require.NoError(t, err)
		require.Equal(t, MessageTypeSendMessage, ev.Type())
		require.Equal(t, "hello", ev.(SendMessage).Body)
	})

	t.Run("get messages without self fields", func(t *testing.T) {
		ev, err := DecodeEvent(Envelope{
			Type:    MessageTypeGetMessages,
			Payload: map[string]interface{}{"otherId": "u1", "otherKind": "candidate"},
		})
		require.NoError(t, err)
		other, err := ev.(GetMessages).Other()
		require.NoError(t, err)
		require.Equal(t, chat.Identity{ID: "u1", Kind: chat.KindCandidate}, other)
	})
}

func TestDecodeEvent_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  Envelope
	}{
		{"missing type", Envelope{}},
		{"unknown type", Envelope{Type: "typing"}},
		{"server event from client", Envelope{Type: MessageTypeOnlineUsers, Payload: []OnlineUser{}}},
		{"no payload", Envelope{Type: MessageTypeJoinRoom}},
		{"bad kind", Envelope{Type: MessageTypeJoinRoom, Payload: JoinRoom{ReceiverID: "x", ReceiverKind: "admin"}}},
		{"missing receiver", Envelope{Type: MessageTypeSendMessage, Payload: SendMessage{ReceiverKind: "hr", Body: "hi"}}},
		{"blank body", Envelope{Type: MessageTypeSendMessage, Payload: SendMessage{ReceiverID: "h1", ReceiverKind: "hr", Body: "   "}}},
		{"wrong shape", Envelope{Type: MessageTypeGetMessages, Payload: "u1"}},
		{"bad self kind", Envelope{Type: MessageTypeGetMessages, Payload: GetMessages{SelfKind: "boss", OtherID: "u1", OtherKind: "candidate"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeEvent(tc.env)
			require.ErrorIs(t, err, chat.ErrValidation)
		})
	}
}

func TestEventIdentityHelpers_RejectBlankIDs(t *testing.T) {
	_, err := JoinRoom{ReceiverID: "  ", ReceiverKind: "hr"}.Receiver()
	require.ErrorIs(t, err, chat.ErrValidation)
}

func TestDecodeHandshake(t *testing.T) {
	hs, err := DecodeHandshake(map[string]interface{}{
		"participantId": "u1", "participantKind": "candidate", "displayName": "Uma",
	})
	require.NoError(t, err)
	require.Equal(t, "Uma", hs.DisplayName)

	_, err = DecodeHandshake(map[string]interface{}{"participantId": "u1"})
	require.ErrorIs(t, err, chat.ErrValidation)
}
