package server

import (
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fenggwsx/hirechat/internal/chat"
	"github.com/fenggwsx/hirechat/internal/protocol"
)

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func startHTTP(t *testing.T, f *fixture) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- f.app.HTTP().Listener(listener) }()
	t.Cleanup(func() {
		_ = f.app.HTTP().ShutdownWithTimeout(2 * time.Second)
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	})
	return listener.Addr().String()
}

func dialWS(t *testing.T, f *fixture, addr string, identity chat.Identity, name string) *wsClient {
	t.Helper()
	target := url.URL{
		Scheme:   "ws",
		Host:     addr,
		Path:     "/ws",
		RawQuery: url.Values{"token": {f.token(t, identity, name)}}.Encode(),
	}
	conn, _, err := websocket.DefaultDialer.Dial(target.String(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(kind protocol.MessageType, payload interface{}) string {
	c.t.Helper()
	id := uuid.NewString()
	env := protocol.Envelope{ID: id, Type: kind, Timestamp: time.Now().UTC(), Payload: payload}
	require.NoError(c.t, c.conn.WriteJSON(env))
	return id
}

// next skips presence frames unless they are asked for.
func (c *wsClient) next(kind protocol.MessageType) protocol.Envelope {
	c.t.Helper()
	for {
		require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var env protocol.Envelope
		require.NoError(c.t, c.conn.ReadJSON(&env))
		if env.Type == kind {
			return env
		}
		require.Equal(c.t, protocol.MessageTypeOnlineUsers, env.Type, "unexpected frame")
	}
}

func (c *wsClient) expectOnline(n int) {
	c.t.Helper()
	for {
		env := c.next(protocol.MessageTypeOnlineUsers)
		users, err := protocol.DecodePayload[[]protocol.OnlineUser](env.Payload)
		require.NoError(c.t, err)
		if len(users) == n {
			return
		}
	}
}

func TestWebSocket_LiveConversation(t *testing.T) {
	f := newFixture(t)
	addr := startHTTP(t, f)

	candidate := dialWS(t, f, addr, u1, "Alice")
	candidate.expectOnline(1)
	hr := dialWS(t, f, addr, h1, "Harriet")
	hr.expectOnline(2)

	hr.send(protocol.MessageTypeJoinRoom, protocol.JoinRoom{ReceiverID: "u1", ReceiverKind: "candidate"})
	hr.send(protocol.MessageTypeGetMessages, protocol.GetMessages{OtherID: "u1", OtherKind: "candidate"})
	hr.next(protocol.MessageTypeMessageHistory)

	candidate.send(protocol.MessageTypeSendMessage, protocol.SendMessage{ReceiverID: "h1", ReceiverKind: "hr", Body: "hello over websocket"})

	env := hr.next(protocol.MessageTypeReceiveMessage)
	msg, err := protocol.DecodePayload[protocol.ChatMessage](env.Payload)
	require.NoError(t, err)
	require.Equal(t, "hello over websocket", msg.Body)
	require.Equal(t, "Alice", msg.SenderName)
	require.Equal(t, "h1_hr_u1_candidate", msg.RoomID)
	require.False(t, msg.Read)

	closing := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	require.NoError(t, candidate.conn.WriteMessage(websocket.CloseMessage, closing))
	hr.expectOnline(1)
	require.Eventually(t, func() bool { return f.app.manager.Online() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_MalformedMessageKeepsSession(t *testing.T) {
	f := newFixture(t)
	addr := startHTTP(t, f)

	c := dialWS(t, f, addr, u1, "")
	c.expectOnline(1)

	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	payload, err := protocol.DecodePayload[protocol.ErrorPayload](c.next(protocol.MessageTypeError).Payload)
	require.NoError(t, err)
	require.Equal(t, "invalid frame: malformed envelope", payload.Message)

	c.send(protocol.MessageTypeGetMessages, protocol.GetMessages{OtherID: "h1", OtherKind: "hr"})
	c.next(protocol.MessageTypeMessageHistory)
	require.Equal(t, 1, f.app.manager.Online())
}
