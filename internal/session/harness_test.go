package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fenggwsx/hirechat/internal/config"
	"github.com/fenggwsx/hirechat/internal/presence"
	"github.com/fenggwsx/hirechat/internal/protocol"
	"github.com/fenggwsx/hirechat/internal/storage"
	"github.com/fenggwsx/hirechat/internal/storage/badger"
)

const waitFor = 2 * time.Second

type fakeConn struct {
	in     chan protocol.Envelope
	out    chan protocol.Envelope
	fail   chan error
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan protocol.Envelope, 16),
		out:    make(chan protocol.Envelope, 256),
		fail:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Receive(ctx context.Context) (protocol.Envelope, error) {
	select {
	case env := <-c.in:
		return env, nil
	case err := <-c.fail:
		return protocol.Envelope{}, err
	case <-c.closed:
		return protocol.Envelope{}, io.EOF
	case <-ctx.Done():
		return protocol.Envelope{}, ctx.Err()
	}
}

func (c *fakeConn) Send(ctx context.Context, env protocol.Envelope) error {
	select {
	case c.out <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeConn) RemoteAddr() string { return "pipe" }

func (c *fakeConn) hangup() {
	c.once.Do(func() { close(c.closed) })
}

type testClient struct {
	t    *testing.T
	conn *fakeConn
	done chan struct{}
	err  error
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBadgerStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := badger.NewStore(config.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestManager(t *testing.T, store storage.Store) *Manager {
	t.Helper()
	return NewManager(discardLogger(), store, presence.NewDirectory(), WithSendBuffer(32))
}

func connect(t *testing.T, m *Manager, id, kind, name string) *testClient {
	t.Helper()
	conn := newFakeConn()
	ctx, cancel := context.WithCancel(context.Background())
	c := &testClient{t: t, conn: conn, done: make(chan struct{})}
	go func() {
		defer close(c.done)
		c.err = m.Serve(ctx, conn, protocol.Handshake{ParticipantID: id, ParticipantKind: kind, DisplayName: name})
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-c.done:
		case <-time.After(waitFor):
		}
	})
	return c
}

func (c *testClient) emit(kind protocol.MessageType, payload interface{}) string {
	id := uuid.NewString()
	c.conn.in <- protocol.Envelope{ID: id, Type: kind, Timestamp: time.Now().UTC(), Payload: payload}
	return id
}

// next returns the next frame of the given type. Presence frames are skipped
// unless asked for.
func (c *testClient) next(kind protocol.MessageType) protocol.Envelope {
	c.t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case env := <-c.conn.out:
			if env.Type == kind {
				return env
			}
			if env.Type != protocol.MessageTypeOnlineUsers {
				c.t.Fatalf("expected %s, got %s", kind, env.Type)
			}
		case <-deadline:
			c.t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

// expectNone fails if a non-presence frame arrives within d.
func (c *testClient) expectNone(d time.Duration) {
	c.t.Helper()
	deadline := time.After(d)
	for {
		select {
		case env := <-c.conn.out:
			if env.Type != protocol.MessageTypeOnlineUsers {
				c.t.Fatalf("unexpected %s frame", env.Type)
			}
		case <-deadline:
			return
		}
	}
}

// expectOnline waits for a presence frame listing n participants.
func (c *testClient) expectOnline(n int) []protocol.OnlineUser {
	c.t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case env := <-c.conn.out:
			if env.Type != protocol.MessageTypeOnlineUsers {
				continue
			}
			users, err := protocol.DecodePayload[[]protocol.OnlineUser](env.Payload)
			require.NoError(c.t, err)
			if len(users) == n {
				return users
			}
		case <-deadline:
			c.t.Fatalf("timed out waiting for %d online", n)
		}
	}
}

// join subscribes and waits until the server processed it by round-tripping
// a history request on the same connection.
func (c *testClient) join(otherID, otherKind string) {
	c.t.Helper()
	c.emit(protocol.MessageTypeJoinRoom, protocol.JoinRoom{ReceiverID: otherID, ReceiverKind: otherKind})
	c.history(otherID, otherKind)
}

func (c *testClient) history(otherID, otherKind string) []protocol.ChatMessage {
	c.t.Helper()
	c.emit(protocol.MessageTypeGetMessages, protocol.GetMessages{OtherID: otherID, OtherKind: otherKind})
	env := c.next(protocol.MessageTypeMessageHistory)
	messages, err := protocol.DecodePayload[[]protocol.ChatMessage](env.Payload)
	require.NoError(c.t, err)
	return messages
}

func (c *testClient) say(toID, toKind, body string) string {
	return c.emit(protocol.MessageTypeSendMessage, protocol.SendMessage{ReceiverID: toID, ReceiverKind: toKind, Body: body})
}

func (c *testClient) leave() {
	c.t.Helper()
	c.conn.hangup()
	select {
	case <-c.done:
		require.NoError(c.t, c.err)
	case <-time.After(waitFor):
		c.t.Fatal("session did not stop")
	}
}

func decodeChat(t *testing.T, env protocol.Envelope) protocol.ChatMessage {
	t.Helper()
	msg, err := protocol.DecodePayload[protocol.ChatMessage](env.Payload)
	require.NoError(t, err)
	return msg
}

func decodeError(t *testing.T, env protocol.Envelope) protocol.ErrorPayload {
	t.Helper()
	payload, err := protocol.DecodePayload[protocol.ErrorPayload](env.Payload)
	require.NoError(t, err)
	return payload
}
