package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/fenggwsx/hirechat/internal/chat"
	"github.com/fenggwsx/hirechat/internal/protocol"
)

// clientSession tracks per-connection state and outbound delivery. Only the
// connection's reader goroutine mutates state.
type clientSession struct {
	handle      string
	identity    chat.Identity
	displayName string
	conn        Conn
	state       State
	sendCh      chan protocol.Envelope
}

func newClientSession(conn Conn, identity chat.Identity, displayName string, buffer int) *clientSession {
	return &clientSession{
		handle:      uuid.NewString(),
		identity:    identity,
		displayName: displayName,
		conn:        conn,
		state:       StateConnecting,
		sendCh:      make(chan protocol.Envelope, buffer),
	}
}

// send queues a unicast frame, waiting for room in the outbox.
func (s *clientSession) send(ctx context.Context, env protocol.Envelope) error {
	select {
	case s.sendCh <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// writeLoop drains the outbox until it is closed or ctx ends.
func (s *clientSession) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-s.sendCh:
			if !ok {
				return nil
			}
			if err := s.conn.Send(ctx, env); err != nil {
				return err
			}
		}
	}
}

func (s *clientSession) advance(sig Signal) error {
	next, err := Transition(s.state, sig)
	if err != nil {
		return err
	}
	s.state = next
	return nil
}
