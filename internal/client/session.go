package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fenggwsx/hirechat/internal/config"
	"github.com/fenggwsx/hirechat/internal/protocol"
)

const inboxCapacity = 64

// Session manages client-side socket interactions with the chat server.
type Session struct {
	cfg       config.ClientConfig
	conn      net.Conn
	encoder   *protocol.Encoder
	decoder   *protocol.Decoder
	messages  chan protocol.Envelope
	cancelFn  context.CancelFunc
	closeOnce sync.Once
}

// NewSession initializes a session with configuration.
func NewSession(cfg config.ClientConfig) *Session {
	return &Session{cfg: cfg, messages: make(chan protocol.Envelope, inboxCapacity)}
}

// Connect dials the server, presents the identity token and starts reading
// frames into Messages.
func (s *Session) Connect(ctx context.Context) error {
	if s.cfg.ServerAddr == "" {
		return errors.New("no server address configured")
	}
	if s.cfg.Token == "" {
		return errors.New("no identity token configured")
	}
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", s.cfg.ServerAddr)
	if err != nil {
		return err
	}
	s.conn = conn
	s.encoder = protocol.NewEncoder(conn)
	s.decoder = protocol.NewDecoder(conn, 0)

	handshake := protocol.Envelope{Type: protocol.MessageTypeHandshake, Token: s.cfg.Token}
	if err := s.Send(ctx, handshake); err != nil {
		_ = conn.Close()
		return err
	}

	readCtx, cancel := context.WithCancel(context.Background())
	s.cancelFn = cancel
	go s.readLoop(readCtx)
	return nil
}

// Messages yields inbound envelopes and is closed when the connection ends.
func (s *Session) Messages() <-chan protocol.Envelope {
	return s.messages
}

// ServerAddr reports the address the session dialed.
func (s *Session) ServerAddr() string {
	return s.cfg.ServerAddr
}

// Close terminates the session.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.cancelFn != nil {
			s.cancelFn()
		}
		if s.conn != nil {
			err = s.conn.Close()
		}
	})
	return err
}

// Send dispatches an envelope to the server.
func (s *Session) Send(ctx context.Context, env protocol.Envelope) error {
	if s.encoder == nil {
		return net.ErrClosed
	}
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	env.Timestamp = time.Now().UTC()
	return s.encoder.Encode(ctx, env)
}

func (s *Session) readLoop(ctx context.Context) {
	defer close(s.messages)
	for {
		env, err := s.decoder.Decode(ctx)
		if err != nil {
			return
		}
		select {
		case s.messages <- env:
		case <-ctx.Done():
			return
		}
	}
}
