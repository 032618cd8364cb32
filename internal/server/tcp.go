package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/fenggwsx/hirechat/internal/chat"
	"github.com/fenggwsx/hirechat/internal/protocol"
	"github.com/fenggwsx/hirechat/internal/session"
)

// ServeTCP accepts framed connections on listener until ctx is canceled.
func (a *App) ServeTCP(ctx context.Context, listener net.Listener) error {
	a.mu.Lock()
	a.listener = listener
	a.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		_ = listener.Close()
	})
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go a.handleConnection(ctx, conn)
	}
}

func (a *App) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	tc := &tcpConn{
		conn:         conn,
		decoder:      protocol.NewDecoder(conn, a.cfg.MaxFrameBytes),
		encoder:      protocol.NewEncoder(conn),
		idleTimeout:  a.cfg.IdleTimeout,
		writeTimeout: a.cfg.WriteTimeout,
	}

	env, err := tc.Receive(ctx)
	if err != nil {
		if errors.Is(err, chat.ErrValidation) {
			a.log.Warn("handshake rejected", "remote", remote, "err", err)
			tc.reject(ctx, "", err)
			return
		}
		if !errors.Is(err, session.ErrConnClosed) && !errors.Is(err, io.EOF) {
			a.log.Warn("read handshake", "remote", remote, "err", err)
		}
		return
	}
	hs, err := a.tcpHandshake(env)
	if err != nil {
		a.log.Warn("handshake rejected", "remote", remote, "err", err)
		tc.reject(ctx, env.ID, err)
		return
	}

	if err := a.manager.Serve(ctx, tc, hs); err != nil {
		a.log.Warn("session ended", "remote", remote, "err", err)
	}
}

func (a *App) tcpHandshake(env protocol.Envelope) (protocol.Handshake, error) {
	if env.Type != protocol.MessageTypeHandshake {
		return protocol.Handshake{}, fmt.Errorf("%w: expected %s, got %s", errUnauthorized, protocol.MessageTypeHandshake, env.Type)
	}
	var requested protocol.Handshake
	if env.Payload != nil {
		hs, err := protocol.DecodeHandshake(env.Payload)
		if err != nil {
			return protocol.Handshake{}, err
		}
		requested = hs
	}
	return a.authenticate(env.Token, requested)
}

// tcpConn adapts a framed socket to session.Conn.
type tcpConn struct {
	conn         net.Conn
	decoder      *protocol.Decoder
	encoder      *protocol.Encoder
	idleTimeout  time.Duration
	writeTimeout time.Duration
}

// Receive reads the next frame. Canceling ctx expires the read deadline so
// a blocked read returns promptly.
func (c *tcpConn) Receive(ctx context.Context) (protocol.Envelope, error) {
	if c.idleTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout)); err != nil {
			return protocol.Envelope{}, err
		}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	env, err := c.decoder.Decode(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return protocol.Envelope{}, ctxErr
		}
		return protocol.Envelope{}, classify(err)
	}
	return env, nil
}

func (c *tcpConn) Send(ctx context.Context, env protocol.Envelope) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetWriteDeadline(time.Unix(1, 0))
	})
	defer stop()

	if err := c.encoder.Encode(ctx, env); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return classify(err)
	}
	return nil
}

func (c *tcpConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *tcpConn) reject(ctx context.Context, referenceID string, cause error) {
	message := "unauthorized"
	if errors.Is(cause, errForbidden) {
		message = "forbidden"
	} else if !errors.Is(cause, errUnauthorized) {
		message = cause.Error()
	}
	env := protocol.Envelope{
		ID:        uuid.NewString(),
		Type:      protocol.MessageTypeError,
		Timestamp: time.Now().UTC(),
		Payload:   protocol.ErrorPayload{ReferenceID: referenceID, Message: message},
	}
	_ = c.Send(ctx, env)
}

// classify maps clean hangups and idle expiry to session.ErrConnClosed.
func classify(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %v", session.ErrConnClosed, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: idle timeout", session.ErrConnClosed)
	}
	return err
}
