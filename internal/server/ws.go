package server

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/fenggwsx/hirechat/internal/auth"
	"github.com/fenggwsx/hirechat/internal/protocol"
	"github.com/fenggwsx/hirechat/internal/session"
)

const localsHandshake = "handshake"

// upgradeWebSocket authenticates the upgrade request before the socket is
// handed to the session manager.
func (a *App) upgradeWebSocket(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	token := c.Query("token")
	if token == "" {
		token, _ = auth.BearerToken(c.Get(fiber.HeaderAuthorization))
	}
	hs, err := a.authenticate(token, protocol.Handshake{
		ParticipantID:   c.Query("participantId"),
		ParticipantKind: c.Query("participantKind"),
		DisplayName:     c.Query("displayName"),
	})
	if err != nil {
		return authError(err)
	}
	c.Locals(localsHandshake, hs)
	return c.Next()
}

func (a *App) serveWebSocket(c *websocket.Conn) {
	hs, ok := c.Locals(localsHandshake).(protocol.Handshake)
	if !ok {
		_ = c.Close()
		return
	}
	conn := &wsConn{conn: c, idleTimeout: a.cfg.IdleTimeout, writeTimeout: a.cfg.WriteTimeout}
	if err := a.manager.Serve(a.connContext(), conn, hs); err != nil {
		a.log.Warn("websocket session ended", "remote", conn.RemoteAddr(), "err", err)
	}
}

// wsConn adapts a WebSocket carrying one JSON envelope per message.
type wsConn struct {
	conn         *websocket.Conn
	idleTimeout  time.Duration
	writeTimeout time.Duration
}

func (c *wsConn) Receive(ctx context.Context) (protocol.Envelope, error) {
	if c.idleTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout)); err != nil {
			return protocol.Envelope{}, err
		}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return protocol.Envelope{}, ctxErr
		}
		if websocket.IsCloseError(err,
			websocket.CloseNormalClosure,
			websocket.CloseGoingAway,
			websocket.CloseNoStatusReceived,
			websocket.CloseAbnormalClosure,
		) {
			return protocol.Envelope{}, fmt.Errorf("%w: %v", session.ErrConnClosed, err)
		}
		return protocol.Envelope{}, classify(err)
	}
	return protocol.UnmarshalEnvelope(data)
}

func (c *wsConn) Send(ctx context.Context, env protocol.Envelope) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.conn.WriteJSON(env)
}

func (c *wsConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
