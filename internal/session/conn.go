package session

import (
	"context"

	"github.com/fenggwsx/hirechat/internal/protocol"
)

// Conn is one live, bidirectional client connection. Receive must return
// once ctx is canceled; transports that block on I/O close the underlying
// socket to achieve that.
type Conn interface {
	Receive(ctx context.Context) (protocol.Envelope, error)
	Send(ctx context.Context, env protocol.Envelope) error
	RemoteAddr() string
}
