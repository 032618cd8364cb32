package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/fenggwsx/hirechat/internal/chat"
	"github.com/fenggwsx/hirechat/internal/history"
	"github.com/fenggwsx/hirechat/internal/presence"
	"github.com/fenggwsx/hirechat/internal/protocol"
	"github.com/fenggwsx/hirechat/internal/storage"
)

const defaultSendBuffer = 64

// Manager owns the lifecycle of every live connection: presence
// registration, inbound dispatch and outbound fan-out.
type Manager struct {
	log        *slog.Logger
	store      storage.Store
	history    *history.Service
	directory  *presence.Directory
	hub        *Hub
	sendBuffer int

	// presenceMu orders presence mutations with the broadcast that follows,
	// so online-users frames never go back in time.
	presenceMu sync.Mutex

	closeMu  sync.Mutex
	closing  bool
	sessions sync.WaitGroup
}

// Option customizes a Manager.
type Option func(*Manager)

// WithSendBuffer sets the per-connection outbox capacity.
func WithSendBuffer(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.sendBuffer = n
		}
	}
}

// NewManager wires a manager to its store and presence directory.
func NewManager(log *slog.Logger, store storage.Store, directory *presence.Directory, opts ...Option) *Manager {
	m := &Manager{
		log:        log,
		store:      store,
		history:    history.NewService(store, log),
		directory:  directory,
		hub:        NewHub(log),
		sendBuffer: defaultSendBuffer,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Online returns the number of live connections.
func (m *Manager) Online() int {
	return m.directory.Len()
}

// IsOnline reports whether the participant has at least one live connection.
func (m *Manager) IsOnline(identity chat.Identity) bool {
	return m.directory.IsOnline(identity)
}

// Serve runs one connection until it disconnects or ctx ends. The handshake
// is trusted: the transport authenticated it. A clean disconnect returns nil.
func (m *Manager) Serve(ctx context.Context, conn Conn, hs protocol.Handshake) error {
	if !m.track() {
		return ErrShuttingDown
	}
	defer m.sessions.Done()

	identity, err := chat.NewIdentity(hs.ParticipantID, hs.ParticipantKind)
	if err != nil {
		return err
	}
	name := strings.TrimSpace(hs.DisplayName)
	if name == "" {
		name = identity.ID
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := newClientSession(conn, identity, name, m.sendBuffer)
	log := m.log.With("handle", s.handle, "participant", identity.Key(), "remote", conn.RemoteAddr())

	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		if err := s.writeLoop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("write loop stopped", "err", err)
		}
		cancel()
	}()

	m.connect(s)
	log.Info("participant connected", "name", name)
	defer func() {
		m.disconnect(s)
		writer.Wait()
		log.Info("participant disconnected")
	}()

	for {
		env, err := conn.Receive(ctx)
		if err != nil {
			if isDisconnect(err) || ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, chat.ErrValidation) {
				m.reportError(ctx, s, "", err, log)
				continue
			}
			log.Warn("receive failed", "err", err)
			return err
		}
		if err := m.handle(ctx, s, env); err != nil {
			m.reportError(ctx, s, env.ID, err, log)
		}
	}
}

// Shutdown refuses new sessions and waits until every running Serve call has
// returned. Sessions end when the context handed to Serve is canceled.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.closeMu.Lock()
	m.closing = true
	m.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		m.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for sessions: %w", ctx.Err())
	}
}

func (m *Manager) track() bool {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()
	if m.closing {
		return false
	}
	m.sessions.Add(1)
	return true
}

func (m *Manager) handle(ctx context.Context, s *clientSession, env protocol.Envelope) error {
	ev, err := protocol.DecodeEvent(env)
	if err != nil {
		return err
	}
	return m.dispatch(ctx, s, ev)
}

func (m *Manager) connect(s *clientSession) {
	m.presenceMu.Lock()
	defer m.presenceMu.Unlock()

	m.hub.Attach(s.handle, s.sendCh)
	m.directory.Register(s.handle, s.identity, s.displayName)
	if err := s.advance(SignalRegistered); err != nil {
		m.log.Error("connect transition", "handle", s.handle, "err", err)
	}
	m.broadcastPresenceLocked()
}

func (m *Manager) disconnect(s *clientSession) {
	m.presenceMu.Lock()
	defer m.presenceMu.Unlock()

	if err := s.advance(SignalDisconnected); err != nil {
		m.log.Error("disconnect transition", "handle", s.handle, "err", err)
		return
	}
	m.hub.Detach(s.handle)
	m.directory.Deregister(s.handle)
	close(s.sendCh)
	m.broadcastPresenceLocked()
}

func (m *Manager) broadcastPresenceLocked() {
	users := lo.Map(m.directory.Snapshot(), func(s presence.Session, _ int) protocol.OnlineUser {
		return protocol.OnlineUser{
			ParticipantID:   s.Identity.ID,
			ParticipantKind: string(s.Identity.Kind),
			DisplayName:     s.DisplayName,
		}
	})
	m.hub.BroadcastAll(newEnvelope(protocol.MessageTypeOnlineUsers, users))
}

// reportError answers the originating connection only.
func (m *Manager) reportError(ctx context.Context, s *clientSession, referenceID string, err error, log *slog.Logger) {
	message := "internal error"
	var (
		verr *chat.ValidationError
		perr *chat.PersistenceError
	)
	switch {
	case errors.As(err, &verr):
		message = verr.Error()
		log.Debug("rejected event", "ref", referenceID, "err", err)
	case errors.As(err, &perr):
		message = "failed to " + perr.Op
		log.Error("store operation failed", "ref", referenceID, "op", perr.Op, "err", perr.Err)
	default:
		log.Error("event failed", "ref", referenceID, "err", err)
	}
	env := newEnvelope(protocol.MessageTypeError, protocol.ErrorPayload{
		ReferenceID: referenceID,
		Message:     message,
	})
	if err := s.send(ctx, env); err != nil {
		log.Warn("send error frame", "err", err)
	}
}

func newEnvelope(kind protocol.MessageType, payload interface{}) protocol.Envelope {
	return protocol.Envelope{
		ID:        uuid.NewString(),
		Type:      kind,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) || errors.Is(err, ErrConnClosed)
}

var (
	// ErrConnClosed is returned by transports when the peer went away cleanly.
	ErrConnClosed = errors.New("connection closed")
	// ErrShuttingDown is returned by Serve once Shutdown has been called.
	ErrShuttingDown = errors.New("session manager shutting down")
)
