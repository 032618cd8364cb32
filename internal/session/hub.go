package session

import (
	"log/slog"
	"sync"

	"github.com/fenggwsx/hirechat/internal/protocol"
)

// Hub tracks connection outboxes and room subscriptions and dispatches
// envelopes to them. Subscriptions belong to a connection, not an identity.
type Hub struct {
	mu            sync.RWMutex
	members       map[string]chan protocol.Envelope
	rooms         map[string]map[string]chan protocol.Envelope
	subscriptions map[string]map[string]struct{}
	log           *slog.Logger
}

// NewHub initializes an empty hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		members:       make(map[string]chan protocol.Envelope),
		rooms:         make(map[string]map[string]chan protocol.Envelope),
		subscriptions: make(map[string]map[string]struct{}),
		log:           log,
	}
}

// Attach registers a connection's outbox for broadcasts.
func (h *Hub) Attach(handle string, ch chan protocol.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.members[handle] = ch
	if _, ok := h.subscriptions[handle]; !ok {
		h.subscriptions[handle] = make(map[string]struct{})
	}
}

// Detach removes the connection and all of its room subscriptions. Once it
// returns no further envelope is pushed to the connection's outbox.
func (h *Hub) Detach(handle string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for room := range h.subscriptions[handle] {
		if subscribers, ok := h.rooms[room]; ok {
			delete(subscribers, handle)
			if len(subscribers) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	delete(h.subscriptions, handle)
	delete(h.members, handle)
}

// Subscribe adds an attached connection to the room's fan-out group.
func (h *Hub) Subscribe(room string, handle string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.members[handle]
	if !ok {
		return false
	}
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[string]chan protocol.Envelope)
	}
	h.rooms[room][handle] = ch
	h.subscriptions[handle][room] = struct{}{}
	return true
}

// Broadcast pushes the envelope to every subscriber of room and reports how
// many outboxes accepted it.
func (h *Hub) Broadcast(room string, env protocol.Envelope) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.deliver(h.rooms[room], env)
}

// BroadcastAll pushes the envelope to every attached connection.
func (h *Hub) BroadcastAll(env protocol.Envelope) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.deliver(h.members, env)
}

// RoomSize returns the number of connections subscribed to room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Len returns the number of attached connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}

func (h *Hub) deliver(targets map[string]chan protocol.Envelope, env protocol.Envelope) int {
	delivered := 0
	for handle, ch := range targets {
		select {
		case ch <- env:
			delivered++
		default:
			h.log.Warn("outbox full, dropping frame", "handle", handle, "type", env.Type)
		}
	}
	return delivered
}
