// Package presence keeps the process-local registry of live connections and
// the rooms each online participant has joined.
package presence

import (
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/fenggwsx/hirechat/internal/chat"
)

// Session is the online record of one live connection.
type Session struct {
	Handle      string
	Identity    chat.Identity
	DisplayName string
}

// Directory maps connection handles to sessions and identities to joined
// rooms. It is safe for concurrent use.
type Directory struct {
	mu       sync.RWMutex
	sessions map[string]Session
	rooms    map[string]map[string]struct{}
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		sessions: make(map[string]Session),
		rooms:    make(map[string]map[string]struct{}),
	}
}

// Register records a live connection. Re-registering a handle replaces it.
func (d *Directory) Register(handle string, identity chat.Identity, displayName string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.sessions[handle]; ok && prev.Identity != identity {
		delete(d.sessions, handle)
		d.dropRoomsIfOfflineLocked(prev.Identity)
	}
	d.sessions[handle] = Session{Handle: handle, Identity: identity, DisplayName: displayName}
	if _, ok := d.rooms[identity.Key()]; !ok {
		d.rooms[identity.Key()] = make(map[string]struct{})
	}
}

// Deregister removes the connection. The identity's joined rooms are
// forgotten once its last connection is gone.
func (d *Directory) Deregister(handle string) (Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	session, ok := d.sessions[handle]
	if !ok {
		return Session{}, false
	}
	delete(d.sessions, handle)
	d.dropRoomsIfOfflineLocked(session.Identity)
	return session, true
}

// Snapshot lists every live session ordered by identity key, then handle.
func (d *Directory) Snapshot() []Session {
	d.mu.RLock()
	sessions := lo.Values(d.sessions)
	d.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		ki, kj := sessions[i].Identity.Key(), sessions[j].Identity.Key()
		if ki != kj {
			return ki < kj
		}
		return sessions[i].Handle < sessions[j].Handle
	})
	return sessions
}

// JoinRoom adds roomID to the identity's joined set. Unknown identities are
// ignored: membership only exists while the participant is online.
func (d *Directory) JoinRoom(identity chat.Identity, roomID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	rooms, ok := d.rooms[identity.Key()]
	if !ok {
		return false
	}
	rooms[roomID] = struct{}{}
	return true
}

// Rooms returns the identity's joined rooms in sorted order.
func (d *Directory) Rooms(identity chat.Identity) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rooms := lo.Keys(d.rooms[identity.Key()])
	sort.Strings(rooms)
	return rooms
}

// IsOnline reports whether any connection is registered for identity.
func (d *Directory) IsOnline(identity chat.Identity) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.rooms[identity.Key()]
	return ok
}

// Len returns the number of live connections.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sessions)
}

// Reset drops every record; used at shutdown.
func (d *Directory) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions = make(map[string]Session)
	d.rooms = make(map[string]map[string]struct{})
}

func (d *Directory) dropRoomsIfOfflineLocked(identity chat.Identity) {
	for _, s := range d.sessions {
		if s.Identity == identity {
			return
		}
	}
	delete(d.rooms, identity.Key())
}
