// Package presence holds the process-local source of truth for who is
// online right now and which rooms each user is subscribed to. It is
// non-durable by design: the registry is rebuilt from live connections
// after a restart, with the user store's status field as the durable
// fallback.
package presence

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/cuppid-coder/connect/internal/identity"
)

// Conn is the transport handle the registry needs: enough to address,
// push to, and force-close a live connection. *transport.Connection
// satisfies it.
type Conn interface {
	ID() uuid.UUID
	Send(msg []byte)
	Close(err error)
}

// ErrNotRegistered is returned when a room operation references a user
// with no live connection in this process.
var ErrNotRegistered = errors.New("presence: user has no registered connection")

type member struct {
	user   identity.User
	connID uuid.UUID
	conn   Conn
	rooms  map[RoomKey]struct{}
}

// Manager combines the presence registry and the room membership tracker.
// The two share member pointers, so a superseding connection is reflected
// in every room the user sits in without touching the room sets.
type Manager struct {
	mu      sync.RWMutex
	members map[string]*member
	rooms   map[RoomKey]map[string]*member

	logger *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		members: make(map[string]*member),
		rooms:   make(map[RoomKey]map[string]*member),
		logger:  logger.With(slog.String("component", "presence")),
	}
}

// Register records user as online on conn. A second login for the same
// user supersedes the first: the previous handle is returned so the
// caller can force-close it, and the previous room memberships are
// dropped (the new connection re-joins what it needs).
func (m *Manager) Register(user identity.User, conn Conn) (prev Conn, superseded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, exists := m.members[user.ID]
	if exists {
		m.dropFromRoomsLocked(old)
		prev, superseded = old.conn, true
	}
	m.members[user.ID] = &member{
		user:   user,
		connID: conn.ID(),
		conn:   conn,
		rooms:  make(map[RoomKey]struct{}),
	}
	m.logger.Debug("User registered", slog.String("userID", user.ID), slog.String("connID", conn.ID().String()), slog.Bool("superseded", superseded))
	return prev, superseded
}

// Deregister removes the entry for userID, but only if connID still owns
// it. A stale disconnect signal from a superseded connection is ignored
// and reported as false.
func (m *Manager) Deregister(userID string, connID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	mem, ok := m.members[userID]
	if !ok || mem.connID != connID {
		return false
	}
	delete(m.members, userID)
	m.logger.Debug("User deregistered", slog.String("userID", userID), slog.String("connID", connID.String()))
	return true
}

func (m *Manager) IsOnline(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.members[userID]
	return ok
}

// Lookup returns the live connection for userID, if any.
func (m *Manager) Lookup(userID string) (Conn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mem, ok := m.members[userID]
	if !ok {
		return nil, false
	}
	return mem.conn, true
}

// Snapshot returns the currently online identities. O(online count).
func (m *Manager) Snapshot() []identity.User {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]identity.User, 0, len(m.members))
	for _, mem := range m.members {
		users = append(users, mem.user)
	}
	return users
}

// AllConns returns every live connection, for toAll broadcasts and for
// shutdown.
func (m *Manager) AllConns() []Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := make([]Conn, 0, len(m.members))
	for _, mem := range m.members {
		conns = append(conns, mem.conn)
	}
	return conns
}

// Join adds userID to room, creating the room lazily. Joining twice is a
// no-op.
func (m *Manager) Join(room RoomKey, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mem, ok := m.members[userID]
	if !ok {
		return ErrNotRegistered
	}
	if _, joined := mem.rooms[room]; joined {
		return nil
	}

	set, ok := m.rooms[room]
	if !ok {
		set = make(map[string]*member)
		m.rooms[room] = set
	}
	set[userID] = mem
	mem.rooms[room] = struct{}{}

	m.logger.Debug("User joined room", slog.String("userID", userID), slog.String("room", string(room)))
	return nil
}

// Leave removes userID from room. Leaving a room the user never joined,
// or a room the tracker has no record of, is a no-op. A room left empty
// is deleted.
func (m *Manager) Leave(room RoomKey, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveLocked(room, userID)
}

// LeaveAll removes userID from every room it is a member of. Used at
// disconnect time; safe to call for users that joined nothing or were
// already cleaned up.
func (m *Manager) LeaveAll(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for room, set := range m.rooms {
		if _, ok := set[userID]; !ok {
			continue
		}
		delete(set, userID)
		if len(set) == 0 {
			delete(m.rooms, room)
		}
	}
	if mem, ok := m.members[userID]; ok {
		mem.rooms = make(map[RoomKey]struct{})
	}
}

// RoomMembers returns the identities currently in room. Membership is a
// set; no ordering is implied.
func (m *Manager) RoomMembers(room RoomKey) []identity.User {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set, ok := m.rooms[room]
	if !ok {
		return nil
	}
	users := make([]identity.User, 0, len(set))
	for _, mem := range set {
		users = append(users, mem.user)
	}
	return users
}

// RoomConns returns the connections joined to room, excluding exceptUserID
// when non-empty.
func (m *Manager) RoomConns(room RoomKey, exceptUserID string) []Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set, ok := m.rooms[room]
	if !ok {
		return nil
	}
	conns := make([]Conn, 0, len(set))
	for userID, mem := range set {
		if exceptUserID != "" && userID == exceptUserID {
			continue
		}
		conns = append(conns, mem.conn)
	}
	return conns
}

// InRoom reports whether userID is currently a member of room.
func (m *Manager) InRoom(room RoomKey, userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set, ok := m.rooms[room]
	if !ok {
		return false
	}
	_, ok = set[userID]
	return ok
}

func (m *Manager) leaveLocked(room RoomKey, userID string) {
	set, ok := m.rooms[room]
	if !ok {
		return
	}
	if _, ok := set[userID]; !ok {
		return
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(m.rooms, room)
	}
	if mem, ok := m.members[userID]; ok {
		delete(mem.rooms, room)
	}
	m.logger.Debug("User left room", slog.String("userID", userID), slog.String("room", string(room)))
}

func (m *Manager) dropFromRoomsLocked(mem *member) {
	for room := range mem.rooms {
		set, ok := m.rooms[room]
		if !ok {
			continue
		}
		delete(set, mem.user.ID)
		if len(set) == 0 {
			delete(m.rooms, room)
		}
	}
	mem.rooms = make(map[RoomKey]struct{})
}
