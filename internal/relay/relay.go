// Package relay is the fan-out fabric: it delivers a named event and
// payload to one user, to a room, or to every connected client. Delivery
// is fire-and-forget, at-most-once, to whoever is connected at that
// instant.
package relay

import (
	"log/slog"

	"github.com/cuppid-coder/connect/internal/events"
	"github.com/cuppid-coder/connect/internal/presence"
)

type Relay struct {
	presence *presence.Manager
	logger   *slog.Logger
}

func New(logger *slog.Logger, manager *presence.Manager) *Relay {
	return &Relay{
		presence: manager,
		logger:   logger.With(slog.String("component", "relay")),
	}
}

// ToUser delivers to userID's live connection. An offline target is a
// silent drop, never an error: durable delivery is the notification
// subsystem's job.
func (r *Relay) ToUser(userID string, event events.ServerEvent, payload any) {
	conn, ok := r.presence.Lookup(userID)
	if !ok {
		r.logger.Debug("Target user offline, dropping event", slog.String("userID", userID), slog.String("event", string(event)))
		return
	}
	msg, err := events.Encode(event, payload)
	if err != nil {
		r.logger.Error("Failed to encode event", slog.String("event", string(event)), slog.Any("error", err))
		return
	}
	conn.Send(msg)
}

// ToRoom delivers to every member of room, including the sender.
func (r *Relay) ToRoom(room presence.RoomKey, event events.ServerEvent, payload any) {
	r.fanOut(r.presence.RoomConns(room, ""), room, event, payload)
}

// ToRoomExcept delivers to every member of room except exceptUserID.
// Used for typing indicators, which must not echo back to the sender.
func (r *Relay) ToRoomExcept(room presence.RoomKey, exceptUserID string, event events.ServerEvent, payload any) {
	r.fanOut(r.presence.RoomConns(room, exceptUserID), room, event, payload)
}

// ToAll delivers to every currently connected client regardless of room
// membership. Reserved for status changes and system-wide announcements.
func (r *Relay) ToAll(event events.ServerEvent, payload any) {
	r.fanOut(r.presence.AllConns(), "", event, payload)
}

func (r *Relay) fanOut(conns []presence.Conn, room presence.RoomKey, event events.ServerEvent, payload any) {
	if len(conns) == 0 {
		return
	}
	msg, err := events.Encode(event, payload)
	if err != nil {
		r.logger.Error("Failed to encode event", slog.String("event", string(event)), slog.Any("error", err))
		return
	}
	for _, conn := range conns {
		conn.Send(msg)
	}
	r.logger.Debug("Relayed event",
		slog.String("event", string(event)),
		slog.String("room", string(room)),
		slog.Int("recipients", len(conns)),
	)
}
