// Package gateway orchestrates the real-time connection lifecycle:
// register presence, join the implicit personal rooms, relay client
// commands, and reverse it all on disconnect. It owns the presence
// manager and relay as one explicitly constructed unit; nothing mutates
// them except through the gateway.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cuppid-coder/connect/internal/events"
	"github.com/cuppid-coder/connect/internal/identity"
	"github.com/cuppid-coder/connect/internal/presence"
	"github.com/cuppid-coder/connect/internal/relay"
)

// errSuperseded is the close reason handed to a connection that lost a
// duplicate-login race.
var errSuperseded = errors.New("connection superseded by a newer login")

type Options struct {
	// TypingThrottle bounds how often a user's typing events relay per
	// room. Zero disables the throttle.
	TypingThrottle time.Duration
	// StatusWriteTimeout bounds the best-effort durable status write.
	StatusWriteTimeout time.Duration
}

type Gateway struct {
	logger    *slog.Logger
	presence  *presence.Manager
	relay     *relay.Relay
	directory identity.Directory
	typing    *typingThrottle

	statusWriteTimeout time.Duration
}

func New(logger *slog.Logger, manager *presence.Manager, r *relay.Relay, directory identity.Directory, opts Options) *Gateway {
	if opts.StatusWriteTimeout <= 0 {
		opts.StatusWriteTimeout = 3 * time.Second
	}
	return &Gateway{
		logger:             logger.With(slog.String("component", "gateway")),
		presence:           manager,
		relay:              r,
		directory:          directory,
		typing:             newTypingThrottle(opts.TypingThrottle),
		statusWriteTimeout: opts.StatusWriteTimeout,
	}
}

// Connect runs the post-authentication connect sequence: register the
// connection, force-close a superseded duplicate login, fire the durable
// "online" write, join the personal rooms, and broadcast the status
// change. The broadcast is optimistic; it does not wait for the durable
// write.
func (g *Gateway) Connect(user identity.User, conn presence.Conn) {
	prev, superseded := g.presence.Register(user, conn)
	if superseded {
		g.logger.Info("Duplicate login, closing superseded connection",
			slog.String("userID", user.ID),
			slog.String("oldConnID", prev.ID().String()),
		)
		prev.Close(errSuperseded)
	}

	g.writeStatus(user.ID, identity.StatusOnline)

	// Personal rooms: toUser-style pushes land in the notifications room,
	// contact events in the contacts room.
	if err := g.presence.Join(presence.NotificationsRoom(user.ID), user.ID); err != nil {
		g.logger.Error("Failed to join notifications room", slog.String("userID", user.ID), slog.Any("error", err))
	}
	if err := g.presence.Join(presence.ContactsRoom(user.ID), user.ID); err != nil {
		g.logger.Error("Failed to join contacts room", slog.String("userID", user.ID), slog.Any("error", err))
	}

	g.relay.ToAll(events.UserStatusChanged, events.StatusChangePayload{
		UserID: user.ID,
		Status: string(identity.StatusOnline),
	})
	g.logger.Info("User connected", slog.String("userID", user.ID), slog.String("connID", conn.ID().String()))
}

// Disconnect reverses Connect. It is safe on duplicate disconnect signals
// and on signals from a superseded connection: a stale connID deregisters
// nothing and triggers no offline broadcast.
func (g *Gateway) Disconnect(userID string, connID uuid.UUID) {
	if !g.presence.Deregister(userID, connID) {
		g.logger.Debug("Ignoring stale disconnect", slog.String("userID", userID), slog.String("connID", connID.String()))
		return
	}
	g.presence.LeaveAll(userID)
	g.writeStatus(userID, identity.StatusOffline)
	g.relay.ToAll(events.UserStatusChanged, events.StatusChangePayload{
		UserID: userID,
		Status: string(identity.StatusOffline),
	})
	g.logger.Info("User disconnected", slog.String("userID", userID), slog.String("connID", connID.String()))
}

// writeStatus fires the durable status update without blocking the
// caller. Presence truth lives in the registry; a failed write only means
// the persisted field stays stale until the next connect or disconnect.
func (g *Gateway) writeStatus(userID string, status identity.Status) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), g.statusWriteTimeout)
		defer cancel()
		if err := g.directory.SetStatus(ctx, userID, status, time.Now()); err != nil {
			g.logger.Warn("Durable status write failed",
				slog.String("userID", userID),
				slog.String("status", string(status)),
				slog.Any("error", err),
			)
		}
	}()
}

// --- Collaborator surface ---
//
// The HTTP controllers and the notification worker trigger real-time
// pushes through these methods; they never touch the presence manager or
// relay directly.

// NotifyNewMessage fans a persisted chat message out to the chat room.
func (g *Gateway) NotifyNewMessage(chatID string, message json.RawMessage) {
	g.relay.ToRoom(presence.ChatRoom(chatID), events.NewMessage, message)
}

// PushNotification delivers an already-persisted notification to its
// recipient, if connected.
func (g *Gateway) PushNotification(userID string, notification json.RawMessage) {
	g.relay.ToUser(userID, events.NewNotification, notification)
}

// SendToUser delivers an arbitrary event to one user's live connection.
func (g *Gateway) SendToUser(userID string, event events.ServerEvent, payload any) {
	g.relay.ToUser(userID, event, payload)
}

// NotifyTeam broadcasts to everyone subscribed to a team room.
func (g *Gateway) NotifyTeam(teamID string, event events.ServerEvent, payload any) {
	g.relay.ToRoom(presence.TeamRoom(teamID), event, payload)
}

// NotifyProjectMembers broadcasts to everyone subscribed to a project room.
func (g *Gateway) NotifyProjectMembers(projectID string, event events.ServerEvent, payload any) {
	g.relay.ToRoom(presence.ProjectRoom(projectID), event, payload)
}

// NotifyContactEvent pushes a contact-related event to a user's contacts
// room.
func (g *Gateway) NotifyContactEvent(userID string, event events.ServerEvent, payload any) {
	g.relay.ToRoom(presence.ContactsRoom(userID), event, payload)
}

// NotifyComment routes a comment event to its thread: the project room
// when projectID is set, otherwise the task room.
func (g *Gateway) NotifyComment(projectID, taskID string, event events.ServerEvent, payload any) {
	g.relay.ToRoom(presence.CommentThreadRoom(projectID, taskID), event, payload)
}

// AnnounceCommentActivity emits comment_typing / comment_typing_stopped
// to a comment thread on behalf of a collaborator.
func (g *Gateway) AnnounceCommentActivity(projectID, taskID string, user identity.User, typing bool) {
	event := events.CommentTyping
	if !typing {
		event = events.CommentTypingStopped
	}
	g.relay.ToRoom(presence.CommentThreadRoom(projectID, taskID), event, events.CommentActivityPayload{
		UserID:    user.ID,
		UserName:  user.Name,
		Timestamp: time.Now(),
	})
}

// AnnounceFriendRequestUpdate tells the target how a friend request
// resolved.
func (g *Gateway) AnnounceFriendRequestUpdate(from identity.User, targetUserID string, accepted bool) {
	g.relay.ToUser(targetUserID, events.FriendRequestUpdate, events.RequestUpdatePayload{
		From:   userRef(from),
		Status: requestStatus(accepted),
	})
}

// AnnounceMessageRequestUpdate tells the target how a direct-message
// request resolved.
func (g *Gateway) AnnounceMessageRequestUpdate(from identity.User, targetUserID string, accepted bool) {
	g.relay.ToUser(targetUserID, events.MessageRequestUpdate, events.RequestUpdatePayload{
		From:   userRef(from),
		Status: requestStatus(accepted),
	})
}

// Broadcast delivers a system-wide announcement to every connected client.
func (g *Gateway) Broadcast(event events.ServerEvent, payload any) {
	g.relay.ToAll(event, payload)
}

// OnlineUsers returns the identities with a live connection right now.
func (g *Gateway) OnlineUsers() []identity.User {
	return g.presence.Snapshot()
}

// UserStatus reports online/offline from the in-memory registry.
func (g *Gateway) UserStatus(userID string) identity.Status {
	if g.presence.IsOnline(userID) {
		return identity.StatusOnline
	}
	return identity.StatusOffline
}

func userRef(u identity.User) events.UserRef {
	return events.UserRef{ID: u.ID, Name: u.Name, Avatar: u.Avatar}
}

func requestStatus(accepted bool) string {
	if accepted {
		return "accepted"
	}
	return "pending"
}
