package gateway

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/cuppid-coder/connect/internal/events"
	"github.com/cuppid-coder/connect/internal/identity"
	"github.com/cuppid-coder/connect/internal/presence"
)

// HandleMessage processes one client command. Commands from a single
// connection arrive here in order; failures are logged per event and
// never take down the connection or the process.
func (g *Gateway) HandleMessage(ctx context.Context, user identity.User, connID uuid.UUID, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("Panic while handling client event",
				slog.String("userID", user.ID),
				slog.Any("panic", r),
			)
		}
	}()

	ev, err := events.DecodeClient(raw)
	if err != nil {
		if errors.Is(err, events.ErrUnknownEvent) {
			g.logger.Warn("Received unknown event", slog.String("userID", user.ID), slog.Any("error", err))
		} else {
			g.logger.Warn("Failed to decode client message", slog.String("userID", user.ID), slog.Any("error", err))
		}
		return
	}

	switch ev := ev.(type) {
	case events.JoinChat:
		g.join(presence.ChatRoom(ev.ChatID), user, ev.ChatID != "")
	case events.LeaveChat:
		g.presence.Leave(presence.ChatRoom(ev.ChatID), user.ID)

	case events.Typing:
		g.relayTyping(presence.ChatRoom(ev.ChatID), user, events.UserTyping, events.TypingPayload{
			UserID: user.ID,
			ChatID: ev.ChatID,
		})
	case events.StopTyping:
		room := presence.ChatRoom(ev.ChatID)
		g.typing.Reset(user.ID, room)
		g.relay.ToRoomExcept(room, user.ID, events.UserStopTyping, events.TypingPayload{
			UserID: user.ID,
			ChatID: ev.ChatID,
		})

	case events.JoinTeam:
		g.join(presence.TeamRoom(ev.TeamID), user, ev.TeamID != "")
	case events.LeaveTeam:
		g.presence.Leave(presence.TeamRoom(ev.TeamID), user.ID)

	case events.JoinProject:
		g.join(presence.ProjectRoom(ev.ProjectID), user, ev.ProjectID != "")
	case events.LeaveProject:
		g.presence.Leave(presence.ProjectRoom(ev.ProjectID), user.ID)

	case events.TypingComment:
		g.relayTyping(presence.CommentThreadRoom(ev.ProjectID, ev.TaskID), user, events.UserTypingComment, events.CommentTypingPayload{
			UserID:    user.ID,
			UserName:  user.Name,
			ProjectID: ev.ProjectID,
		})
	case events.StopTypingComment:
		room := presence.CommentThreadRoom(ev.ProjectID, ev.TaskID)
		g.typing.Reset(user.ID, room)
		g.relay.ToRoomExcept(room, user.ID, events.UserStopTypingComment, events.CommentTypingPayload{
			UserID:    user.ID,
			ProjectID: ev.ProjectID,
		})

	case events.JoinComments:
		if ev.ProjectID == "" && ev.TaskID == "" {
			g.logger.Warn("Join command missing entity id", slog.String("userID", user.ID))
			return
		}
		room := presence.CommentThreadRoom(ev.ProjectID, ev.TaskID)
		g.join(room, user, true)
		g.relay.ToRoom(room, events.UserJoinedComments, events.CommentPresencePayload{
			UserID:   user.ID,
			UserName: user.Name,
		})
	case events.LeaveComments:
		if ev.ProjectID == "" && ev.TaskID == "" {
			return
		}
		room := presence.CommentThreadRoom(ev.ProjectID, ev.TaskID)
		g.presence.Leave(room, user.ID)
		g.relay.ToRoom(room, events.UserLeftComments, events.CommentPresencePayload{
			UserID:   user.ID,
			UserName: user.Name,
		})

	case events.SendFriendRequest:
		g.relay.ToUser(ev.TargetUserID, events.FriendRequestReceived, events.RequestPayload{From: userRef(user)})
	case events.RequestDirectMessage:
		g.relay.ToUser(ev.TargetUserID, events.DirectMessageRequest, events.RequestPayload{From: userRef(user)})
	}
}

func (g *Gateway) join(room presence.RoomKey, user identity.User, valid bool) {
	if !valid {
		g.logger.Warn("Join command missing entity id", slog.String("userID", user.ID))
		return
	}
	if err := g.presence.Join(room, user.ID); err != nil {
		g.logger.Warn("Join failed", slog.String("userID", user.ID), slog.String("room", string(room)), slog.Any("error", err))
	}
}

// relayTyping applies the throttle window before fanning a typing
// indicator out to the rest of the room.
func (g *Gateway) relayTyping(room presence.RoomKey, user identity.User, event events.ServerEvent, payload any) {
	if !g.typing.Allow(user.ID, room) {
		return
	}
	g.relay.ToRoomExcept(room, user.ID, event, payload)
}
