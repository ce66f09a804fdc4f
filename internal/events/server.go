package events

import (
	"encoding/json"
	"time"
)

// ServerEvent names an event delivered to clients.
type ServerEvent string

const (
	UserStatusChanged     ServerEvent = "user_status_changed"
	NewMessage            ServerEvent = "new_message"
	UserTyping            ServerEvent = "user_typing"
	UserStopTyping        ServerEvent = "user_stop_typing"
	UserTypingComment     ServerEvent = "user_typing_comment"
	UserStopTypingComment ServerEvent = "user_stop_typing_comment"
	FriendRequestReceived ServerEvent = "friend_request_received"
	FriendRequestUpdate   ServerEvent = "friend_request_update"
	DirectMessageRequest  ServerEvent = "direct_message_request"
	MessageRequestUpdate  ServerEvent = "message_request_update"
	NewNotification       ServerEvent = "new_notification"
	UserJoinedComments    ServerEvent = "user_joined_comments"
	UserLeftComments      ServerEvent = "user_left_comments"
	CommentTyping         ServerEvent = "comment_typing"
	CommentTypingStopped  ServerEvent = "comment_typing_stopped"
)

// UserRef is the compact identity attached to request/contact events.
type UserRef struct {
	ID     string `json:"_id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

type StatusChangePayload struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

type TypingPayload struct {
	UserID string `json:"userId"`
	ChatID string `json:"chatId"`
}

type CommentTypingPayload struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName,omitempty"`
	ProjectID string `json:"projectId"`
}

type RequestPayload struct {
	From UserRef `json:"from"`
}

type RequestUpdatePayload struct {
	From   UserRef `json:"from"`
	Status string  `json:"status"` // "accepted" or "pending"
}

type CommentPresencePayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type CommentActivityPayload struct {
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Timestamp time.Time `json:"timestamp"`
}

// Encode wraps an event and payload into the wire envelope. The payload
// is marshalled once so every recipient sees identical bytes.
func Encode(event ServerEvent, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Envelope{Event: string(event), Payload: raw})
}
