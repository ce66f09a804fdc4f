// Package events defines the closed set of messages exchanged with
// clients. Inbound commands decode into a tagged variant so the gateway's
// dispatch is checked at compile time instead of hanging off raw strings.
package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Envelope is the wire shape of every message in both directions.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var (
	ErrBadEnvelope  = errors.New("events: malformed message envelope")
	ErrUnknownEvent = errors.New("events: unknown event")
)

// ClientEvent is the closed set of commands a client may issue.
type ClientEvent interface {
	clientEvent()
}

type JoinChat struct {
	ChatID string `json:"chatId"`
}

type LeaveChat struct {
	ChatID string `json:"chatId"`
}

type Typing struct {
	ChatID string `json:"chatId"`
}

type StopTyping struct {
	ChatID string `json:"chatId"`
}

type JoinTeam struct {
	TeamID string `json:"teamId"`
}

type LeaveTeam struct {
	TeamID string `json:"teamId"`
}

type JoinProject struct {
	ProjectID string `json:"projectId"`
}

type LeaveProject struct {
	ProjectID string `json:"projectId"`
}

type TypingComment struct {
	ProjectID string `json:"projectId"`
	TaskID    string `json:"taskId"`
}

type StopTypingComment struct {
	ProjectID string `json:"projectId"`
	TaskID    string `json:"taskId"`
}

type JoinComments struct {
	ProjectID string `json:"projectId"`
	TaskID    string `json:"taskId"`
}

type LeaveComments struct {
	ProjectID string `json:"projectId"`
	TaskID    string `json:"taskId"`
}

type SendFriendRequest struct {
	TargetUserID string `json:"targetUserId"`
}

type RequestDirectMessage struct {
	TargetUserID string `json:"targetUserId"`
}

func (JoinChat) clientEvent()             {}
func (LeaveChat) clientEvent()            {}
func (Typing) clientEvent()               {}
func (StopTyping) clientEvent()           {}
func (JoinTeam) clientEvent()             {}
func (LeaveTeam) clientEvent()            {}
func (JoinProject) clientEvent()          {}
func (LeaveProject) clientEvent()         {}
func (TypingComment) clientEvent()        {}
func (StopTypingComment) clientEvent()    {}
func (JoinComments) clientEvent()         {}
func (LeaveComments) clientEvent()        {}
func (SendFriendRequest) clientEvent()    {}
func (RequestDirectMessage) clientEvent() {}

// clientDecoders is the dispatch table from wire event names to variants.
var clientDecoders = map[string]func([]byte) (ClientEvent, error){
	"join_chat":              decodeInto[JoinChat],
	"leave_chat":             decodeInto[LeaveChat],
	"typing":                 decodeInto[Typing],
	"stop_typing":            decodeInto[StopTyping],
	"join_team":              decodeInto[JoinTeam],
	"leave_team":             decodeInto[LeaveTeam],
	"join_project":           decodeInto[JoinProject],
	"leave_project":          decodeInto[LeaveProject],
	"typing_comment":         decodeInto[TypingComment],
	"stop_typing_comment":    decodeInto[StopTypingComment],
	"join_comments":          decodeInto[JoinComments],
	"leave_comments":         decodeInto[LeaveComments],
	"send_friend_request":    decodeInto[SendFriendRequest],
	"request_direct_message": decodeInto[RequestDirectMessage],
}

func decodeInto[T ClientEvent](payload []byte) (ClientEvent, error) {
	var ev T
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
		}
	}
	return ev, nil
}

// DecodeClient parses a raw inbound frame into its variant.
func DecodeClient(raw []byte) (ClientEvent, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrBadEnvelope
	}
	name := gjson.GetBytes(raw, "event")
	if !name.Exists() || name.String() == "" {
		return nil, ErrBadEnvelope
	}
	decode, ok := clientDecoders[name.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name.String())
	}
	payload := gjson.GetBytes(raw, "payload")
	return decode([]byte(payload.Raw))
}
