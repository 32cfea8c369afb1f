/*
Package event defines the outbound events pushed to chat connections and the
Sender that delivers them.

Every frame on the wire is a JSON object {"type": ..., "payload": ...}. Senders
only enqueue; they never block on the network, which lets callers emit events
while holding the lock that orders them.
*/
package event

import (
	"time"

	"loungechat/internal/app/message"
	"loungechat/internal/app/moderation"
	"loungechat/internal/app/user"
	"loungechat/internal/pkg/errs"
)

// Type names an outbound event.
type Type string

const (
	TypeStartChat            Type = "StartChat"
	TypeUserEntered          Type = "UserEntered"
	TypeUserLeft             Type = "UserLeft"
	TypeUserUpdated          Type = "UserUpdated"
	TypeReceiveMessage       Type = "ReceiveMessage"
	TypeMessageDeleted       Type = "MessageDeleted"
	TypeBulkMessageDeleted   Type = "BulkMessageDeleted"
	TypePlayerBannedFromChat Type = "PlayerBannedFromChat"
	TypeFriendsOnlyNotice    Type = "FriendsOnlyNotice"
	TypeAuthorizationFailed  Type = "AuthorizationFailed"
	TypeUnauthorized         Type = "Unauthorized"
	TypeError                Type = "Error"
	TypeSystemMessage        Type = "system_message"

	TypePrivateMessageRequest     Type = "PrivateMessageRequest"
	TypePrivateMessageRequestSent Type = "PrivateMessageRequestSent"
	TypePrivateMessageReceived    Type = "PrivateMessageReceived"
	TypePrivateMessageDelivered   Type = "PrivateMessageDelivered"
	TypePrivateMessageRejected    Type = "PrivateMessageRejected"
	TypePrivateMessageAccepted    Type = "PrivateMessageAccepted"
	TypePrivateMessageDeclined    Type = "PrivateMessageDeclined"
	TypePrivateMessageBlockResult Type = "PrivateMessageBlockResult"
	TypePrivateMessageHistory     Type = "PrivateMessageHistory"
)

// Event is one outbound frame.
type Event struct {
	Type    Type `json:"type"`
	Payload any  `json:"payload,omitempty"`
}

// Sender delivers events to connections by key.
type Sender interface {
	// Send enqueues ev for the connection. It returns false if the connection
	// is unknown or its queue is full.
	Send(connKey string, ev Event) bool

	// Terminate closes the connection after everything already enqueued is flushed.
	Terminate(connKey string, reason string)
}

// StartChat is the room snapshot sent to a connection entering a room.
type StartChat struct {
	ChatRoom string            `json:"chatRoom"`
	Users    []user.User       `json:"users"`
	Messages []message.Message `json:"messages"`
}

// UserChange carries the user of UserEntered, UserLeft and UserUpdated.
type UserChange struct {
	ChatRoom string    `json:"chatRoom"`
	User     user.User `json:"user"`
}

// ReceiveMessage carries one public chat message.
type ReceiveMessage struct {
	Message message.Message `json:"message"`
}

// MessageDeleted names a removed message.
type MessageDeleted struct {
	ID string `json:"id"`
}

// BulkMessageDeleted names every message removed by a purge.
type BulkMessageDeleted struct {
	IDs []string `json:"ids"`
}

// SystemMessage is a client-translated notice broadcast to a room.
type SystemMessage struct {
	RoomID        string         `json:"roomId"`
	MessageKey    string         `json:"messageKey"`
	MessageParams map[string]any `json:"messageParams"`
	Timestamp     time.Time      `json:"timestamp"`
}

// PrivateMessage is one direct message between two users.
type PrivateMessage struct {
	ID        string    `json:"id"`
	From      user.User `json:"from"`
	To        string    `json:"to"`
	Text      string    `json:"message"`
	Time      time.Time `json:"time"`
	Delivered bool      `json:"delivered"`
}

// PrivateMessageRequest asks the recipient to accept messages from a non-friend.
type PrivateMessageRequest struct {
	From user.User `json:"from"`
}

// PrivateMessageTarget names the other side of a PM outcome.
type PrivateMessageTarget struct {
	BattleTag string `json:"battleTag"`
}

// PrivateMessageRejected explains why a PM was not delivered.
type PrivateMessageRejected struct {
	Recipient string `json:"recipient"`
	Reason    string `json:"reason"`
}

// PrivateMessageConsent reports an accept or decline to both sides.
type PrivateMessageConsent struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
}

// PrivateMessageBlockResult reports the outcome of a block to the blocker.
type PrivateMessageBlockResult struct {
	BattleTag string `json:"battleTag"`
	Success   bool   `json:"success"`
}

// PrivateMessageHistory replays the stored conversation of a pair.
type PrivateMessageHistory struct {
	With     string           `json:"with"`
	Messages []PrivateMessage `json:"messages"`
}

// StartChatEvent builds the snapshot event.
func StartChatEvent(room string, users []user.User, messages []message.Message) Event {
	if users == nil {
		users = []user.User{}
	}
	if messages == nil {
		messages = []message.Message{}
	}
	return Event{Type: TypeStartChat, Payload: StartChat{ChatRoom: room, Users: users, Messages: messages}}
}

// UserEvent builds UserEntered, UserLeft or UserUpdated.
func UserEvent(t Type, room string, u user.User) Event {
	return Event{Type: t, Payload: UserChange{ChatRoom: room, User: u}}
}

// MessageEvent builds ReceiveMessage.
func MessageEvent(m message.Message) Event {
	return Event{Type: TypeReceiveMessage, Payload: ReceiveMessage{Message: m}}
}

// BanNoticeEvent builds PlayerBannedFromChat from a mute.
func BanNoticeEvent(m moderation.Mute) Event {
	return Event{Type: TypePlayerBannedFromChat, Payload: m.Notice()}
}

// ErrorEvent wraps a CustomError for the connection.
func ErrorEvent(t Type, err *errs.CustomError) Event {
	return Event{Type: t, Payload: err}
}
