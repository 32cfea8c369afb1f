/*
Package message defines the immutable public chat message retained in room history
and fanned out to room members.
*/
package message

import (
	"strings"
	"time"

	"loungechat/internal/app/user"
	"loungechat/internal/pkg/randx"
)

// Message is a single public chat line. Once created it is never mutated; the
// blocked-view flag is set on per-recipient copies only.
type Message struct {
	ID   string    `json:"id"`
	User user.User `json:"user"`
	Text string    `json:"message"`
	Time time.Time `json:"time"`

	// BlockedView marks a copy delivered to a recipient who has blocked the author.
	BlockedView bool `json:"blockedView,omitempty"`

	// System messages are rendered by the client from a translation key.
	IsSystemMessage     bool           `json:"isSystemMessage,omitempty"`
	SystemMessageKey    string         `json:"systemMessageKey,omitempty"`
	SystemMessageParams map[string]any `json:"systemMessageParams,omitempty"`
}

// New creates a message authored by u with a fresh id and the current UTC time.
func New(u user.User, text string) Message {
	return NewAt(u, text, time.Now())
}

// NewAt is New with an explicit creation time.
func NewAt(u user.User, text string, at time.Time) Message {
	return Message{
		ID:   randx.MessageID(),
		User: u,
		Text: strings.TrimSpace(text),
		Time: at.UTC(),
	}
}

// AuthoredBy reports whether battleTag wrote the message.
func (m Message) AuthoredBy(battleTag string) bool {
	return user.SameIdentity(m.User.BattleTag, battleTag)
}

// AsBlockedView returns a copy flagged for a recipient who blocked the author.
func (m Message) AsBlockedView() Message {
	m.BlockedView = true
	return m
}
