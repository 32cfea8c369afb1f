/*
Package moderation decides whether a user may connect or talk.

Mutes from every backing store are translated into one Mute shape with a Kind
(Full, ShadowBan or FriendsOnly) at the repository edge. The Gate looks up the
active mute for an identity through a short-lived cache and maps it, together
with the intended action, to a Decision.
*/
package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is the effect of a mute.
type Kind int

const (
	// KindFull rejects every message and terminates the session.
	KindFull Kind = iota

	// KindShadowBan silently echoes the author's messages back to them only.
	KindShadowBan

	// KindFriendsOnly restricts the user to conversations with friends.
	KindFriendsOnly
)

var kindNames = map[Kind]string{
	KindFull:        "full",
	KindShadowBan:   "shadowBan",
	KindFriendsOnly: "friendsOnly",
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind accepts the wire names case-insensitively. An empty string is KindFull.
func ParseKind(s string) (Kind, error) {
	if strings.TrimSpace(s) == "" {
		return KindFull, nil
	}
	for k, name := range kindNames {
		if strings.EqualFold(name, s) {
			return k, nil
		}
	}
	return KindFull, fmt.Errorf("unknown mute kind %q", s)
}

// MarshalJSON encodes the kind by name.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a kind from its name.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// KindFromLegacy maps the legacy isShadowBan flag onto a Kind.
func KindFromLegacy(isShadowBan bool) Kind {
	if isShadowBan {
		return KindShadowBan
	}
	return KindFull
}

// Mute is the single active moderation record of an identity.
type Mute struct {
	BattleTag  string    `json:"battleTag"`
	EndsAt     time.Time `json:"endDate"`
	Kind       Kind      `json:"kind"`
	Author     string    `json:"author"`
	Reason     string    `json:"reason,omitempty"`
	InsertedAt time.Time `json:"insertDate"`
}

// ActiveAt reports whether the mute is still in force at t.
func (m Mute) ActiveAt(t time.Time) bool {
	return t.Before(m.EndsAt)
}

// Notice is the payload sent to a user rejected by moderation.
type Notice struct {
	Kind    Kind      `json:"kind"`
	EndDate time.Time `json:"endDate"`
	Reason  string    `json:"reason,omitempty"`
}

// Notice builds the user-facing notice of the mute.
func (m Mute) Notice() Notice {
	return Notice{Kind: m.Kind, EndDate: m.EndsAt, Reason: m.Reason}
}

// ErrNotFound is returned by Repository.Delete when no mute exists.
var ErrNotFound = errors.New("mute not found")

// Repository stores mutes. Implementations translate their storage shape into Mute.
type Repository interface {
	// GetActiveMute returns the mute of battleTag, or nil when none exists.
	// The returned mute may already be expired.
	GetActiveMute(ctx context.Context, battleTag string) (*Mute, error)

	// Upsert replaces the mute of m.BattleTag.
	Upsert(ctx context.Context, m Mute) error

	// Delete removes the mute of battleTag.
	Delete(ctx context.Context, battleTag string) error

	// List returns all stored mutes.
	List(ctx context.Context) ([]Mute, error)
}
