/*
Package user contains the chat participant identity and its cosmetic profile.

A User is keyed by its battle tag. Battle tags compare case-insensitively everywhere in
the service, so lookups go through Key or SameIdentity rather than plain string equality.
*/
package user

import "strings"

// SystemDisplayName is the reserved display name of synthetic system messages.
const SystemDisplayName = "[System]"

// AvatarCategory identifies the picture set a profile picture is taken from.
type AvatarCategory int

const (
	AvatarRandom   AvatarCategory = 0
	AvatarHuman    AvatarCategory = 1
	AvatarOrc      AvatarCategory = 2
	AvatarNightElf AvatarCategory = 4
	AvatarUndead   AvatarCategory = 8
	AvatarTotal    AvatarCategory = 16
	AvatarSpecial  AvatarCategory = 32
)

// ProfilePicture describes the avatar shown next to a user's messages.
type ProfilePicture struct {
	Race      AvatarCategory `json:"race"`
	PictureID int64          `json:"pictureId"`
	IsClassic bool           `json:"isClassic"`
}

// DefaultProfilePicture is used when the profile backend has nothing for a user.
func DefaultProfilePicture() ProfilePicture {
	return ProfilePicture{Race: AvatarTotal, PictureID: 0}
}

// User represents a chat participant. Fields use JSON tags for the WebSocket payloads.
type User struct {
	// BattleTag is the unique identity key, e.g. "Grubby#1234".
	BattleTag string `json:"battleTag"`

	// Name is the display name, the battle tag prefix before '#'.
	Name string `json:"name"`

	IsAdmin bool   `json:"isAdmin"`
	ClanTag string `json:"clanTag,omitempty"`

	// ProfilePicture, ChatColor and ChatIcons are cosmetics and may change during a session.
	ProfilePicture ProfilePicture `json:"profilePicture"`
	ChatColor      string         `json:"chatColor,omitempty"`
	ChatIcons      []string       `json:"chatIcons,omitempty"`
}

// Cosmetics groups the live-updatable parts of a User.
type Cosmetics struct {
	ClanTag        string
	ProfilePicture ProfilePicture
	ChatColor      string
	ChatIcons      []string
}

// New builds a User from an identity and its cosmetics.
func New(battleTag string, isAdmin bool, cosmetics Cosmetics) User {
	return User{
		BattleTag:      battleTag,
		Name:           DisplayName(battleTag),
		IsAdmin:        isAdmin,
		ClanTag:        cosmetics.ClanTag,
		ProfilePicture: cosmetics.ProfilePicture,
		ChatColor:      cosmetics.ChatColor,
		ChatIcons:      cosmetics.ChatIcons,
	}
}

// DisplayName returns the part of a battle tag before the first '#'.
func DisplayName(battleTag string) string {
	name, _, _ := strings.Cut(battleTag, "#")
	return name
}

// Key normalizes a battle tag for map keys and storage.
func Key(battleTag string) string {
	return strings.ToLower(strings.TrimSpace(battleTag))
}

// SameIdentity reports whether two battle tags name the same account.
func SameIdentity(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// AsSystemPersona returns a copy of u whose display name is the system label.
// The identity key is kept so clients can still resolve the message to the caller.
func AsSystemPersona(u User) User {
	persona := u
	persona.Name = SystemDisplayName
	if u.ChatIcons != nil {
		persona.ChatIcons = append([]string(nil), u.ChatIcons...)
	}
	return persona
}

// WithProfilePicture returns a copy of u with a new profile picture.
func (u User) WithProfilePicture(p ProfilePicture) User {
	u.ProfilePicture = p
	return u
}
