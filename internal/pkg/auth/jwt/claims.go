package jwt

import "github.com/golang-jwt/jwt"

// Claims is the identity token issued by the account service.
type Claims struct {
	// StandardClaims carries exp/iat/iss; an absent exp means the token does not expire.
	jwt.StandardClaims

	// BattleTag is the identity key of the player.
	BattleTag string `json:"battleTag"`

	// IsAdmin marks staff accounts.
	IsAdmin bool `json:"isAdmin"`

	// Name is the display name chosen at the account service.
	Name string `json:"name"`

	// Permissions lists elevated capabilities by name (see auth.Permission).
	Permissions []string `json:"permissions"`
}
