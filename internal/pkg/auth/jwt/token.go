package jwt

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"

	"loungechat/internal/pkg/auth"
	"loungechat/internal/pkg/logx"
)

// ErrMissingBattleTag is returned for a validly signed token without a battleTag claim.
var ErrMissingBattleTag = errors.New("token has no battleTag claim")

// ParsePublicKey decodes a PEM encoded RSA public key. Escaped newlines ("\n") as
// found in environment variables are accepted.
func ParsePublicKey(pemKey string) (*rsa.PublicKey, error) {
	pemKey = strings.ReplaceAll(pemKey, `\n`, "\n")
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemKey))
	if err != nil {
		return nil, fmt.Errorf("parse JWT public key: %w", err)
	}
	return key, nil
}

// ParseToken validates the RS256 signature of tokenString and returns its claims.
func ParseToken(tokenString string, key *rsa.PublicKey) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return key, nil
	})
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid or expired token")
	}
	if strings.TrimSpace(claims.BattleTag) == "" {
		return nil, ErrMissingBattleTag
	}

	return claims, nil
}

// GenerateToken signs claims with key. The chat service never issues tokens in
// production; this is used by tooling and tests.
func GenerateToken(claims *Claims, key *rsa.PrivateKey, duration time.Duration) (string, error) {
	now := time.Now()
	claims.IssuedAt = now.Unix()
	if duration > 0 {
		claims.ExpiresAt = now.Add(duration).Unix()
	}

	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
}

// Identity converts claims into an auth.Identity, dropping unknown permissions.
func (c *Claims) Identity() *auth.Identity {
	id := &auth.Identity{
		BattleTag: c.BattleTag,
		Name:      c.Name,
		IsAdmin:   c.IsAdmin,
	}

	for _, raw := range c.Permissions {
		if p, ok := auth.ParsePermission(raw); ok {
			id.Permissions = append(id.Permissions, p)
		} else {
			logx.Debug("Ignoring unknown permission claim", "permission", raw, "battle_tag", c.BattleTag)
		}
	}

	return id
}

// Authenticator resolves identity tokens signed by the account service.
type Authenticator struct {
	key *rsa.PublicKey
}

// NewAuthenticator creates an Authenticator verifying against key.
func NewAuthenticator(key *rsa.PublicKey) *Authenticator {
	return &Authenticator{key: key}
}

// ResolveIdentity implements auth.Authenticator.
func (a *Authenticator) ResolveIdentity(_ context.Context, credential string) (*auth.Identity, error) {
	credential = strings.TrimSpace(strings.TrimPrefix(credential, "Bearer "))
	if credential == "" {
		return nil, auth.ErrUnauthenticated
	}

	claims, err := ParseToken(credential, a.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrUnauthenticated, err)
	}

	return claims.Identity(), nil
}
