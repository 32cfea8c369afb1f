package jwt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loungechat/internal/pkg/auth"
)

func newKeyPair(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	return priv, string(pemKey)
}

func TestAuthenticator_ResolvesIdentity(t *testing.T) {
	priv, pemKey := newKeyPair(t)

	// Keys in env vars usually carry escaped newlines.
	pub, err := ParsePublicKey(strings.ReplaceAll(pemKey, "\n", `\n`))
	require.NoError(t, err)

	token, err := GenerateToken(&Claims{
		BattleTag:   "Grubby#1234",
		Name:        "Grubby",
		IsAdmin:     true,
		Permissions: []string{"Moderation", "NotAThing"},
	}, priv, time.Hour)
	require.NoError(t, err)

	id, err := NewAuthenticator(pub).ResolveIdentity(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, "Grubby#1234", id.BattleTag)
	assert.True(t, id.IsAdmin)
	assert.Equal(t, []auth.Permission{auth.PermissionModeration}, id.Permissions)
}

func TestAuthenticator_RejectsBadTokens(t *testing.T) {
	priv, pemKey := newKeyPair(t)
	otherPriv, _ := newKeyPair(t)
	pub, err := ParsePublicKey(pemKey)
	require.NoError(t, err)
	a := NewAuthenticator(pub)
	ctx := context.Background()

	_, err = a.ResolveIdentity(ctx, "")
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	forged, err := GenerateToken(&Claims{BattleTag: "x#1"}, otherPriv, time.Hour)
	require.NoError(t, err)
	_, err = a.ResolveIdentity(ctx, forged)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	expired := &Claims{BattleTag: "x#1"}
	expired.ExpiresAt = time.Now().Add(-time.Hour).Unix()
	token, err := GenerateToken(expired, priv, 0)
	require.NoError(t, err)
	_, err = a.ResolveIdentity(ctx, token)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	noTag, err := GenerateToken(&Claims{Name: "anon"}, priv, time.Hour)
	require.NoError(t, err)
	_, err = a.ResolveIdentity(ctx, noTag)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestMiddleware_RequirePermission(t *testing.T) {
	priv, pemKey := newKeyPair(t)
	pub, err := ParsePublicKey(pemKey)
	require.NoError(t, err)

	handler := IdentityMiddleware(NewAuthenticator(pub))(
		RequirePermission(auth.PermissionModeration)(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}),
		),
	)

	serve := func(token string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/chat/Lounge", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	player, err := GenerateToken(&Claims{BattleTag: "p#1"}, priv, time.Hour)
	require.NoError(t, err)
	mod, err := GenerateToken(&Claims{BattleTag: "m#1", Permissions: []string{"Moderation"}}, priv, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, serve(""))
	assert.Equal(t, http.StatusForbidden, serve(player))
	assert.Equal(t, http.StatusNoContent, serve(mod))
}

func TestTokenFromRequest_QueryFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws?access_token=abc", nil)
	assert.Equal(t, "abc", TokenFromRequest(req))

	req.Header.Set("Authorization", "Bearer xyz")
	assert.Equal(t, "xyz", TokenFromRequest(req))
}
