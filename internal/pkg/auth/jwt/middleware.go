package jwt

import (
	"net/http"
	"strings"

	"loungechat/internal/pkg/auth"
	"loungechat/internal/pkg/errs"
	"loungechat/internal/pkg/logx"
	"loungechat/internal/pkg/resp"
)

// TokenFromRequest returns the bearer token of r, falling back to the
// access_token query parameter used by browser WebSocket clients.
func TokenFromRequest(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	return r.URL.Query().Get("access_token")
}

// IdentityMiddleware resolves the caller with authenticator and stores the identity
// in the request context. Requests without a valid identity get a 401 response.
func IdentityMiddleware(authenticator auth.Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := authenticator.ResolveIdentity(r.Context(), TokenFromRequest(r))
			if err != nil {
				logx.Warn("Rejected request with invalid identity token", "error", err, "uri", r.RequestURI)
				resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
		})
	}
}

// RequirePermission rejects requests whose identity lacks perm. It must run after
// IdentityMiddleware.
func RequirePermission(perm auth.Permission) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := auth.FromContext(r.Context())

			switch err := auth.Check(caller, perm); err {
			case nil:
				next.ServeHTTP(w, r)
			case auth.ErrUnauthenticated:
				resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			default:
				logx.Warn("Permission denied", "battle_tag", caller.BattleTag, "permission", string(perm))
				resp.RespondError(w, r, errs.NewError(errs.ErrForbidden))
			}
		})
	}
}
