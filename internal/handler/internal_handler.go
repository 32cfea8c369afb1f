package handler

import (
	"crypto/subtle"
	"net/http"

	"loungechat/internal/app/chat"
	"loungechat/internal/app/friends"
	"loungechat/internal/pkg/errs"
	"loungechat/internal/pkg/logx"
	"loungechat/internal/pkg/req"
	"loungechat/internal/pkg/resp"
)

// BroadcastResponse reports how many connections a system message reached.
type BroadcastResponse struct {
	Delivered int `json:"delivered"`
}

// RequireInternalSecret admits service-to-service calls carrying the shared secret.
func RequireInternalSecret(secret string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(friends.InternalSecretHeader)
			if secret == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
				logx.Warn("Internal request rejected: invalid secret", "uri", r.RequestURI)
				resp.RespondError(w, r, errs.NewError(errs.ErrInvalidInternalSecret))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HandleSystemBroadcast sends a system message to one room.
func HandleSystemBroadcast(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body chat.SystemBroadcast
		if bindErr := req.BindJSON(w, r, &body); bindErr != nil {
			resp.RespondError(w, r, bindErr)
			return
		}

		delivered, err := deps.Orchestrator.BroadcastSystemMessage(r.Context(), body)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		logx.Info("System message broadcast", "room", body.ChatRoomID, "key", body.MessageKey, "delivered", delivered)
		resp.RespondSuccess(w, r, BroadcastResponse{Delivered: delivered})
	}
}
