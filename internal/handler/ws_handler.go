package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"loungechat/internal/app/chat"
	"loungechat/internal/pkg/auth/jwt"
	"loungechat/internal/pkg/errs"
	"loungechat/internal/pkg/limiter"
	"loungechat/internal/pkg/logx"
	"loungechat/internal/pkg/randx"
	"loungechat/internal/pkg/resp"
)

// HandleWebSocket upgrades the request and runs the connection until it closes.
// Authorization happens after the upgrade so a rejected caller still receives
// the AuthorizationFailed event before the close frame.
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := limiter.ClientIP(r)
		if !rateLimiter.Allow(ip) {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		connKey, err := randx.ConnectionKey()
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}
		credential := jwt.TokenFromRequest(r)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		logx.Debug("WebSocket connection upgraded", "conn", connKey)

		chat.NewClient(r.Context(), connKey, conn, deps.Orchestrator, deps.Manager).Serve(credential)
	}
}
