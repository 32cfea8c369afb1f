/*
Package handler provides the HTTP handlers and routing setup for the lounge chat server.

This file defines the main Router, applying middleware like logging, CORS and
IP-based rate limiting before delegating requests to the REST and WebSocket handlers.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"loungechat/internal/pkg/auth"
	"loungechat/internal/pkg/auth/jwt"
	"loungechat/internal/pkg/limiter"
	"loungechat/internal/pkg/logx"
	"loungechat/internal/pkg/resp"
)

const (
	ConnectRate  = 0.5
	ConnectBurst = 5
)

// NewWSLimiter creates the per-IP limiter guarding WebSocket upgrades.
func NewWSLimiter() *limiter.IPRateLimiter {
	return limiter.NewIPRateLimiter(rate.Limit(ConnectRate), ConnectBurst)
}

// Router sets up the main HTTP routing table (chi.Router) for the application.
func Router(deps *AppDeps) http.Handler {
	wsLimiter := deps.WSLimiter
	if wsLimiter == nil {
		wsLimiter = NewWSLimiter()
	}

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]any{
			"status":      "ok",
			"service":     "Lounge Chat",
			"connections": deps.Manager.Count(),
		})
	})

	r.Get("/ws", HandleWebSocket(deps, wsUpgrader, wsLimiter))

	r.Route("/api", func(api chi.Router) {
		api.Get("/rooms", HandleListRooms(deps))
		api.Get("/chat-settings/{battleTag}", HandleGetChatSettings(deps))

		api.Group(func(mod chi.Router) {
			mod.Use(jwt.IdentityMiddleware(deps.Authenticator))
			mod.Use(jwt.RequirePermission(auth.PermissionModeration))

			mod.Get("/chat/{room}", HandleGetChatLog(deps))
			mod.Delete("/chat/{room}", HandleClearRoom(deps))

			mod.Get("/loungeMute", HandleListMutes(deps))
			mod.Post("/loungeMute", HandleBanUser(deps))
			mod.Delete("/loungeMute/{battleTag}", HandleDeleteMute(deps))

			mod.Delete("/deletion/messages/{id}", HandleDeleteMessage(deps))
			mod.Delete("/deletion/messages/from-user/{battleTag}", HandlePurgeMessages(deps))
		})

		api.Route("/v1/system", func(internal chi.Router) {
			internal.Use(RequireInternalSecret(deps.Config.InternalAPISecret))
			internal.Post("/broadcast", HandleSystemBroadcast(deps))
		})
	})

	return r
}
