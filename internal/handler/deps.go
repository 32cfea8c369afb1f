package handler

import (
	"loungechat/internal/app/chat"
	"loungechat/internal/app/moderation"
	"loungechat/internal/configs"
	"loungechat/internal/pkg/auth"
	"loungechat/internal/pkg/limiter"
)

// AppDeps are the collaborators shared by every handler.
type AppDeps struct {
	Config        *configs.AppConfig
	Manager       *chat.Manager
	Orchestrator  *chat.Orchestrator
	Gate          *moderation.Gate
	Settings      chat.SettingsRepository
	Authenticator auth.Authenticator

	// WSLimiter throttles WebSocket upgrades per client IP. Router creates one when nil.
	WSLimiter *limiter.IPRateLimiter
}
