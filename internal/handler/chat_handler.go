package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"loungechat/internal/pkg/auth"
	"loungechat/internal/pkg/errs"
	"loungechat/internal/pkg/logx"
	"loungechat/internal/pkg/resp"
)

// ChatSettingsResponse is the stored preference of one player.
type ChatSettingsResponse struct {
	BattleTag   string `json:"battleTag"`
	DefaultChat string `json:"defaultChat,omitempty"`
}

// ClearRoomResponse reports how many messages were dropped from a room.
type ClearRoomResponse struct {
	Room    string `json:"room"`
	Deleted int    `json:"deleted"`
}

// pathParam returns the unescaped, trimmed URL parameter name.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		raw = v
	}
	return strings.TrimSpace(raw)
}

// HandleListRooms lists the default rooms and every occupied ad-hoc room with member counts.
func HandleListRooms(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, deps.Orchestrator.RoomSummaries())
	}
}

// HandleGetChatSettings returns the default room stored for a player.
func HandleGetChatSettings(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		battleTag := pathParam(r, "battleTag")
		if battleTag == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		room, err := deps.Settings.LoadDefaultRoom(r.Context(), battleTag)
		if err != nil {
			logx.Error(err, "Failed to load chat settings", "battle_tag", battleTag)
			resp.RespondError(w, r, errs.NewError(errs.ErrBackendUnavailable))
			return
		}

		resp.RespondSuccess(w, r, ChatSettingsResponse{BattleTag: battleTag, DefaultChat: room})
	}
}

// HandleGetChatLog returns the full retained history of a room.
func HandleGetChatLog(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room := pathParam(r, "room")
		if room == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrRoomNameInvalid))
			return
		}
		resp.RespondSuccess(w, r, deps.Orchestrator.FullLog(room))
	}
}

// HandleClearRoom drops the whole history of a room.
func HandleClearRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room := pathParam(r, "room")
		if room == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrRoomNameInvalid))
			return
		}

		caller := auth.FromContext(r.Context())
		removed := deps.Orchestrator.ClearRoom(r.Context(), caller.BattleTag, room)
		resp.RespondSuccess(w, r, ClearRoomResponse{Room: room, Deleted: len(removed)})
	}
}
