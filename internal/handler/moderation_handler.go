package handler

import (
	"errors"
	"net/http"

	"loungechat/internal/app/chat"
	"loungechat/internal/app/moderation"
	"loungechat/internal/pkg/auth"
	"loungechat/internal/pkg/errs"
	"loungechat/internal/pkg/logx"
	"loungechat/internal/pkg/req"
	"loungechat/internal/pkg/resp"
)

// PurgeResponse reports how many messages a purge removed.
type PurgeResponse struct {
	BattleTag string `json:"battleTag"`
	Deleted   int    `json:"deleted"`
}

// HandleListMutes returns every mute still in force.
func HandleListMutes(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mutes, err := deps.Gate.ListActive(r.Context())
		if err != nil {
			logx.Error(err, "Failed to list mutes")
			resp.RespondError(w, r, errs.NewError(errs.ErrBackendUnavailable))
			return
		}
		resp.RespondSuccess(w, r, mutes)
	}
}

// HandleBanUser stores a mute for the player named in the body.
func HandleBanUser(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body chat.BanRequest
		if bindErr := req.BindJSON(w, r, &body); bindErr != nil {
			resp.RespondError(w, r, bindErr)
			return
		}

		caller := auth.FromContext(r.Context())
		mute, err := deps.Orchestrator.BanUser(r.Context(), caller.BattleTag, body)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, mute)
	}
}

// HandleDeleteMute lifts the mute of a player.
func HandleDeleteMute(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		battleTag := pathParam(r, "battleTag")
		if battleTag == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		err := deps.Gate.Delete(r.Context(), battleTag)
		switch {
		case errors.Is(err, moderation.ErrNotFound):
			resp.RespondError(w, r, errs.NewError(errs.ErrMuteNotFound))
		case err != nil:
			logx.Error(err, "Failed to delete mute", "battle_tag", battleTag)
			resp.RespondError(w, r, errs.NewError(errs.ErrBackendUnavailable))
		default:
			resp.RespondSuccess(w, r, nil)
		}
	}
}

// HandleDeleteMessage removes one message from every room history and notifies the room.
func HandleDeleteMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := pathParam(r, "id")
		if id == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		caller := auth.FromContext(r.Context())
		msg, err := deps.Orchestrator.DeleteMessage(r.Context(), caller.BattleTag, id)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}
		resp.RespondSuccess(w, r, msg)
	}
}

// HandlePurgeMessages removes every stored message of a player.
func HandlePurgeMessages(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		battleTag := pathParam(r, "battleTag")
		if battleTag == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		caller := auth.FromContext(r.Context())
		purged := deps.Orchestrator.PurgeMessagesFromUser(r.Context(), caller.BattleTag, battleTag)
		resp.RespondSuccess(w, r, PurgeResponse{BattleTag: battleTag, Deleted: len(purged)})
	}
}
