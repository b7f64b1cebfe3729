package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"parley/internal/app/identity"
	"parley/internal/app/model"
	"parley/internal/app/store"
	"parley/internal/pkg/errs"
	"parley/internal/pkg/req"
	"parley/internal/pkg/resp"
)

// HandleGetMe returns the caller's own account.
func HandleGetMe(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me, err := identity.RequireUser(r.Context())
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		user, err := deps.Store.GetUserByID(r.Context(), me.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
				return
			}
			resp.RespondError(w, r, errs.Internal(err))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"user": user})
	}
}

// HandleGetUser returns the public profile of another user.
func HandleGetUser(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := deps.Store.GetUserByID(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
				return
			}
			resp.RespondError(w, r, errs.Internal(err))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"user": user.Public()})
	}
}

type UpdateStatusInput struct {
	Status string `json:"status"`
}

// HandleUpdateStatus sets the caller's presence status and broadcasts it.
func HandleUpdateStatus(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me, err := identity.RequireUser(r.Context())
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		var input UpdateStatusInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		status, err := model.ParseStatus(input.Status)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		if err := deps.Presence.SetStatus(r.Context(), me.UserID, status); err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"status": status})
	}
}
