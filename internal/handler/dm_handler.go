package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"parley/internal/app/identity"
	"parley/internal/pkg/req"
	"parley/internal/pkg/resp"
)

// HandleListConversations returns the caller's conversations, most recent first.
func HandleListConversations(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		convs, err := deps.DMs.Conversations(r.Context(), identity.FromContext(r.Context()))
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"conversations": convs})
	}
}

// HandleDirectHistory returns the messages exchanged with another user.
func HandleDirectHistory(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		before, err := parseBefore(r)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		msgs, err := deps.DMs.History(r.Context(), identity.FromContext(r.Context()),
			chi.URLParam(r, "id"), before, req.QueryInt(r, "limit", 0))
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"messages": msgs})
	}
}

type SendDirectInput struct {
	Content string `json:"content"`
}

func HandleSendDirect(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input SendDirectInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		msg, err := deps.DMs.Send(r.Context(), identity.FromContext(r.Context()), chi.URLParam(r, "id"), input.Content)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondCreated(w, r, map[string]any{"message": msg})
	}
}

// HandleMarkRead flags a received direct message as read.
func HandleMarkRead(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msg, err := deps.DMs.MarkRead(r.Context(), identity.FromContext(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"message": msg})
	}
}
