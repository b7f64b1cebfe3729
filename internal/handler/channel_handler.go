/*
Package handler provides HTTP handler functions for channels, their membership and their messages.
*/
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"parley/internal/app/channel"
	"parley/internal/app/identity"
	"parley/internal/pkg/errs"
	"parley/internal/pkg/req"
	"parley/internal/pkg/resp"
)

// HandleCreateChannel creates a channel owned by the caller.
func HandleCreateChannel(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input channel.CreateInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		ch, err := deps.Channels.Create(r.Context(), identity.FromContext(r.Context()), input)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondCreated(w, r, map[string]any{"channel": ch})
	}
}

// HandleListChannels lists the channels visible to the caller.
func HandleListChannels(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channels, err := deps.Channels.List(r.Context(), identity.FromContext(r.Context()))
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"channels": channels})
	}
}

func HandleGetChannel(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, err := deps.Channels.Get(r.Context(), identity.FromContext(r.Context()), chi.URLParam(r, "channelID"))
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"channel": ch})
	}
}

func HandleDeleteChannel(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channelID := chi.URLParam(r, "channelID")
		if err := deps.Channels.Delete(r.Context(), identity.FromContext(r.Context()), channelID); err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"id": channelID})
	}
}

// HandleJoinChannel adds the caller to the channel's members.
func HandleJoinChannel(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, err := deps.Members.Join(r.Context(), chi.URLParam(r, "channelID"), identity.FromContext(r.Context()))
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"channel": ch})
	}
}

// HandleLeaveChannel removes the caller from the channel's members.
func HandleLeaveChannel(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, err := deps.Members.Leave(r.Context(), chi.URLParam(r, "channelID"), identity.FromContext(r.Context()))
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"channel": ch})
	}
}

// parseBefore reads the optional `before` cursor, an RFC 3339 timestamp.
func parseBefore(r *http.Request) (time.Time, error) {
	v := r.URL.Query().Get("before")
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, errs.NewError(errs.ErrInvalidParams)
	}
	return t, nil
}

// HandleListMessages returns a page of channel history, oldest first.
func HandleListMessages(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		before, err := parseBefore(r)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		msgs, err := deps.Messages.List(r.Context(), identity.FromContext(r.Context()),
			chi.URLParam(r, "channelID"), before, req.QueryInt(r, "limit", 0))
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"messages": msgs})
	}
}

type PostMessageInput struct {
	Content   string `json:"content"`
	GuestName string `json:"guestName,omitempty"`
}

// HandlePostMessage posts a message. Guests and anonymous callers supply guestName.
func HandlePostMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input PostMessageInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		msg, err := deps.Messages.Post(r.Context(), identity.FromContext(r.Context()),
			chi.URLParam(r, "channelID"), input.Content, input.GuestName)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondCreated(w, r, map[string]any{"message": msg})
	}
}

func HandleDeleteMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		messageID := chi.URLParam(r, "messageID")
		err := deps.Messages.Delete(r.Context(), identity.FromContext(r.Context()), chi.URLParam(r, "channelID"), messageID)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"id": messageID})
	}
}
