/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"parley/internal/app/chat"
	"parley/internal/app/identity"
	"parley/internal/pkg/auth/jwt"
	"parley/internal/pkg/errs"
	"parley/internal/pkg/limiter"
	"parley/internal/pkg/logx"
	"parley/internal/pkg/resp"
)

// HandleWebSocket resolves the caller's identity strictly, upgrades the
// connection and runs the client until it disconnects.
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader, rateLimiter *limiter.KeyedLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := limiter.ClientIP(r)
		if !rateLimiter.Allow(ip) {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		id, err := deps.Resolver.Resolve(r.Context(), jwt.TokenFromRequest(r), identity.Strict)
		if err != nil {
			logx.Info("WebSocket connection rejected: identity not resolved.")
			resp.RespondErr(w, r, err)
			return
		}

		if deps.Hub.Full() {
			logx.Warn("WebSocket connection rejected: Server is at capacity.")
			resp.RespondError(w, r, errs.NewError(errs.ErrConnectionLimitExceed))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client := chat.NewClient(deps.Hub, conn, id)

		if err := deps.Hub.Register(client); err != nil {
			customErr := errs.As(err)
			msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, customErr.Message)
			_ = conn.WriteMessage(websocket.CloseMessage, msg)
			_ = conn.Close()
			return
		}

		go client.WritePump()

		logx.Info("WebSocket connection established and client registered", "conn_id", client.ID(), "identity", identity.Kind(id))

		client.ReadPump()
	}
}
