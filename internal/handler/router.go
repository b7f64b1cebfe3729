/*
Package handler provides the HTTP handlers and routing setup for the Parley chat server.

This file defines the main Router, applying necessary middleware like logging, CORS,
identity resolution and IP-based rate limiting before delegating requests to specific
handlers (API and WebSocket).
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"parley/internal/app/identity"
	"parley/internal/pkg/logx"
	"parley/internal/pkg/pow"
	"parley/internal/pkg/resp"
)

const (
	// WriteBurst is the burst allowed on rate limited write endpoints.
	WriteBurst = 20

	// ConnectBurst is the burst allowed on WebSocket handshakes.
	ConnectBurst = 10
)

// Router sets up the main HTTP routing table (chi.Router) for the application.
// It configures CORS and applies global and per-route middleware, including the IP-based rate limiters held by deps.
func Router(deps *AppDeps) http.Handler {
	writeLimiter := deps.WriteLimiter
	connectLimiter := deps.ConnectLimiter

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	var wsUpgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
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
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", pow.TokenHeaderKey},
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
			"service":     "Parley Chat Server",
			"connections": deps.Hub.ConnectionCount(),
		})
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(identity.Middleware(deps.Resolver, identity.Tolerant))

		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			resp.RespondSuccess(w, r, map[string]string{"status": "ok"})
		})

		api.Route("/auth", func(auth chi.Router) {
			auth.Get("/challenge", HandleGetChallenge(deps))
			auth.With(writeLimiter.Middleware).Post("/challenge", HandleSolveChallenge(deps))
			auth.With(writeLimiter.Middleware).Post("/guest", HandleGuest(deps))
			auth.With(writeLimiter.Middleware).Post("/register", HandleRegister(deps))
			auth.With(writeLimiter.Middleware).Post("/login", HandleLogin(deps))
		})

		api.Route("/users", func(users chi.Router) {
			users.Get("/me", HandleGetMe(deps))
			users.Patch("/me/status", HandleUpdateStatus(deps))
			users.Get("/{userID}", HandleGetUser(deps))
		})

		api.Route("/channels", func(channels chi.Router) {
			channels.Get("/", HandleListChannels(deps))
			channels.With(writeLimiter.Middleware).Post("/", HandleCreateChannel(deps))

			channels.Route("/{channelID}", func(ch chi.Router) {
				ch.Get("/", HandleGetChannel(deps))
				ch.Delete("/", HandleDeleteChannel(deps))
				ch.Post("/join", HandleJoinChannel(deps))
				ch.Post("/leave", HandleLeaveChannel(deps))

				ch.Get("/messages", HandleListMessages(deps))
				ch.With(writeLimiter.Middleware).Post("/messages", HandlePostMessage(deps))
				ch.Delete("/messages/{messageID}", HandleDeleteMessage(deps))
			})
		})

		api.Route("/dm", func(d chi.Router) {
			d.Get("/conversations", HandleListConversations(deps))
			d.Get("/{id}", HandleDirectHistory(deps))
			d.With(writeLimiter.Middleware).Post("/{id}", HandleSendDirect(deps))
			d.Patch("/{id}/read", HandleMarkRead(deps))
		})
	})

	r.Get("/ws", HandleWebSocket(deps, wsUpgrader, connectLimiter))

	return r
}
