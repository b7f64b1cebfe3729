package handler

import (
	"context"
	"sync"

	"parley/internal/app/channel"
	"parley/internal/app/chat"
	"parley/internal/app/dm"
	"parley/internal/app/identity"
	"parley/internal/app/membership"
	"parley/internal/app/message"
	"parley/internal/app/presence"
	"parley/internal/app/store"
	"parley/internal/configs"
	"parley/internal/pkg/keymutex"
	"parley/internal/pkg/limiter"
	"parley/internal/pkg/pow"
	"parley/internal/storage"
)

// AppDeps carries the services shared by every handler.
type AppDeps struct {
	Config *configs.AppConfig
	Store  store.Store

	Resolver *identity.Resolver
	Hub      *chat.Hub
	Presence *presence.Tracker
	Channels *channel.Service
	Members  *membership.Service
	Messages *message.Service
	DMs      *dm.Service
	Pow      *pow.Manager

	// WriteLimiter guards write endpoints, ConnectLimiter WebSocket handshakes. Both are per client IP.
	WriteLimiter   *limiter.KeyedLimiter
	ConnectLimiter *limiter.KeyedLimiter

	wg sync.WaitGroup
}

// NewAppDeps wires the chat core over st. keys backs the proof-of-work challenges.
func NewAppDeps(cfg *configs.AppConfig, st store.Store, keys storage.KeyStore) *AppDeps {
	locks := &keymutex.KeyMutex{}
	hub := chat.NewHub(st, locks, cfg.MaxWSConnections)

	tracker := presence.NewTracker(st, hub, cfg.PresenceAwayTimeout)
	hub.UsePresence(tracker)

	messages := message.NewService(st, hub)
	hub.UsePoster(messages)

	members := membership.NewService(st, locks)
	members.UseRevoker(hub)

	perMinute := limiter.PerMinute(cfg.RateLimitPerMinute)

	return &AppDeps{
		Config:   cfg,
		Store:    st,
		Resolver: identity.NewResolver(st, cfg.JWTSecret),
		Hub:      hub,
		Presence: tracker,
		Channels: channel.NewService(st, hub),
		Members:  members,
		Messages: messages,
		DMs:      dm.NewService(st, hub),
		Pow:      pow.NewManager(cfg.PowDifficulty, keys),

		WriteLimiter:   limiter.New(perMinute, WriteBurst),
		ConnectLimiter: limiter.New(perMinute, ConnectBurst),
	}
}

// Start runs the hub and the presence sweeper until ctx is cancelled.
func (d *AppDeps) Start(ctx context.Context) {
	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.Hub.Run(ctx)
	}()
	go func() {
		defer d.wg.Done()
		d.Presence.Run(ctx)
	}()
}

// Wait blocks until the loops started by Start have returned, then stops the
// rate limiters' cleanup goroutines.
func (d *AppDeps) Wait() {
	d.wg.Wait()
	d.WriteLimiter.Stop()
	d.ConnectLimiter.Stop()
}
