/*
Package chat is the real-time core: the connection registry and fanout router.

A Hub owns every live connection, the user id index, and the channel rooms that
connections subscribe to. Subscriptions are transient and separate from persisted
membership. Outbound channel events go through a single ordered queue drained by
Run, so every subscriber observes one channel's events in publish order.
*/
package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"parley/internal/app/identity"
	"parley/internal/app/model"
	"parley/internal/app/policy"
	"parley/internal/app/store"
	"parley/internal/pkg/errs"
	"parley/internal/pkg/keymutex"
	"parley/internal/pkg/logx"
)

const (
	// eventQueueSize is the capacity of the ordered outbound queue.
	eventQueueSize = 1024

	// DefaultMaxConnections caps live connections when no limit is configured.
	DefaultMaxConnections = 10000

	presenceTimeout = 5 * time.Second
)

// ChannelLookup loads channels for subscription checks.
type ChannelLookup interface {
	GetChannel(ctx context.Context, id string) (*model.Channel, error)
}

// PresenceHandler receives connection lifecycle and activity signals for registered users.
type PresenceHandler interface {
	Connected(ctx context.Context, userID string, at time.Time)
	Disconnected(ctx context.Context, userID string, at time.Time)
	Activity(ctx context.Context, userID string, at time.Time)
	SetStatus(ctx context.Context, userID string, status model.Status) error
}

// Poster is the message pipeline as seen from a socket.
type Poster interface {
	Post(ctx context.Context, id identity.Identity, channelID, content, guestName string) (*model.Message, error)
}

type targetKind int

const (
	toRoom targetKind = iota
	toUsers
	toAll
	closeRoom
)

// outbound is one entry in the ordered delivery queue.
type outbound struct {
	kind      targetKind
	channelID string
	userIDs   []string
	except    *Client
	data      []byte
}

// Hub is the connection registry. Construct it with NewHub and start Run.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]*Client
	byUser map[string]map[*Client]struct{}
	rooms  map[string]map[*Client]struct{}

	maxConns int

	// locks is shared with membership so subscribe and leave are linearized per channel.
	locks *keymutex.KeyMutex

	channels ChannelLookup
	presence PresenceHandler
	poster   Poster

	events chan outbound
	done   chan struct{}
	closed bool

	logger zerolog.Logger
}

// NewHub creates a Hub. locks must be the per-channel lock set used by the
// membership service; nil selects a private one. maxConns <= 0 selects
// DefaultMaxConnections.
func NewHub(channels ChannelLookup, locks *keymutex.KeyMutex, maxConns int) *Hub {
	if maxConns <= 0 {
		maxConns = DefaultMaxConnections
	}
	if locks == nil {
		locks = &keymutex.KeyMutex{}
	}
	return &Hub{
		locks:    locks,
		conns:    make(map[string]*Client),
		byUser:   make(map[string]map[*Client]struct{}),
		rooms:    make(map[string]map[*Client]struct{}),
		maxConns: maxConns,
		channels: channels,
		events:   make(chan outbound, eventQueueSize),
		done:     make(chan struct{}),
		logger:   logx.Component("hub"),
	}
}

// UsePresence installs the presence tracker. Call before Run.
func (h *Hub) UsePresence(p PresenceHandler) { h.presence = p }

// UsePoster installs the message pipeline used for inbound message events. Call before Run.
func (h *Hub) UsePoster(p Poster) { h.poster = p }

// Run drains the outbound queue until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info().Msg("Hub started")

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case ev := <-h.events:
			h.dispatch(ev)
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	h.closed = true
	close(h.done)
	clients := make([]*Client, 0, len(h.conns))
	for _, c := range h.conns {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.Unregister(c)
	}

	h.logger.Info().Int("disconnected", len(clients)).Msg("Hub stopped")
}

// Full reports whether the connection cap is reached.
func (h *Hub) Full() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns) >= h.maxConns
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Subscribers returns the number of connections subscribed to channelID.
func (h *Hub) Subscribers(channelID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[channelID])
}

// Register adds c to the registry. The first connection of a registered user
// marks the user online.
func (h *Hub) Register(c *Client) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return errs.NewError(errs.ErrConnectionLimitExceed)
	}
	if len(h.conns) >= h.maxConns {
		h.mu.Unlock()
		h.logger.Warn().Int("max_connections", h.maxConns).Msg("Connection limit reached, rejecting client")
		return errs.NewError(errs.ErrConnectionLimitExceed)
	}

	h.conns[c.id] = c

	first := false
	at := time.Now()
	if uid, ok := identity.UserID(c.identity); ok {
		set, exists := h.byUser[uid]
		if !exists {
			set = make(map[*Client]struct{})
			h.byUser[uid] = set
		}
		set[c] = struct{}{}
		first = len(set) == 1
	}
	total := len(h.conns)
	h.mu.Unlock()

	c.logger.Info().Int("total_connections", total).Msg("Client registered")

	if first && h.presence != nil {
		uid, _ := identity.UserID(c.identity)
		ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
		defer cancel()
		h.presence.Connected(ctx, uid, at)
	}
	return nil
}

// Unregister removes c and all of its room subscriptions and closes its send
// queue. It is idempotent. The last connection of a registered user marks the
// user offline.
func (h *Hub) Unregister(c *Client) {
	if uid, at, last := h.remove(c); last {
		h.notifyDisconnected(uid, at)
	}
}

// remove reports the user id and time when c was the user's last connection.
func (h *Hub) remove(c *Client) (string, time.Time, bool) {
	h.mu.Lock()
	if h.conns[c.id] != c {
		h.mu.Unlock()
		return "", time.Time{}, false
	}
	delete(h.conns, c.id)

	for channelID := range c.rooms {
		h.removeFromRoomLocked(c, channelID)
	}

	last := false
	at := time.Now()
	uid, isUser := identity.UserID(c.identity)
	if isUser {
		if set, exists := h.byUser[uid]; exists {
			delete(set, c)
			if len(set) == 0 {
				delete(h.byUser, uid)
				last = true
			}
		}
	}
	close(c.send)
	total := len(h.conns)
	h.mu.Unlock()

	c.logger.Info().Int("total_connections", total).Msg("Client unregistered")
	return uid, at, last
}

func (h *Hub) notifyDisconnected(userID string, at time.Time) {
	if h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	h.presence.Disconnected(ctx, userID, at)
}

func (h *Hub) removeFromRoomLocked(c *Client, channelID string) {
	delete(c.rooms, channelID)
	if room, ok := h.rooms[channelID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, channelID)
		}
	}
}

// Subscribe adds c to the channel's room after a read check. Subscribing twice
// is a no-op. No persisted membership is created. The check and the insert run
// under the channel lock, so a concurrent leave either sees the new subscription
// and revokes it or happens before the check.
func (h *Hub) Subscribe(ctx context.Context, c *Client, channelID string) error {
	h.locks.Lock(channelID)
	defer h.locks.Unlock(channelID)

	ch, err := h.channels.GetChannel(ctx, channelID)
	if errors.Is(err, store.ErrNotFound) {
		return errs.NewError(errs.ErrChannelNotFound)
	}
	if err != nil {
		return errs.Internal(fmt.Errorf("hub.Subscribe: %w", err))
	}
	if !policy.CanRead(c.identity, ch) {
		return errs.NewError(errs.ErrForbidden)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conns[c.id] != c {
		return nil
	}
	room, ok := h.rooms[channelID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[channelID] = room
	}
	room[c] = struct{}{}
	c.rooms[channelID] = struct{}{}
	return nil
}

// Unsubscribe removes c from the channel's room. It is idempotent.
func (h *Hub) Unsubscribe(c *Client, channelID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromRoomLocked(c, channelID)
}

// IsSubscribed reports whether c is in the channel's room.
func (h *Hub) IsSubscribed(c *Client, channelID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[channelID]
	return ok
}

// RevokeSubscriptions drops every connection of userID from the channel's room.
func (h *Hub) RevokeSubscriptions(userID, channelID string) {
	data, err := encode(EventUnsubscribed, SubscriptionPayload{ChannelID: channelID, Reason: ReasonRevoked}, "")
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode unsubscribed event")
		return
	}

	var slow []*Client
	h.mu.Lock()
	for c := range h.byUser[userID] {
		if _, ok := c.rooms[channelID]; !ok {
			continue
		}
		h.removeFromRoomLocked(c, channelID)
		if !c.offer(data) {
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	h.dropSlow(slow)
}

// PublishMessage queues a channel message for every subscriber of its channel,
// the sender's own connections included.
func (h *Hub) PublishMessage(m *model.Message) {
	h.enqueueEncoded(outbound{kind: toRoom, channelID: m.ChannelID}, EventMessage, m)
}

// PublishMessageDeleted queues a message_deleted event for the channel's subscribers.
func (h *Hub) PublishMessageDeleted(channelID, messageID string) {
	h.enqueueEncoded(outbound{kind: toRoom, channelID: channelID}, EventMessageDeleted,
		MessageDeletedPayload{ChannelID: channelID, MessageID: messageID})
}

// PublishDirectMessage queues a direct message for every connection of both participants.
func (h *Hub) PublishDirectMessage(dm *model.DirectMessage) {
	users := []string{dm.SenderID, dm.RecipientID}
	h.enqueueEncoded(outbound{kind: toUsers, userIDs: users}, EventDirectMessage, dm)
}

// BroadcastUserStatus queues a user_status event for every connection.
func (h *Hub) BroadcastUserStatus(userID string, status model.Status, at time.Time) {
	h.enqueueEncoded(outbound{kind: toAll}, EventUserStatus,
		UserStatusPayload{UserID: userID, Status: status, LastSeen: at})
}

// PublishTyping queues a typing event for the channel's subscribers except from.
func (h *Hub) PublishTyping(from *Client, channelID string) {
	payload := TypingPayload{ChannelID: channelID}
	switch id := from.identity.(type) {
	case identity.Authenticated:
		payload.UserID = id.UserID
		payload.Username = id.Username
	case identity.Guest:
		payload.Username = id.DisplayName
	case identity.Anonymous:
		return
	}
	h.enqueueEncoded(outbound{kind: toRoom, channelID: channelID, except: from}, EventTyping, payload)
}

// CloseRoom queues the removal of a channel's room. Subscribers receive an
// unsubscribed event after every event queued before it.
func (h *Hub) CloseRoom(channelID string) {
	h.enqueueEncoded(outbound{kind: closeRoom, channelID: channelID}, EventUnsubscribed,
		SubscriptionPayload{ChannelID: channelID, Reason: ReasonDeleted})
}

func (h *Hub) enqueueEncoded(ev outbound, t EventType, payload any) {
	data, err := encode(t, payload, "")
	if err != nil {
		h.logger.Error().Err(err).Str("event", string(t)).Msg("Failed to encode event")
		return
	}
	ev.data = data
	h.enqueue(ev)
}

// enqueue blocks while the queue is full so that publish order is never lost.
func (h *Hub) enqueue(ev outbound) {
	select {
	case h.events <- ev:
	case <-h.done:
	}
}

// dispatch delivers one queued event. Clients whose send buffer is full are
// disconnected.
func (h *Hub) dispatch(ev outbound) {
	var slow []*Client

	if ev.kind == closeRoom {
		h.mu.Lock()
		for c := range h.rooms[ev.channelID] {
			delete(c.rooms, ev.channelID)
			if !c.offer(ev.data) {
				slow = append(slow, c)
			}
		}
		delete(h.rooms, ev.channelID)
		h.mu.Unlock()

		h.dropSlow(slow)
		return
	}

	h.mu.RLock()
	switch ev.kind {
	case toRoom:
		for c := range h.rooms[ev.channelID] {
			if c == ev.except {
				continue
			}
			if !c.offer(ev.data) {
				slow = append(slow, c)
			}
		}
	case toUsers:
		seen := make(map[*Client]struct{})
		for _, uid := range ev.userIDs {
			for c := range h.byUser[uid] {
				if _, dup := seen[c]; dup {
					continue
				}
				seen[c] = struct{}{}
				if !c.offer(ev.data) {
					slow = append(slow, c)
				}
			}
		}
	case toAll:
		for _, c := range h.conns {
			if !c.offer(ev.data) {
				slow = append(slow, c)
			}
		}
	}
	h.mu.RUnlock()

	h.dropSlow(slow)
}

// dropSlow disconnects clients that could not keep up. Presence updates run on
// their own goroutine because they publish through the queue dispatch drains.
func (h *Hub) dropSlow(slow []*Client) {
	for _, c := range slow {
		c.logger.Warn().Msg("Client send buffer full, disconnecting")
		if uid, at, last := h.remove(c); last {
			go h.notifyDisconnected(uid, at)
		}
	}
}

// sendTo delivers data to one registered client outside the ordered queue.
func (h *Hub) sendTo(c *Client, data []byte) {
	h.mu.RLock()
	ok := h.conns[c.id] == c && c.offer(data)
	registered := h.conns[c.id] == c
	h.mu.RUnlock()

	if registered && !ok {
		h.dropSlow([]*Client{c})
	}
}
