/*
Package memstore is an in-memory store.Store used by the memory storage driver and by tests.
*/
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"parley/internal/app/model"
	"parley/internal/app/store"
)

// Store keeps every collection in maps guarded by one RWMutex.
type Store struct {
	mu sync.RWMutex

	users    map[string]*model.User
	channels map[string]*model.Channel
	messages map[string]*model.Message
	dms      map[string]*model.DirectMessage

	// insertion order, used as a tie-break for equal timestamps
	seq    int64
	msgSeq map[string]int64
	dmSeq  map[string]int64

	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{
		users:    make(map[string]*model.User),
		channels: make(map[string]*model.Channel),
		messages: make(map[string]*model.Message),
		dms:      make(map[string]*model.DirectMessage),
		msgSeq:   make(map[string]int64),
		dmSeq:    make(map[string]int64),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Close() {}

// Users

func (s *Store) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Username, u.Username) || strings.EqualFold(existing.Email, u.Email) {
			return store.ErrDuplicate
		}
	}

	u.ID = uuid.NewString()
	u.CreatedAt = s.now()
	if u.Status == "" {
		u.Status = model.StatusOffline
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdatePresence(_ context.Context, id string, status model.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.Status = status
	u.IsOnline = status != model.StatusOffline
	u.LastSeen = at
	return nil
}

// Channels

func (s *Store) CreateChannel(_ context.Context, c *model.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.channels {
		if strings.EqualFold(existing.Name, c.Name) {
			return store.ErrDuplicate
		}
	}

	c.ID = uuid.NewString()
	c.CreatedAt = s.now()
	s.channels[c.ID] = c.Clone()
	return nil
}

func (s *Store) GetChannel(_ context.Context, id string) (*model.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.channels[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c.Clone(), nil
}

func (s *Store) ListChannels(_ context.Context) ([]*model.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Channel, 0, len(s.channels))
	for _, c := range s.channels {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) DeleteChannel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.channels[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.channels, id)
	for mid, m := range s.messages {
		if m.ChannelID == id {
			delete(s.messages, mid)
			delete(s.msgSeq, mid)
		}
	}
	return nil
}

func (s *Store) AddMember(_ context.Context, channelID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.channels[channelID]
	if !ok {
		return store.ErrNotFound
	}
	if c.HasMember(userID) {
		return store.ErrAlreadyMember
	}
	c.Members = append(c.Members, userID)
	return nil
}

func (s *Store) RemoveMember(_ context.Context, channelID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.channels[channelID]
	if !ok {
		return store.ErrNotFound
	}
	for i, id := range c.Members {
		if id == userID {
			c.Members = append(c.Members[:i], c.Members[i+1:]...)
			return nil
		}
	}
	return store.ErrNotMember
}

// Messages

func (s *Store) InsertMessage(_ context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.channels[m.ChannelID]; !ok {
		return store.ErrNotFound
	}

	m.ID = uuid.NewString()
	m.CreatedAt = s.now()
	s.seq++
	s.msgSeq[m.ID] = s.seq
	cp := *m
	s.messages[m.ID] = &cp
	return nil
}

func (s *Store) ListMessages(_ context.Context, channelID string, before time.Time, limit int) ([]*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Message, 0)
	for _, m := range s.messages {
		if m.ChannelID != channelID {
			continue
		}
		if !before.IsZero() && !m.CreatedAt.Before(before) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		return s.msgSeq[out[i].ID] < s.msgSeq[out[j].ID]
	})
	return tail(out, limit), nil
}

func (s *Store) GetMessage(_ context.Context, id string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *Store) DeleteMessage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.messages, id)
	delete(s.msgSeq, id)
	return nil
}

// Direct messages

func (s *Store) InsertDirectMessage(_ context.Context, m *model.DirectMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.ID = uuid.NewString()
	m.CreatedAt = s.now()
	m.Read = false
	s.seq++
	s.dmSeq[m.ID] = s.seq
	cp := *m
	s.dms[m.ID] = &cp
	return nil
}

func between(m *model.DirectMessage, a, b string) bool {
	return (m.SenderID == a && m.RecipientID == b) || (m.SenderID == b && m.RecipientID == a)
}

func (s *Store) ListDirectMessages(_ context.Context, a, b string, before time.Time, limit int) ([]*model.DirectMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.DirectMessage, 0)
	for _, m := range s.dms {
		if !between(m, a, b) {
			continue
		}
		if !before.IsZero() && !m.CreatedAt.Before(before) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool { return s.dmSeq[out[i].ID] < s.dmSeq[out[j].ID] })
	return tail(out, limit), nil
}

func (s *Store) ListConversations(_ context.Context, userID string) ([]*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byPeer := make(map[string]*model.Conversation)
	lastSeq := make(map[string]int64)

	for _, m := range s.dms {
		if m.SenderID != userID && m.RecipientID != userID {
			continue
		}
		peer := m.Counterparty(userID)

		conv, ok := byPeer[peer]
		if !ok {
			conv = &model.Conversation{UserID: peer}
			if u, ok := s.users[peer]; ok {
				conv.Username = u.Username
			}
			byPeer[peer] = conv
		}

		if seq := s.dmSeq[m.ID]; seq > lastSeq[peer] {
			lastSeq[peer] = seq
			cp := *m
			conv.LastMessage = &cp
		}
		if m.RecipientID == userID && !m.Read {
			conv.UnreadCount++
		}
	}

	out := make([]*model.Conversation, 0, len(byPeer))
	for _, c := range byPeer {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return lastSeq[out[i].UserID] > lastSeq[out[j].UserID] })
	return out, nil
}

func (s *Store) GetDirectMessage(_ context.Context, id string) (*model.DirectMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.dms[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *Store) MarkRead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.dms[id]
	if !ok {
		return store.ErrNotFound
	}
	m.Read = true
	return nil
}

// tail keeps the newest limit entries of an oldest-first slice.
func tail[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[len(items)-limit:]
	}
	return items
}
