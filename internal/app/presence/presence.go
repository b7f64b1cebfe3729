/*
Package presence tracks online, away and offline status for registered users.

Transitions for one user are applied in timestamp order: a transition stamped
earlier than the last applied one is discarded. Every applied transition is
persisted and then broadcast to all live connections.
*/
package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"parley/internal/app/model"
	"parley/internal/pkg/errs"
	"parley/internal/pkg/keymutex"
	"parley/internal/pkg/logx"
)

const DefaultAwayTimeout = 5 * time.Minute

// Persister stores a user's presence.
type Persister interface {
	UpdatePresence(ctx context.Context, id string, status model.Status, at time.Time) error
}

// StatusBroadcaster fans a presence change out to every connection.
type StatusBroadcaster interface {
	BroadcastUserStatus(userID string, status model.Status, at time.Time)
}

type state struct {
	status    model.Status
	stamp     time.Time
	activity  time.Time
	connected bool

	// manual is set by an explicit status change and suspends automatic away/online.
	manual bool
}

// Tracker implements the presence state machine.
type Tracker struct {
	store       Persister
	broadcaster StatusBroadcaster
	awayTimeout time.Duration

	locks keymutex.KeyMutex

	mu     sync.Mutex
	states map[string]*state

	now    func() time.Time
	logger zerolog.Logger
}

func NewTracker(store Persister, broadcaster StatusBroadcaster, awayTimeout time.Duration) *Tracker {
	if awayTimeout <= 0 {
		awayTimeout = DefaultAwayTimeout
	}
	return &Tracker{
		store:       store,
		broadcaster: broadcaster,
		awayTimeout: awayTimeout,
		states:      make(map[string]*state),
		now:         time.Now,
		logger:      logx.Component("presence"),
	}
}

// UseBroadcaster sets the broadcaster after construction.
func (t *Tracker) UseBroadcaster(b StatusBroadcaster) { t.broadcaster = b }

// Status returns the tracked status of userID.
func (t *Tracker) Status(userID string) (model.Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[userID]
	if !ok {
		return model.StatusOffline, false
	}
	return st.status, true
}

// Connected marks the user online when their first connection opens.
func (t *Tracker) Connected(ctx context.Context, userID string, at time.Time) {
	_ = t.apply(ctx, userID, at, func(st *state) (model.Status, bool) {
		st.connected = true
		st.manual = false
		st.activity = at
		return model.StatusOnline, true
	})
}

// Disconnected marks the user offline when their last connection closes.
func (t *Tracker) Disconnected(ctx context.Context, userID string, at time.Time) {
	_ = t.apply(ctx, userID, at, func(st *state) (model.Status, bool) {
		st.connected = false
		st.manual = false
		return model.StatusOffline, true
	})
}

// Activity records client input. A user who went away automatically comes back online.
func (t *Tracker) Activity(ctx context.Context, userID string, at time.Time) {
	t.mu.Lock()
	st, ok := t.states[userID]
	if !ok || !st.connected {
		t.mu.Unlock()
		return
	}
	if at.After(st.activity) {
		st.activity = at
	}
	back := st.status == model.StatusAway && !st.manual
	t.mu.Unlock()

	if !back {
		return
	}
	_ = t.apply(ctx, userID, at, func(st *state) (model.Status, bool) {
		if !st.connected || st.manual || st.status != model.StatusAway {
			return "", false
		}
		return model.StatusOnline, true
	})
}

// SetStatus applies a status chosen by the user. It stays in effect until the
// user changes it again or the last connection closes.
func (t *Tracker) SetStatus(ctx context.Context, userID string, status model.Status) error {
	at := t.now()
	return t.apply(ctx, userID, at, func(st *state) (model.Status, bool) {
		st.manual = status != model.StatusOnline
		st.activity = at
		return status, true
	})
}

// Run sweeps for idle users until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	interval := t.awayTimeout / 10
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	t.logger.Info().Dur("away_timeout", t.awayTimeout).Msg("Presence sweeper started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info().Msg("Presence sweeper stopped")
			return
		case <-ticker.C:
			t.sweep(ctx, t.now())
		}
	}
}

// sweep marks connected users without input for awayTimeout as away and forgets
// disconnected users. A disconnected user whose last status was not offline, as
// after a status change made without a live connection, is set offline first.
// It returns the number of users marked away.
func (t *Tracker) sweep(ctx context.Context, now time.Time) int {
	var idle, stale []string

	t.mu.Lock()
	for uid, st := range t.states {
		switch {
		case !st.connected && now.Sub(st.stamp) > t.awayTimeout:
			if st.status == model.StatusOffline {
				delete(t.states, uid)
				continue
			}
			stale = append(stale, uid)
		case st.connected && !st.manual && st.status == model.StatusOnline && now.Sub(st.activity) >= t.awayTimeout:
			idle = append(idle, uid)
		}
	}
	t.mu.Unlock()

	for _, uid := range stale {
		err := t.apply(ctx, uid, now, func(st *state) (model.Status, bool) {
			if st.connected || st.status == model.StatusOffline {
				return "", false
			}
			st.manual = false
			return model.StatusOffline, true
		})
		if err != nil {
			continue
		}

		t.mu.Lock()
		if st, ok := t.states[uid]; ok && !st.connected && st.status == model.StatusOffline {
			delete(t.states, uid)
		}
		t.mu.Unlock()
	}

	marked := 0
	for _, uid := range idle {
		err := t.apply(ctx, uid, now, func(st *state) (model.Status, bool) {
			if !st.connected || st.manual || st.status != model.StatusOnline || now.Sub(st.activity) < t.awayTimeout {
				return "", false
			}
			marked++
			return model.StatusAway, true
		})
		if err != nil {
			marked--
		}
	}

	if marked > 0 {
		t.logger.Debug().Int("count", marked).Msg("Marked idle users away")
	}
	if len(stale) > 0 {
		t.logger.Debug().Int("count", len(stale)).Msg("Reset disconnected users to offline")
	}
	return marked
}

// apply runs one transition for userID under the user's lock. next mutates the
// state and returns the target status, or false to skip. Transitions older than
// the last applied one are discarded.
func (t *Tracker) apply(ctx context.Context, userID string, at time.Time, next func(*state) (model.Status, bool)) error {
	t.locks.Lock(userID)
	defer t.locks.Unlock(userID)

	t.mu.Lock()
	st, ok := t.states[userID]
	if !ok {
		st = &state{status: model.StatusOffline}
		t.states[userID] = st
	}
	if at.Before(st.stamp) {
		t.mu.Unlock()
		t.logger.Debug().Str("user_id", userID).Msg("Discarding stale presence transition")
		return nil
	}
	prev := *st
	status, ok := next(st)
	if !ok {
		*st = prev
		t.mu.Unlock()
		return nil
	}
	changed := status != st.status
	st.status = status
	st.stamp = at
	t.mu.Unlock()

	if err := t.store.UpdatePresence(ctx, userID, status, at); err != nil {
		t.mu.Lock()
		if cur, ok := t.states[userID]; ok && cur.stamp.Equal(at) {
			*cur = prev
		}
		t.mu.Unlock()
		return errs.Internal(fmt.Errorf("presence.apply: %w", err))
	}

	if changed && t.broadcaster != nil {
		t.broadcaster.BroadcastUserStatus(userID, status, at)
	}

	t.logger.Debug().Str("user_id", userID).Str("status", string(status)).Bool("changed", changed).Msg("Presence updated")
	return nil
}
