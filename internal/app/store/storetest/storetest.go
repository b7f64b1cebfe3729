/*
Package storetest holds the behavioural contract shared by every store.Store implementation.
*/
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/app/model"
	"parley/internal/app/store"
)

// Run exercises s. Each call needs a fresh, empty store.
func Run(t *testing.T, s store.Store) {
	ctx := context.Background()

	alice := &model.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x", Preferences: model.DefaultPreferences()}
	bob := &model.User{Username: "bob", Email: "bob@example.com", PasswordHash: "x", Preferences: model.DefaultPreferences()}

	t.Run("users", func(t *testing.T) {
		require.NoError(t, s.CreateUser(ctx, alice))
		require.NoError(t, s.CreateUser(ctx, bob))
		assert.NotEmpty(t, alice.ID)
		assert.False(t, alice.CreatedAt.IsZero())

		dup := &model.User{Username: "alice", Email: "other@example.com", PasswordHash: "x"}
		assert.ErrorIs(t, s.CreateUser(ctx, dup), store.ErrDuplicate)

		got, err := s.GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)
		assert.Equal(t, "x", got.PasswordHash)
		assert.Equal(t, model.StatusOffline, got.Status)

		_, err = s.GetUserByID(ctx, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, store.ErrNotFound)

		at := time.Now().UTC().Truncate(time.Millisecond)
		require.NoError(t, s.UpdatePresence(ctx, alice.ID, model.StatusAway, at))
		got, err = s.GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusAway, got.Status)
		assert.True(t, got.IsOnline)
		assert.WithinDuration(t, at, got.LastSeen, time.Millisecond)
	})

	general := &model.Channel{Name: "general", CreatedBy: alice.ID, Members: []string{alice.ID}}

	t.Run("channels and membership", func(t *testing.T) {
		require.NoError(t, s.CreateChannel(ctx, general))
		assert.NotEmpty(t, general.ID)

		assert.ErrorIs(t, s.CreateChannel(ctx, &model.Channel{Name: "general", CreatedBy: bob.ID, Members: []string{bob.ID}}), store.ErrDuplicate)

		require.NoError(t, s.AddMember(ctx, general.ID, bob.ID))
		assert.ErrorIs(t, s.AddMember(ctx, general.ID, bob.ID), store.ErrAlreadyMember)

		got, err := s.GetChannel(ctx, general.ID)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{alice.ID, bob.ID}, got.Members)

		require.NoError(t, s.RemoveMember(ctx, general.ID, bob.ID))
		assert.ErrorIs(t, s.RemoveMember(ctx, general.ID, bob.ID), store.ErrNotMember)

		list, err := s.ListChannels(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "general", list[0].Name)

		_, err = s.GetChannel(ctx, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("concurrent adds are atomic", func(t *testing.T) {
		ch := &model.Channel{Name: "race", CreatedBy: alice.ID, Members: []string{alice.ID}}
		require.NoError(t, s.CreateChannel(ctx, ch))

		var wg sync.WaitGroup
		results := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results <- s.AddMember(ctx, ch.ID, bob.ID)
			}()
		}
		wg.Wait()
		close(results)

		ok := 0
		for err := range results {
			if err == nil {
				ok++
				continue
			}
			assert.ErrorIs(t, err, store.ErrAlreadyMember)
		}
		assert.Equal(t, 1, ok)

		got, err := s.GetChannel(ctx, ch.ID)
		require.NoError(t, err)
		assert.Len(t, got.Members, 2)
	})

	t.Run("messages keep insertion order", func(t *testing.T) {
		var ids []string
		for i := 0; i < 5; i++ {
			sender := model.UserSender(alice.ID, alice.Username)
			if i%2 == 1 {
				sender = model.GuestSender("Bob")
			}
			m := &model.Message{ChannelID: general.ID, Content: fmt.Sprintf("m%d", i), Sender: sender}
			require.NoError(t, s.InsertMessage(ctx, m))
			assert.NotEmpty(t, m.ID)
			ids = append(ids, m.ID)
		}

		list, err := s.ListMessages(ctx, general.ID, time.Time{}, 50)
		require.NoError(t, err)
		require.Len(t, list, 5)
		for i, m := range list {
			assert.Equal(t, ids[i], m.ID)
		}
		assert.Equal(t, model.GuestSender("Bob"), list[1].Sender)
		assert.Equal(t, model.UserSender(alice.ID, "alice"), list[0].Sender)

		last2, err := s.ListMessages(ctx, general.ID, time.Time{}, 2)
		require.NoError(t, err)
		require.Len(t, last2, 2)
		assert.Equal(t, ids[4], last2[1].ID)

		require.NoError(t, s.DeleteMessage(ctx, ids[0]))
		_, err = s.GetMessage(ctx, ids[0])
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, s.DeleteMessage(ctx, ids[0]), store.ErrNotFound)
	})

	t.Run("direct messages and conversations", func(t *testing.T) {
		first := &model.DirectMessage{SenderID: alice.ID, RecipientID: bob.ID, Content: "hi bob"}
		require.NoError(t, s.InsertDirectMessage(ctx, first))
		second := &model.DirectMessage{SenderID: bob.ID, RecipientID: alice.ID, Content: "hi alice"}
		require.NoError(t, s.InsertDirectMessage(ctx, second))
		assert.False(t, second.Read)

		history, err := s.ListDirectMessages(ctx, bob.ID, alice.ID, time.Time{}, 50)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, first.ID, history[0].ID)

		convs, err := s.ListConversations(ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, convs, 1)
		assert.Equal(t, bob.ID, convs[0].UserID)
		assert.Equal(t, "bob", convs[0].Username)
		assert.Equal(t, second.ID, convs[0].LastMessage.ID)
		assert.Equal(t, 1, convs[0].UnreadCount)

		require.NoError(t, s.MarkRead(ctx, second.ID))
		require.NoError(t, s.MarkRead(ctx, second.ID))
		got, err := s.GetDirectMessage(ctx, second.ID)
		require.NoError(t, err)
		assert.True(t, got.Read)

		convs, err = s.ListConversations(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, convs[0].UnreadCount)

		assert.ErrorIs(t, s.MarkRead(ctx, "00000000-0000-0000-0000-000000000000"), store.ErrNotFound)
	})

	t.Run("delete channel", func(t *testing.T) {
		require.NoError(t, s.DeleteChannel(ctx, general.ID))
		_, err := s.GetChannel(ctx, general.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, s.DeleteChannel(ctx, general.ID), store.ErrNotFound)
	})
}
