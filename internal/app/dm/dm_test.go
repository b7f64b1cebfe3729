package dm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/app/identity"
	"parley/internal/app/model"
	"parley/internal/app/store/memstore"
	"parley/internal/pkg/errs"
)

type recorder struct {
	mu   sync.Mutex
	sent []*model.DirectMessage
}

func (r *recorder) PublishDirectMessage(m *model.DirectMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, m)
}

type env struct {
	svc   *Service
	rec   *recorder
	alice identity.Authenticated
	bob   identity.Authenticated
	carol identity.Authenticated
}

func setup(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	st := memstore.New()

	mk := func(name string) identity.Authenticated {
		u := &model.User{Username: name, Email: name + "@example.com", Status: model.StatusOffline}
		require.NoError(t, st.CreateUser(ctx, u))
		return identity.FromUser(u)
	}

	rec := &recorder{}
	return &env{svc: NewService(st, rec), rec: rec, alice: mk("alice"), bob: mk("bob"), carol: mk("carol")}
}

func TestSendRequiresUsers(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		id        identity.Identity
		recipient string
		content   string
		code      int
	}{
		{"anonymous", identity.Anonymous{}, e.bob.UserID, "hi", errs.ErrUnauthorized},
		{"guest", identity.Guest{DisplayName: "Bob"}, e.bob.UserID, "hi", errs.ErrForbidden},
		{"self", e.alice, e.alice.UserID, "hi", errs.ErrCannotMessageSelf},
		{"unknown recipient", e.alice, "5b0c0c43-6a8e-4f43-9d0a-1f7f0d1b2c3d", "hi", errs.ErrUserNotFound},
		{"empty", e.alice, e.bob.UserID, "   ", errs.ErrContentEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.Send(ctx, tt.id, tt.recipient, tt.content)
			assert.True(t, errs.HasCode(err, tt.code), "got %v", err)
		})
	}
	assert.Empty(t, e.rec.sent)
}

func TestConversationScenario(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	m, err := e.svc.Send(ctx, e.alice, e.bob.UserID, " hello bob ")
	require.NoError(t, err)
	assert.Equal(t, "hello bob", m.Content)
	assert.False(t, m.Read)
	require.Len(t, e.rec.sent, 1)
	assert.Equal(t, m.ID, e.rec.sent[0].ID)

	forAlice, err := e.svc.Conversations(ctx, e.alice)
	require.NoError(t, err)
	require.Len(t, forAlice, 1)
	assert.Equal(t, e.bob.UserID, forAlice[0].UserID)
	assert.Equal(t, "bob", forAlice[0].Username)
	assert.Equal(t, m.ID, forAlice[0].LastMessage.ID)
	assert.Equal(t, 0, forAlice[0].UnreadCount)

	forBob, err := e.svc.Conversations(ctx, e.bob)
	require.NoError(t, err)
	require.Len(t, forBob, 1)
	assert.Equal(t, e.alice.UserID, forBob[0].UserID)
	assert.Equal(t, m.ID, forBob[0].LastMessage.ID)
	assert.False(t, forBob[0].LastMessage.Read)
	assert.Equal(t, 1, forBob[0].UnreadCount)

	_, err = e.svc.MarkRead(ctx, e.alice, m.ID)
	assert.True(t, errs.HasCode(err, errs.ErrForbidden))

	read, err := e.svc.MarkRead(ctx, e.bob, m.ID)
	require.NoError(t, err)
	assert.True(t, read.Read)

	read, err = e.svc.MarkRead(ctx, e.bob, m.ID)
	require.NoError(t, err)
	assert.True(t, read.Read)

	forBob, err = e.svc.Conversations(ctx, e.bob)
	require.NoError(t, err)
	assert.Equal(t, 0, forBob[0].UnreadCount)
	assert.True(t, forBob[0].LastMessage.Read)
}

func TestConversationsNewestFirst(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	_, err := e.svc.Send(ctx, e.bob, e.alice.UserID, "from bob")
	require.NoError(t, err)
	_, err = e.svc.Send(ctx, e.carol, e.alice.UserID, "from carol")
	require.NoError(t, err)

	convs, err := e.svc.Conversations(ctx, e.alice)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, e.carol.UserID, convs[0].UserID)
	assert.Equal(t, e.bob.UserID, convs[1].UserID)
}

func TestHistory(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	for _, c := range []string{"one", "two", "three"} {
		_, err := e.svc.Send(ctx, e.alice, e.bob.UserID, c)
		require.NoError(t, err)
	}
	_, err := e.svc.Send(ctx, e.carol, e.bob.UserID, "elsewhere")
	require.NoError(t, err)

	msgs, err := e.svc.History(ctx, e.bob, e.alice.UserID, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "three", msgs[2].Content)

	msgs, err = e.svc.History(ctx, e.bob, e.alice.UserID, time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Content)

	_, err = e.svc.History(ctx, identity.Guest{DisplayName: "Bob"}, e.alice.UserID, time.Time{}, 0)
	assert.True(t, errs.HasCode(err, errs.ErrForbidden))
}

func TestMarkReadMissing(t *testing.T) {
	e := setup(t)
	_, err := e.svc.MarkRead(context.Background(), e.bob, "5b0c0c43-6a8e-4f43-9d0a-1f7f0d1b2c3d")
	assert.True(t, errs.HasCode(err, errs.ErrMessageNotFound))
}
