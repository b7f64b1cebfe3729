package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/app/identity"
	"parley/internal/app/model"
	"parley/internal/app/store/memstore"
	"parley/internal/pkg/errs"
	"parley/internal/pkg/keymutex"
)

type presenceCall struct {
	kind   string
	userID string
	status model.Status
}

type fakePresence struct {
	mu    sync.Mutex
	calls []presenceCall
}

func (f *fakePresence) record(c presenceCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakePresence) Connected(_ context.Context, userID string, _ time.Time) {
	f.record(presenceCall{kind: "connected", userID: userID})
}

func (f *fakePresence) Disconnected(_ context.Context, userID string, _ time.Time) {
	f.record(presenceCall{kind: "disconnected", userID: userID})
}

func (f *fakePresence) Activity(_ context.Context, userID string, _ time.Time) {
	f.record(presenceCall{kind: "activity", userID: userID})
}

func (f *fakePresence) SetStatus(_ context.Context, userID string, status model.Status) error {
	f.record(presenceCall{kind: "status", userID: userID, status: status})
	return nil
}

func (f *fakePresence) kinds(userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c.userID == userID && c.kind != "activity" {
			out = append(out, c.kind)
		}
	}
	return out
}

type fixture struct {
	hub      *Hub
	store    *memstore.Store
	presence *fakePresence
	public   *model.Channel
	private  *model.Channel
}

func newFixture(t *testing.T, maxConns int) *fixture {
	t.Helper()
	ctx := context.Background()

	st := memstore.New()
	public := &model.Channel{Name: "general", CreatedBy: "alice", Members: []string{"alice"}}
	private := &model.Channel{Name: "secrets", IsPrivate: true, CreatedBy: "alice", Members: []string{"alice"}}
	require.NoError(t, st.CreateChannel(ctx, public))
	require.NoError(t, st.CreateChannel(ctx, private))

	hub := NewHub(st, nil, maxConns)
	presence := &fakePresence{}
	hub.UsePresence(presence)

	runCtx, cancel := context.WithCancel(context.Background())
	go hub.Run(runCtx)
	t.Cleanup(cancel)

	return &fixture{hub: hub, store: st, presence: presence, public: public, private: private}
}

func (f *fixture) connect(t *testing.T, id identity.Identity) *Client {
	t.Helper()
	c := NewClient(f.hub, nil, id)
	require.NoError(t, f.hub.Register(c))
	return c
}

func user(id string) identity.Authenticated {
	return identity.Authenticated{UserID: id, Username: id}
}

// next waits for the next frame queued for c.
func next(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case data, ok := <-c.send:
		require.True(t, ok, "send queue closed")
		var env Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Envelope{}
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected event: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFanoutCompleteness(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	var joined []*Client
	for i := 0; i < 4; i++ {
		c := f.connect(t, user(fmt.Sprintf("u%d", i)))
		require.NoError(t, f.hub.Subscribe(ctx, c, f.public.ID))
		joined = append(joined, c)
	}
	guest := f.connect(t, identity.Guest{DisplayName: "Bob"})
	require.NoError(t, f.hub.Subscribe(ctx, guest, f.public.ID))
	joined = append(joined, guest)

	outsider := f.connect(t, user("outsider"))

	msg := &model.Message{ID: "m1", ChannelID: f.public.ID, Content: "hello", Sender: model.UserSender("u0", "u0")}
	f.hub.PublishMessage(msg)

	for _, c := range joined {
		env := next(t, c)
		assert.Equal(t, EventMessage, env.Type)

		var got model.Message
		require.NoError(t, json.Unmarshal(env.Payload, &got))
		assert.Equal(t, "m1", got.ID)
	}
	assertSilent(t, outsider)
}

func TestChannelOrderPreserved(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	a := f.connect(t, user("a"))
	b := f.connect(t, user("b"))
	require.NoError(t, f.hub.Subscribe(ctx, a, f.public.ID))
	require.NoError(t, f.hub.Subscribe(ctx, b, f.public.ID))

	const n = 100
	go func() {
		for i := 0; i < n; i++ {
			f.hub.PublishMessage(&model.Message{ID: fmt.Sprintf("m%03d", i), ChannelID: f.public.ID, Sender: model.GuestSender("g")})
		}
	}()

	for _, c := range []*Client{a, b} {
		for i := 0; i < n; i++ {
			var got model.Message
			require.NoError(t, json.Unmarshal(next(t, c).Payload, &got))
			assert.Equal(t, fmt.Sprintf("m%03d", i), got.ID)
		}
	}
}

func TestSubscribePolicy(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	t.Run("private requires membership", func(t *testing.T) {
		c := f.connect(t, user("bob"))
		err := f.hub.Subscribe(ctx, c, f.private.ID)
		assert.True(t, errs.HasCode(err, errs.ErrForbidden))

		owner := f.connect(t, user("alice"))
		require.NoError(t, f.hub.Subscribe(ctx, owner, f.private.ID))
	})

	t.Run("guest may read public", func(t *testing.T) {
		g := f.connect(t, identity.Guest{DisplayName: "Bob"})
		require.NoError(t, f.hub.Subscribe(ctx, g, f.public.ID))
		assert.True(t, errs.HasCode(f.hub.Subscribe(ctx, g, f.private.ID), errs.ErrForbidden))
	})

	t.Run("idempotent", func(t *testing.T) {
		c := f.connect(t, user("carol"))
		before := f.hub.Subscribers(f.public.ID)
		require.NoError(t, f.hub.Subscribe(ctx, c, f.public.ID))
		require.NoError(t, f.hub.Subscribe(ctx, c, f.public.ID))
		assert.Equal(t, before+1, f.hub.Subscribers(f.public.ID))

		f.hub.Unsubscribe(c, f.public.ID)
		f.hub.Unsubscribe(c, f.public.ID)
		assert.Equal(t, before, f.hub.Subscribers(f.public.ID))
	})

	t.Run("unknown channel", func(t *testing.T) {
		c := f.connect(t, user("dave"))
		assert.True(t, errs.HasCode(f.hub.Subscribe(ctx, c, "missing"), errs.ErrChannelNotFound))
	})
}

func TestDisconnectLeavesRoomsAndUpdatesPresence(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	first := f.connect(t, user("alice"))
	second := f.connect(t, user("alice"))
	require.NoError(t, f.hub.Subscribe(ctx, first, f.public.ID))
	require.NoError(t, f.hub.Subscribe(ctx, second, f.public.ID))

	assert.Equal(t, []string{"connected"}, f.presence.kinds("alice"), "only the first connection marks online")

	f.hub.Unregister(first)
	f.hub.Unregister(first)
	assert.Equal(t, 1, f.hub.Subscribers(f.public.ID))
	assert.Equal(t, []string{"connected"}, f.presence.kinds("alice"))

	f.hub.Unregister(second)
	assert.Equal(t, 0, f.hub.Subscribers(f.public.ID))
	assert.Equal(t, []string{"connected", "disconnected"}, f.presence.kinds("alice"))

	_, ok := <-first.send
	assert.False(t, ok, "send queue is closed")
}

func TestSlowClientIsDisconnected(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	slow := f.connect(t, user("slow"))
	fast := f.connect(t, user("fast"))
	require.NoError(t, f.hub.Subscribe(ctx, slow, f.public.ID))
	require.NoError(t, f.hub.Subscribe(ctx, fast, f.public.ID))

	for i := 0; i < sendBufferSize; i++ {
		slow.send <- []byte(`{}`)
	}

	f.hub.PublishMessage(&model.Message{ID: "m", ChannelID: f.public.ID, Sender: model.GuestSender("g")})

	assert.Equal(t, EventMessage, next(t, fast).Type)
	assert.Eventually(t, func() bool { return f.hub.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestDirectMessageFanout(t *testing.T) {
	f := newFixture(t, 0)

	a1 := f.connect(t, user("a"))
	a2 := f.connect(t, user("a"))
	b := f.connect(t, user("b"))
	c := f.connect(t, user("c"))

	f.hub.PublishDirectMessage(&model.DirectMessage{ID: "d1", SenderID: "a", RecipientID: "b", Content: "hi"})

	for _, cl := range []*Client{a1, a2, b} {
		assert.Equal(t, EventDirectMessage, next(t, cl).Type)
	}
	assertSilent(t, c)
}

func TestUserStatusIsGlobal(t *testing.T) {
	f := newFixture(t, 0)

	a := f.connect(t, user("a"))
	g := f.connect(t, identity.Guest{DisplayName: "Bob"})

	f.hub.BroadcastUserStatus("a", model.StatusAway, time.Now())

	for _, cl := range []*Client{a, g} {
		env := next(t, cl)
		assert.Equal(t, EventUserStatus, env.Type)
		var p UserStatusPayload
		require.NoError(t, json.Unmarshal(env.Payload, &p))
		assert.Equal(t, model.StatusAway, p.Status)
	}
}

func TestConnectionCap(t *testing.T) {
	f := newFixture(t, 1)

	f.connect(t, user("a"))
	assert.True(t, f.hub.Full())

	err := f.hub.Register(NewClient(f.hub, nil, user("b")))
	assert.True(t, errs.HasCode(err, errs.ErrConnectionLimitExceed))
}

func TestTypingSkipsSender(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	a := f.connect(t, user("a"))
	b := f.connect(t, user("b"))
	require.NoError(t, f.hub.Subscribe(ctx, a, f.public.ID))
	require.NoError(t, f.hub.Subscribe(ctx, b, f.public.ID))

	f.hub.PublishTyping(a, f.public.ID)

	env := next(t, b)
	assert.Equal(t, EventTyping, env.Type)
	var p TypingPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "a", p.UserID)
	assertSilent(t, a)
}

func TestCloseRoomAndRevoke(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	alice := f.connect(t, user("alice"))
	require.NoError(t, f.hub.Subscribe(ctx, alice, f.private.ID))
	require.NoError(t, f.hub.Subscribe(ctx, alice, f.public.ID))

	f.hub.RevokeSubscriptions("alice", f.private.ID)
	env := next(t, alice)
	assert.Equal(t, EventUnsubscribed, env.Type)
	assert.False(t, f.hub.IsSubscribed(alice, f.private.ID))
	assert.True(t, f.hub.IsSubscribed(alice, f.public.ID))

	f.hub.CloseRoom(f.public.ID)
	env = next(t, alice)
	assert.Equal(t, EventUnsubscribed, env.Type)
	var p SubscriptionPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, ReasonDeleted, p.Reason)
	assert.Equal(t, 0, f.hub.Subscribers(f.public.ID))
}

func TestShutdownDisconnectsEveryone(t *testing.T) {
	st := memstore.New()
	hub := NewHub(st, nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	c := NewClient(hub, nil, user("a"))
	require.NoError(t, hub.Register(c))

	cancel()
	<-stopped

	assert.Equal(t, 0, hub.ConnectionCount())
	assert.Error(t, hub.Register(NewClient(hub, nil, user("b"))))

	// publishing after shutdown must not block
	hub.PublishMessage(&model.Message{ChannelID: "x", Sender: model.GuestSender("g")})
}

// gatedLookup returns a fixed channel snapshot but holds the caller until released.
type gatedLookup struct {
	ch      *model.Channel
	entered chan struct{}
	release chan struct{}
}

func (g *gatedLookup) GetChannel(_ context.Context, _ string) (*model.Channel, error) {
	close(g.entered)
	<-g.release
	return g.ch.Clone(), nil
}

func TestSubscribeRacingLeaveIsRevoked(t *testing.T) {
	lookup := &gatedLookup{
		ch:      &model.Channel{ID: "c1", Name: "secrets", IsPrivate: true, CreatedBy: "alice", Members: []string{"alice", "bob"}},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	locks := &keymutex.KeyMutex{}
	hub := NewHub(lookup, locks, 0)

	bob := NewClient(hub, nil, user("bob"))
	require.NoError(t, hub.Register(bob))

	subscribed := make(chan error, 1)
	go func() { subscribed <- hub.Subscribe(context.Background(), bob, "c1") }()
	<-lookup.entered

	// bob leaves while the subscription is between its read check and the room insert
	left := make(chan struct{})
	go func() {
		defer close(left)
		locks.Lock("c1")
		defer locks.Unlock("c1")
		hub.RevokeSubscriptions("bob", "c1")
	}()

	select {
	case <-left:
		t.Fatal("leave finished while a subscribe held the channel")
	case <-time.After(50 * time.Millisecond):
	}

	close(lookup.release)
	require.NoError(t, <-subscribed)
	<-left

	assert.False(t, hub.IsSubscribed(bob, "c1"))
	assert.Equal(t, 0, hub.Subscribers("c1"))
}
