package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/app/identity"
	"parley/internal/app/model"
	"parley/internal/pkg/errs"
)

type postCall struct {
	id        identity.Identity
	channelID string
	content   string
	guestName string
}

type fakePoster struct {
	mu    sync.Mutex
	calls []postCall
	err   error
}

func (p *fakePoster) Post(_ context.Context, id identity.Identity, channelID, content, guestName string) (*model.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, postCall{id, channelID, content, guestName})
	if p.err != nil {
		return nil, p.err
	}
	return &model.Message{ID: "m", ChannelID: channelID, Content: content}, nil
}

func frame(t *testing.T, typ EventType, payload any) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := json.Marshal(Envelope{Type: typ, Payload: raw, TempID: "t-1"})
	require.NoError(t, err)
	return data
}

func errorPayload(t *testing.T, env Envelope) ErrorPayload {
	t.Helper()
	require.Equal(t, EventError, env.Type)
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	return p
}

func TestInboundJoinLeave(t *testing.T) {
	f := newFixture(t, 0)
	c := f.connect(t, user("bob"))

	c.processInbound(frame(t, EventJoinChannel, ChannelRef{ChannelID: f.public.ID}))
	assert.Equal(t, EventSubscribed, next(t, c).Type)
	assert.True(t, f.hub.IsSubscribed(c, f.public.ID))

	c.processInbound(frame(t, EventJoinChannel, ChannelRef{ChannelID: f.private.ID}))
	env := next(t, c)
	assert.Equal(t, errs.ErrForbidden, errorPayload(t, env).Code)
	assert.Equal(t, "t-1", env.TempID)

	c.processInbound(frame(t, EventLeaveChannel, ChannelRef{ChannelID: f.public.ID}))
	assert.Equal(t, EventUnsubscribed, next(t, c).Type)
	assert.False(t, f.hub.IsSubscribed(c, f.public.ID))
}

func TestInboundMessageUsesPipeline(t *testing.T) {
	f := newFixture(t, 0)
	poster := &fakePoster{}
	f.hub.UsePoster(poster)

	g := f.connect(t, identity.Guest{DisplayName: "Bob"})
	g.processInbound(frame(t, EventSendMessage, SendMessagePayload{ChannelID: f.public.ID, Content: "hi"}))

	require.Len(t, poster.calls, 1)
	assert.Equal(t, identity.Guest{DisplayName: "Bob"}, poster.calls[0].id)
	assert.Equal(t, "hi", poster.calls[0].content)

	poster.err = errs.NewError(errs.ErrContentEmpty)
	g.processInbound(frame(t, EventSendMessage, SendMessagePayload{ChannelID: f.public.ID, Content: " "}))
	assert.Equal(t, errs.ErrContentEmpty, errorPayload(t, next(t, g)).Code)
}

func TestInboundTypingRequiresSubscription(t *testing.T) {
	f := newFixture(t, 0)
	c := f.connect(t, user("bob"))

	c.processInbound(frame(t, EventTyping, ChannelRef{ChannelID: f.public.ID}))
	assert.Equal(t, errs.ErrForbidden, errorPayload(t, next(t, c)).Code)
}

func TestInboundStatusChange(t *testing.T) {
	f := newFixture(t, 0)

	c := f.connect(t, user("bob"))
	c.processInbound(frame(t, EventStatusChange, StatusChangePayload{Status: "away"}))
	assertSilent(t, c)
	assert.Contains(t, f.presence.kinds("bob"), "status")

	c.processInbound(frame(t, EventStatusChange, StatusChangePayload{Status: "busy"}))
	assert.Equal(t, errs.ErrInvalidStatus, errorPayload(t, next(t, c)).Code)

	g := f.connect(t, identity.Guest{DisplayName: "Bob"})
	g.processInbound(frame(t, EventStatusChange, StatusChangePayload{Status: "away"}))
	assert.Equal(t, errs.ErrForbidden, errorPayload(t, next(t, g)).Code)
}

func TestInboundActivityReachesPresence(t *testing.T) {
	f := newFixture(t, 0)
	c := f.connect(t, user("bob"))

	c.processInbound(frame(t, EventActivity, struct{}{}))
	assertSilent(t, c)

	f.presence.mu.Lock()
	defer f.presence.mu.Unlock()
	require.NotEmpty(t, f.presence.calls)
	assert.Equal(t, "activity", f.presence.calls[len(f.presence.calls)-1].kind)
}

func TestInboundMalformed(t *testing.T) {
	f := newFixture(t, 0)
	c := f.connect(t, user("bob"))

	c.processInbound([]byte(`not json`))
	assert.Equal(t, errs.ErrInvalidJSONFormat, errorPayload(t, next(t, c)).Code)

	c.processInbound(frame(t, "dance", struct{}{}))
	assert.Equal(t, errs.ErrUnsupportedEventType, errorPayload(t, next(t, c)).Code)

	c.processInbound([]byte(`{"type":"join_channel"}`))
	assert.Equal(t, errs.ErrInvalidParams, errorPayload(t, next(t, c)).Code)
}

type fakeConn struct {
	mu      sync.Mutex
	inbound chan []byte
	written [][]byte
	closed  bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 8)}
}

func (f *fakeConn) SetReadLimit(int64)                {}
func (f *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	data, ok := <-f.inbound
	if !ok {
		return 0, nil, io.EOF
	}
	return websocket.TextMessage, data, nil
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("closed")
	}
	if messageType == websocket.TextMessage {
		f.written = append(f.written, data)
	}
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written)
}

func TestPumps(t *testing.T) {
	f := newFixture(t, 0)
	conn := newFakeConn()
	c := NewClient(f.hub, conn, user("bob"))
	require.NoError(t, f.hub.Register(c))

	go c.WritePump()
	done := make(chan struct{})
	go func() {
		c.ReadPump()
		close(done)
	}()

	conn.inbound <- frame(t, EventJoinChannel, ChannelRef{ChannelID: f.public.ID})
	assert.Eventually(t, func() bool { return conn.writes() == 1 }, time.Second, 10*time.Millisecond)

	close(conn.inbound)
	<-done

	assert.Equal(t, 0, f.hub.ConnectionCount())
	assert.Equal(t, 0, f.hub.Subscribers(f.public.ID))
}
