package chat

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"parley/internal/app/identity"
	"parley/internal/app/model"
	"parley/internal/pkg/errs"
	"parley/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 8192

	// sendBufferSize is the per-client outbound queue. A client that falls this
	// far behind is disconnected.
	sendBufferSize = 256

	// handlerTimeout bounds the storage work done for one inbound frame.
	handlerTimeout = 10 * time.Second
)

// wsConn is the part of *websocket.Conn used by the pumps.
type wsConn interface {
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one live connection and its resolved identity.
type Client struct {
	id       string
	identity identity.Identity
	hub      *Hub
	conn     wsConn

	// send is closed by the hub when the client is unregistered.
	send chan []byte

	// rooms is guarded by hub.mu.
	rooms map[string]struct{}

	logger zerolog.Logger
}

// NewClient constructs a Client for an upgraded connection. It is not
// registered until Hub.Register is called.
func NewClient(hub *Hub, conn wsConn, id identity.Identity) *Client {
	connID := uuid.NewString()

	logger := logx.Logger().With().
		Str("component", "ws").
		Str("conn_id", connID).
		Str("identity", identity.Kind(id)).
		Logger()
	if uid, ok := identity.UserID(id); ok {
		logger = logger.With().Str("user_id", uid).Logger()
	}

	return &Client{
		id:       connID,
		identity: id,
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		rooms:    make(map[string]struct{}),
		logger:   logger,
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// Identity returns the identity resolved at handshake.
func (c *Client) Identity() identity.Identity { return c.identity }

// offer queues data without blocking. Callers hold hub.mu.
func (c *Client) offer(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// ReadPump reads frames until the connection fails, then unregisters the client.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			break
		}

		c.processInbound(frame)
	}
}

// cleanupOnDisconnect leaves every room and closes the connection. A dropped
// connection is not an error.
func (c *Client) cleanupOnDisconnect() {
	c.hub.Unregister(c)

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

func (c *Client) processInbound(frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		c.logger.Debug().Err(err).Msg("Client sent invalid JSON")
		c.SendError(errs.NewError(errs.ErrInvalidJSONFormat), "")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if env.Type != EventStatusChange {
		c.touch(ctx)
	}

	var err error
	switch env.Type {
	case EventJoinChannel:
		err = c.handleJoin(ctx, env.Payload)
	case EventLeaveChannel:
		err = c.handleLeave(env.Payload)
	case EventSendMessage:
		err = c.handleMessage(ctx, env.Payload)
	case EventTyping:
		err = c.handleTyping(env.Payload)
	case EventStatusChange:
		err = c.handleStatusChange(ctx, env.Payload)
	case EventActivity:
	default:
		c.logger.Debug().Str("event", string(env.Type)).Msg("Client sent unsupported event type")
		err = errs.NewError(errs.ErrUnsupportedEventType)
	}

	if err != nil {
		c.SendError(err, env.TempID)
	}
}

// touch reports client activity to presence.
func (c *Client) touch(ctx context.Context) {
	uid, ok := identity.UserID(c.identity)
	if !ok || c.hub.presence == nil {
		return
	}
	c.hub.presence.Activity(ctx, uid, time.Now())
}

func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return errs.NewError(errs.ErrInvalidParams)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}
	return nil
}

func decodeChannelRef(raw json.RawMessage) (string, error) {
	var ref ChannelRef
	if err := decodePayload(raw, &ref); err != nil {
		return "", err
	}
	if ref.ChannelID == "" {
		return "", errs.NewError(errs.ErrInvalidParams)
	}
	return ref.ChannelID, nil
}

func (c *Client) handleJoin(ctx context.Context, raw json.RawMessage) error {
	channelID, err := decodeChannelRef(raw)
	if err != nil {
		return err
	}
	if err := c.hub.Subscribe(ctx, c, channelID); err != nil {
		return err
	}
	c.sendEvent(EventSubscribed, SubscriptionPayload{ChannelID: channelID})
	return nil
}

func (c *Client) handleLeave(raw json.RawMessage) error {
	channelID, err := decodeChannelRef(raw)
	if err != nil {
		return err
	}
	c.hub.Unsubscribe(c, channelID)
	c.sendEvent(EventUnsubscribed, SubscriptionPayload{ChannelID: channelID})
	return nil
}

func (c *Client) handleMessage(ctx context.Context, raw json.RawMessage) error {
	var p SendMessagePayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	if p.ChannelID == "" {
		return errs.NewError(errs.ErrInvalidParams)
	}
	if c.hub.poster == nil {
		return errs.Internal(errors.New("chat: no message pipeline installed"))
	}

	// The persisted message reaches this connection through the room broadcast.
	_, err := c.hub.poster.Post(ctx, c.identity, p.ChannelID, p.Content, p.GuestName)
	return err
}

func (c *Client) handleTyping(raw json.RawMessage) error {
	channelID, err := decodeChannelRef(raw)
	if err != nil {
		return err
	}
	if !c.hub.IsSubscribed(c, channelID) {
		return errs.NewError(errs.ErrForbidden)
	}
	c.hub.PublishTyping(c, channelID)
	return nil
}

func (c *Client) handleStatusChange(ctx context.Context, raw json.RawMessage) error {
	var p StatusChangePayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	status, err := model.ParseStatus(p.Status)
	if err != nil {
		return err
	}

	uid, ok := identity.UserID(c.identity)
	if !ok {
		return errs.NewError(errs.ErrForbidden)
	}
	if c.hub.presence == nil {
		return nil
	}
	return c.hub.presence.SetStatus(ctx, uid, status)
}

// WritePump writes queued frames and periodic pings until the send queue is
// closed or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.writeQueuedMessage(message, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedMessage returns false when the pump should stop.
func (c *Client) writeQueuedMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Warn().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writePingMessage returns false when the pump should stop.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Debug().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

func (c *Client) sendEvent(t EventType, payload any) {
	data, err := encode(t, payload, "")
	if err != nil {
		c.logger.Error().Err(err).Str("event", string(t)).Msg("Failed to encode event")
		return
	}
	c.hub.sendTo(c, data)
}

// SendError reports err to this client only. Errors that are not CustomErrors
// are logged and reported as internal.
func (c *Client) SendError(err error, tempID string) {
	customErr := errs.As(err)

	data, encErr := encode(EventError, ErrorPayload{Code: customErr.Code, Message: customErr.Message}, tempID)
	if encErr != nil {
		c.logger.Error().Err(encErr).Msg("Failed to encode error event")
		return
	}
	c.hub.sendTo(c, data)
}
