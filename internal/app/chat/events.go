package chat

import (
	"encoding/json"
	"time"

	"parley/internal/app/model"
)

// EventType names a WebSocket event.
type EventType string

// Client to server.
const (
	EventJoinChannel  EventType = "join_channel"
	EventLeaveChannel EventType = "leave_channel"
	EventSendMessage  EventType = "message"
	EventTyping       EventType = "typing"
	EventStatusChange EventType = "status_change"
	EventActivity     EventType = "activity"
)

// Server to client. EventMessage and EventTyping are shared with the inbound set.
const (
	EventMessage        EventType = "message"
	EventMessageDeleted EventType = "message_deleted"
	EventDirectMessage  EventType = "direct_message"
	EventUserStatus     EventType = "user_status"
	EventSubscribed     EventType = "subscribed"
	EventUnsubscribed   EventType = "unsubscribed"
	EventError          EventType = "error"
)

// Envelope is the frame exchanged in both directions.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// TempID lets a client correlate an error with the frame that caused it.
	TempID string `json:"tempId,omitempty"`
}

// ChannelRef is the payload of join_channel, leave_channel and typing.
type ChannelRef struct {
	ChannelID string `json:"channelId"`
}

// SendMessagePayload is the payload of an inbound message event.
type SendMessagePayload struct {
	ChannelID string `json:"channelId"`
	Content   string `json:"content"`
	GuestName string `json:"guestName,omitempty"`
}

// StatusChangePayload is the payload of status_change.
type StatusChangePayload struct {
	Status string `json:"status"`
}

// TypingPayload is broadcast to the other subscribers of a channel.
type TypingPayload struct {
	UserID    string `json:"userId,omitempty"`
	Username  string `json:"username"`
	ChannelID string `json:"channelId"`
}

// UserStatusPayload announces a presence transition.
type UserStatusPayload struct {
	UserID   string       `json:"userId"`
	Status   model.Status `json:"status"`
	LastSeen time.Time    `json:"lastSeen"`
}

// MessageDeletedPayload announces a removed channel message.
type MessageDeletedPayload struct {
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
}

// SubscriptionPayload acknowledges subscribe and unsubscribe. Reason is set
// when the server ended the subscription.
type SubscriptionPayload struct {
	ChannelID string `json:"channelId"`
	Reason    string `json:"reason,omitempty"`
}

// ErrorPayload reports a failed client request.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Reasons carried by unsubscribed events.
const (
	ReasonRevoked = "revoked"
	ReasonDeleted = "deleted"
)

// encode builds a serialized envelope.
func encode(t EventType, payload any, tempID string) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: t, Payload: raw, TempID: tempID})
}
