package model

import (
	"strings"
	"time"
	"unicode/utf8"

	"parley/internal/pkg/errs"
)

const (
	// MaxContentLength bounds channel and direct message content, in characters.
	MaxContentLength = 1000

	GuestNameMinLen = 2
	GuestNameMaxLen = 30
)

// Message is a channel message.
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channelId"`
	Content   string    `json:"content"`
	Sender    Sender    `json:"sender"`
	CreatedAt time.Time `json:"createdAt"`
}

// DirectMessage is a message between two registered users.
type DirectMessage struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId"`
	Content     string    `json:"content"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Counterparty returns the participant that is not userID.
func (d *DirectMessage) Counterparty(userID string) string {
	if d.SenderID == userID {
		return d.RecipientID
	}
	return d.SenderID
}

// Conversation summarizes the direct messages between a user and one counterparty.
type Conversation struct {
	UserID      string         `json:"userId"`
	Username    string         `json:"username"`
	LastMessage *DirectMessage `json:"lastMessage"`
	UnreadCount int            `json:"unreadCount"`
}

// NormalizeContent trims content and enforces 1..MaxContentLength characters.
func NormalizeContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", errs.NewError(errs.ErrContentEmpty)
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", errs.NewError(errs.ErrContentTooLong, MaxContentLength)
	}
	return content, nil
}

// NormalizeGuestName trims a guest display name and checks its length.
// An empty name yields ErrGuestNameRequired.
func NormalizeGuestName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errs.NewError(errs.ErrGuestNameRequired)
	}
	n := utf8.RuneCountInString(name)
	if n < GuestNameMinLen || n > GuestNameMaxLen {
		return "", errs.NewError(errs.ErrGuestNameInvalid, GuestNameMinLen, GuestNameMaxLen)
	}
	return name, nil
}
