/*
Package store declares the durable storage contract consumed by the chat core.

Implementations live in internal/app/db (PostgreSQL) and internal/app/store/memstore.
*/
package store

import (
	"context"
	"errors"
	"time"

	"parley/internal/app/model"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrDuplicate     = errors.New("store: duplicate")
	ErrAlreadyMember = errors.New("store: already a member")
	ErrNotMember     = errors.New("store: not a member")
)

// Users persists registered accounts.
type Users interface {
	// CreateUser assigns ID and CreatedAt. A taken username or email yields ErrDuplicate.
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	// UpdatePresence sets status, isOnline (status != offline) and lastSeen.
	UpdatePresence(ctx context.Context, id string, status model.Status, at time.Time) error
}

// Channels persists channels and their member sets.
type Channels interface {
	// CreateChannel assigns ID and CreatedAt. A taken name yields ErrDuplicate.
	CreateChannel(ctx context.Context, c *model.Channel) error
	GetChannel(ctx context.Context, id string) (*model.Channel, error)
	ListChannels(ctx context.Context) ([]*model.Channel, error)
	DeleteChannel(ctx context.Context, id string) error
	// AddMember is an atomic set-add; ErrAlreadyMember when userID is present.
	AddMember(ctx context.Context, channelID, userID string) error
	// RemoveMember is an atomic set-remove; ErrNotMember when userID is absent.
	RemoveMember(ctx context.Context, channelID, userID string) error
}

// Messages persists channel messages.
type Messages interface {
	// InsertMessage assigns ID and CreatedAt.
	InsertMessage(ctx context.Context, m *model.Message) error
	// ListMessages returns up to limit messages older than before (zero = newest), oldest first.
	ListMessages(ctx context.Context, channelID string, before time.Time, limit int) ([]*model.Message, error)
	GetMessage(ctx context.Context, id string) (*model.Message, error)
	DeleteMessage(ctx context.Context, id string) error
}

// DirectMessages persists direct messages.
type DirectMessages interface {
	// InsertDirectMessage assigns ID and CreatedAt; Read starts false.
	InsertDirectMessage(ctx context.Context, m *model.DirectMessage) error
	// ListDirectMessages returns the messages exchanged between a and b, oldest first.
	ListDirectMessages(ctx context.Context, a, b string, before time.Time, limit int) ([]*model.DirectMessage, error)
	// ListConversations returns one entry per counterparty of userID, newest first.
	ListConversations(ctx context.Context, userID string) ([]*model.Conversation, error)
	GetDirectMessage(ctx context.Context, id string) (*model.DirectMessage, error)
	MarkRead(ctx context.Context, id string) error
}

// Store bundles every repository.
type Store interface {
	Users
	Channels
	Messages
	DirectMessages
	Close()
}
