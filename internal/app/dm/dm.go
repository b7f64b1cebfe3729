// Package dm implements direct messages between registered users.
package dm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"parley/internal/app/identity"
	"parley/internal/app/model"
	"parley/internal/app/store"
	"parley/internal/pkg/errs"
	"parley/internal/pkg/logx"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// Broadcaster delivers a direct message to the live connections of both parties.
type Broadcaster interface {
	PublishDirectMessage(m *model.DirectMessage)
}

// Repository is the storage the service needs.
type Repository interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	store.DirectMessages
}

type Service struct {
	repo        Repository
	broadcaster Broadcaster
	logger      zerolog.Logger
}

func NewService(repo Repository, broadcaster Broadcaster) *Service {
	return &Service{repo: repo, broadcaster: broadcaster, logger: logx.Component("dm")}
}

func (s *Service) peer(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.NewError(errs.ErrUserNotFound)
	}
	if err != nil {
		return nil, errs.Internal(fmt.Errorf("dm.peer: %w", err))
	}
	return u, nil
}

// Send stores a direct message from the caller to recipientID and delivers it.
func (s *Service) Send(ctx context.Context, id identity.Identity, recipientID, content string) (*model.DirectMessage, error) {
	from, err := identity.Require(id)
	if err != nil {
		return nil, err
	}

	content, err = model.NormalizeContent(content)
	if err != nil {
		return nil, err
	}
	if recipientID == from.UserID {
		return nil, errs.NewError(errs.ErrCannotMessageSelf)
	}
	if _, err := s.peer(ctx, recipientID); err != nil {
		return nil, err
	}

	m := &model.DirectMessage{SenderID: from.UserID, RecipientID: recipientID, Content: content}
	if err := s.repo.InsertDirectMessage(ctx, m); err != nil {
		return nil, errs.Internal(fmt.Errorf("dm.Send: %w", err))
	}

	if s.broadcaster != nil {
		s.broadcaster.PublishDirectMessage(m)
	}

	s.logger.Debug().Str("message_id", m.ID).Str("sender_id", m.SenderID).Str("recipient_id", m.RecipientID).Msg("Direct message sent")

	return m, nil
}

// History returns the messages exchanged between the caller and peerID, oldest first.
func (s *Service) History(ctx context.Context, id identity.Identity, peerID string, before time.Time, limit int) ([]*model.DirectMessage, error) {
	me, err := identity.Require(id)
	if err != nil {
		return nil, err
	}
	if _, err := s.peer(ctx, peerID); err != nil {
		return nil, err
	}

	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}

	msgs, err := s.repo.ListDirectMessages(ctx, me.UserID, peerID, before, limit)
	if err != nil {
		return nil, errs.Internal(fmt.Errorf("dm.History: %w", err))
	}
	return msgs, nil
}

// Conversations lists one entry per counterparty of the caller, most recent first.
func (s *Service) Conversations(ctx context.Context, id identity.Identity) ([]*model.Conversation, error) {
	me, err := identity.Require(id)
	if err != nil {
		return nil, err
	}

	convs, err := s.repo.ListConversations(ctx, me.UserID)
	if err != nil {
		return nil, errs.Internal(fmt.Errorf("dm.Conversations: %w", err))
	}
	return convs, nil
}

// MarkRead flags a message as read. Only its recipient may do so; marking an
// already read message succeeds.
func (s *Service) MarkRead(ctx context.Context, id identity.Identity, messageID string) (*model.DirectMessage, error) {
	me, err := identity.Require(id)
	if err != nil {
		return nil, err
	}

	m, err := s.repo.GetDirectMessage(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.NewError(errs.ErrMessageNotFound)
	}
	if err != nil {
		return nil, errs.Internal(fmt.Errorf("dm.MarkRead: %w", err))
	}

	if m.RecipientID != me.UserID {
		return nil, errs.NewError(errs.ErrForbidden)
	}
	if m.Read {
		return m, nil
	}

	if err := s.repo.MarkRead(ctx, m.ID); err != nil {
		return nil, errs.Internal(fmt.Errorf("dm.MarkRead: %w", err))
	}
	m.Read = true
	return m, nil
}
