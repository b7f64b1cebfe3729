/*
Package message is the channel message pipeline.

Post validates, authorizes, persists and hands the stored record to the fanout
router. Persistence and hand-off for one channel run under that channel's lock, so
subscribers observe messages in the order they were stored.
*/
package message

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"parley/internal/app/identity"
	"parley/internal/app/model"
	"parley/internal/app/policy"
	"parley/internal/app/store"
	"parley/internal/pkg/errs"
	"parley/internal/pkg/keymutex"
	"parley/internal/pkg/logx"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// Broadcaster delivers channel events to live subscribers.
type Broadcaster interface {
	PublishMessage(m *model.Message)
	PublishMessageDeleted(channelID, messageID string)
}

// Repository is the storage the pipeline needs.
type Repository interface {
	GetChannel(ctx context.Context, id string) (*model.Channel, error)
	store.Messages
}

// Service implements Post, List and Delete.
type Service struct {
	repo        Repository
	broadcaster Broadcaster
	locks       keymutex.KeyMutex
	logger      zerolog.Logger
}

func NewService(repo Repository, broadcaster Broadcaster) *Service {
	return &Service{
		repo:        repo,
		broadcaster: broadcaster,
		logger:      logx.Component("message"),
	}
}

func (s *Service) channel(ctx context.Context, channelID string) (*model.Channel, error) {
	ch, err := s.repo.GetChannel(ctx, channelID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.NewError(errs.ErrChannelNotFound)
	}
	if err != nil {
		return nil, errs.Internal(fmt.Errorf("message.channel: %w", err))
	}
	return ch, nil
}

// Post stores a message from id in channelID and broadcasts it. guestName is the
// display name for guest and anonymous callers; a guest token's own name is used
// when guestName is blank.
func (s *Service) Post(ctx context.Context, id identity.Identity, channelID, content, guestName string) (*model.Message, error) {
	content, err := model.NormalizeContent(content)
	if err != nil {
		return nil, err
	}

	ch, err := s.channel(ctx, channelID)
	if err != nil {
		return nil, err
	}

	if !policy.CanPost(id, ch) {
		if _, ok := id.(identity.Anonymous); ok {
			return nil, errs.NewError(errs.ErrUnauthorized)
		}
		return nil, errs.NewError(errs.ErrForbidden)
	}

	sender, err := senderFor(id, guestName)
	if err != nil {
		return nil, err
	}

	m := &model.Message{ChannelID: ch.ID, Content: content, Sender: sender}

	err = s.locks.With(ch.ID, func() error {
		if err := s.repo.InsertMessage(ctx, m); err != nil {
			return err
		}
		if s.broadcaster != nil {
			s.broadcaster.PublishMessage(m)
		}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		// deleted after the policy check
		return nil, errs.NewError(errs.ErrChannelNotFound)
	}
	if err != nil {
		return nil, errs.Internal(fmt.Errorf("message.Post: %w", err))
	}

	s.logger.Debug().
		Str("channel_id", ch.ID).
		Str("message_id", m.ID).
		Str("sender_type", string(sender.Kind())).
		Msg("Message posted")

	return m, nil
}

// senderFor builds the sender snapshot for id.
func senderFor(id identity.Identity, guestName string) (model.Sender, error) {
	switch v := id.(type) {
	case identity.Authenticated:
		return model.UserSender(v.UserID, v.Username), nil
	case identity.Guest:
		name := guestName
		if strings.TrimSpace(name) == "" {
			name = v.DisplayName
		}
		name, err := model.NormalizeGuestName(name)
		if err != nil {
			return model.Sender{}, err
		}
		return model.GuestSender(name), nil
	case identity.Anonymous:
		name, err := model.NormalizeGuestName(guestName)
		if err != nil {
			return model.Sender{}, err
		}
		return model.GuestSender(name), nil
	}
	return model.Sender{}, errs.NewError(errs.ErrUnauthorized)
}

// List returns up to limit messages of channelID older than before, oldest first.
// A zero before starts from the newest message.
func (s *Service) List(ctx context.Context, id identity.Identity, channelID string, before time.Time, limit int) ([]*model.Message, error) {
	ch, err := s.channel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if !policy.CanRead(id, ch) {
		return nil, errs.NewError(errs.ErrForbidden)
	}

	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}

	msgs, err := s.repo.ListMessages(ctx, ch.ID, before, limit)
	if err != nil {
		return nil, errs.Internal(fmt.Errorf("message.List: %w", err))
	}
	return msgs, nil
}

// Delete removes a message. The author or the channel creator may delete it.
func (s *Service) Delete(ctx context.Context, id identity.Identity, channelID, messageID string) error {
	if _, err := identity.Require(id); err != nil {
		return err
	}

	ch, err := s.channel(ctx, channelID)
	if err != nil {
		return err
	}

	m, err := s.repo.GetMessage(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && m.ChannelID != ch.ID) {
		return errs.NewError(errs.ErrMessageNotFound)
	}
	if err != nil {
		return errs.Internal(fmt.Errorf("message.Delete: %w", err))
	}

	if !policy.CanDeleteMessage(id, ch, m) {
		return errs.NewError(errs.ErrForbidden)
	}

	err = s.locks.With(ch.ID, func() error {
		if err := s.repo.DeleteMessage(ctx, m.ID); err != nil {
			return err
		}
		if s.broadcaster != nil {
			s.broadcaster.PublishMessageDeleted(ch.ID, m.ID)
		}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return errs.NewError(errs.ErrMessageNotFound)
	}
	if err != nil {
		return errs.Internal(fmt.Errorf("message.Delete: %w", err))
	}

	s.logger.Info().Str("channel_id", ch.ID).Str("message_id", m.ID).Msg("Message deleted")
	return nil
}
