// Package channel creates, lists and deletes channels.
package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"parley/internal/app/identity"
	"parley/internal/app/model"
	"parley/internal/app/policy"
	"parley/internal/app/store"
	"parley/internal/pkg/errs"
	"parley/internal/pkg/logx"
)

// RoomCloser tears down the live room of a deleted channel.
type RoomCloser interface {
	CloseRoom(channelID string)
}

// CreateInput is the request body of channel creation.
type CreateInput struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	IsPrivate    bool   `json:"isPrivate"`
	IsRestricted bool   `json:"isRestricted"`
}

type Service struct {
	channels store.Channels
	rooms    RoomCloser
	logger   zerolog.Logger
}

func NewService(channels store.Channels, rooms RoomCloser) *Service {
	return &Service{channels: channels, rooms: rooms, logger: logx.Component("channel")}
}

// Create stores a new channel owned by the caller, who becomes its first member.
func (s *Service) Create(ctx context.Context, id identity.Identity, in CreateInput) (*model.Channel, error) {
	user, err := identity.Require(id)
	if err != nil {
		return nil, err
	}

	name, err := model.NormalizeChannelName(in.Name)
	if err != nil {
		return nil, err
	}
	description, err := model.NormalizeDescription(in.Description)
	if err != nil {
		return nil, err
	}

	ch := &model.Channel{
		Name:         name,
		Description:  description,
		IsPrivate:    in.IsPrivate,
		IsRestricted: in.IsRestricted,
		Members:      []string{user.UserID},
		CreatedBy:    user.UserID,
	}

	err = s.channels.CreateChannel(ctx, ch)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, errs.NewError(errs.ErrChannelNameTaken)
	}
	if err != nil {
		return nil, errs.Internal(fmt.Errorf("channel.Create: %w", err))
	}

	s.logger.Info().
		Str("channel_id", ch.ID).
		Str("name", ch.Name).
		Str("class", policy.ClassOf(ch).String()).
		Str("created_by", user.UserID).
		Msg("Channel created")

	return ch, nil
}

// List returns the channels the caller can read.
func (s *Service) List(ctx context.Context, id identity.Identity) ([]*model.Channel, error) {
	all, err := s.channels.ListChannels(ctx)
	if err != nil {
		return nil, errs.Internal(fmt.Errorf("channel.List: %w", err))
	}

	visible := make([]*model.Channel, 0, len(all))
	for _, ch := range all {
		if policy.CanRead(id, ch) {
			visible = append(visible, ch)
		}
	}
	return visible, nil
}

// Get returns one channel if the caller can read it.
func (s *Service) Get(ctx context.Context, id identity.Identity, channelID string) (*model.Channel, error) {
	ch, err := s.load(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if !policy.CanRead(id, ch) {
		return nil, errs.NewError(errs.ErrForbidden)
	}
	return ch, nil
}

// Delete removes a channel and its messages. Only the creator may delete it.
func (s *Service) Delete(ctx context.Context, id identity.Identity, channelID string) error {
	if _, err := identity.Require(id); err != nil {
		return err
	}

	ch, err := s.load(ctx, channelID)
	if err != nil {
		return err
	}
	if !policy.CanDelete(id, ch) {
		return errs.NewError(errs.ErrForbidden)
	}

	err = s.channels.DeleteChannel(ctx, ch.ID)
	if errors.Is(err, store.ErrNotFound) {
		return errs.NewError(errs.ErrChannelNotFound)
	}
	if err != nil {
		return errs.Internal(fmt.Errorf("channel.Delete: %w", err))
	}

	if s.rooms != nil {
		s.rooms.CloseRoom(ch.ID)
	}

	s.logger.Info().Str("channel_id", ch.ID).Msg("Channel deleted")
	return nil
}

func (s *Service) load(ctx context.Context, channelID string) (*model.Channel, error) {
	ch, err := s.channels.GetChannel(ctx, channelID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.NewError(errs.ErrChannelNotFound)
	}
	if err != nil {
		return nil, errs.Internal(fmt.Errorf("channel.load: %w", err))
	}
	return ch, nil
}
