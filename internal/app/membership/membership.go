/*
Package membership owns persisted channel membership.

Join and Leave are linearized per channel: the channel is re-read and policy is
re-evaluated while the channel's lock is held, then the storage layer performs an
atomic set-add or set-remove.
*/
package membership

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
	"parley/internal/pkg/keymutex"
	"parley/internal/pkg/logx"
)

// Revoker drops live room subscriptions a user is no longer entitled to.
type Revoker interface {
	RevokeSubscriptions(userID, channelID string)
}

// Service mutates channel member sets.
type Service struct {
	channels store.Channels
	locks    *keymutex.KeyMutex
	revoker  Revoker
	logger   zerolog.Logger
}

// NewService returns a Service. locks is shared with other writers that need
// per-channel serialization; pass nil for a private one.
func NewService(channels store.Channels, locks *keymutex.KeyMutex) *Service {
	if locks == nil {
		locks = &keymutex.KeyMutex{}
	}
	return &Service{channels: channels, locks: locks, logger: logx.Component("membership")}
}

// UseRevoker installs the hook called after a member leaves a private channel.
func (s *Service) UseRevoker(r Revoker) {
	s.revoker = r
}

func (s *Service) load(ctx context.Context, channelID string) (*model.Channel, error) {
	ch, err := s.channels.GetChannel(ctx, channelID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.NewError(errs.ErrChannelNotFound)
	}
	if err != nil {
		return nil, errs.Internal(fmt.Errorf("membership.load: %w", err))
	}
	return ch, nil
}

// Join adds the caller to the channel and returns the updated channel.
// Joining twice is a Conflict.
func (s *Service) Join(ctx context.Context, channelID string, id identity.Identity) (*model.Channel, error) {
	s.locks.Lock(channelID)
	defer s.locks.Unlock(channelID)

	ch, err := s.load(ctx, channelID)
	if err != nil {
		return nil, err
	}

	user, err := identity.Require(id)
	if err != nil {
		return nil, err
	}
	if !policy.CanJoin(id, ch) {
		return nil, errs.NewError(errs.ErrForbidden)
	}
	if ch.HasMember(user.UserID) {
		return nil, errs.NewError(errs.ErrAlreadyMember)
	}

	err = s.channels.AddMember(ctx, channelID, user.UserID)
	switch {
	case errors.Is(err, store.ErrAlreadyMember):
		return nil, errs.NewError(errs.ErrAlreadyMember)
	case errors.Is(err, store.ErrNotFound):
		return nil, errs.NewError(errs.ErrChannelNotFound)
	case err != nil:
		return nil, errs.Internal(fmt.Errorf("membership.Join: %w", err))
	}

	s.logger.Info().Str("channel_id", channelID).Str("user_id", user.UserID).Msg("Member joined")

	return s.load(ctx, channelID)
}

// Leave removes the caller from the channel and returns the updated channel.
// Leaving a channel one does not belong to is a Conflict.
func (s *Service) Leave(ctx context.Context, channelID string, id identity.Identity) (*model.Channel, error) {
	s.locks.Lock(channelID)
	defer s.locks.Unlock(channelID)

	ch, err := s.load(ctx, channelID)
	if err != nil {
		return nil, err
	}

	user, err := identity.Require(id)
	if err != nil {
		return nil, err
	}
	if !ch.HasMember(user.UserID) {
		return nil, errs.NewError(errs.ErrNotMember)
	}

	err = s.channels.RemoveMember(ctx, channelID, user.UserID)
	switch {
	case errors.Is(err, store.ErrNotMember):
		return nil, errs.NewError(errs.ErrNotMember)
	case errors.Is(err, store.ErrNotFound):
		return nil, errs.NewError(errs.ErrChannelNotFound)
	case err != nil:
		return nil, errs.Internal(fmt.Errorf("membership.Leave: %w", err))
	}

	s.logger.Info().Str("channel_id", channelID).Str("user_id", user.UserID).Msg("Member left")

	if policy.ClassOf(ch) == policy.Private && s.revoker != nil {
		s.revoker.RevokeSubscriptions(user.UserID, channelID)
	}

	return s.load(ctx, channelID)
}

// IsMember reports whether userID belongs to the channel.
func (s *Service) IsMember(ctx context.Context, channelID, userID string) (bool, error) {
	ch, err := s.load(ctx, channelID)
	if err != nil {
		return false, err
	}
	return ch.HasMember(userID), nil
}
