/*
Package identity resolves bearer credentials into one of three caller variants:
Authenticated, Guest or Anonymous.

Every authorization decision in the chat core takes an Identity, never a raw token.
Callers choose per call site whether failures degrade to Anonymous (Tolerant) or
are returned (Strict).
*/
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"parley/internal/app/model"
	"parley/internal/app/store"
	"parley/internal/pkg/auth/jwt"
	"parley/internal/pkg/errs"
	"parley/internal/pkg/logx"
)

// Identity is the resolved caller. The set of implementations is closed:
// Authenticated, Guest and Anonymous.
type Identity interface {
	isIdentity()
}

// Authenticated is a registered user backed by a User record.
type Authenticated struct {
	UserID      string            `json:"userId"`
	Username    string            `json:"username"`
	Email       string            `json:"email"`
	Preferences model.Preferences `json:"preferences"`
}

// Guest carries only the display name from its token; it has no stable id.
type Guest struct {
	DisplayName string `json:"displayName"`
}

// Anonymous is a caller without a usable credential.
type Anonymous struct{}

func (Authenticated) isIdentity() {}
func (Guest) isIdentity()         {}
func (Anonymous) isIdentity()     {}

// FromUser builds an Authenticated identity from a stored user.
func FromUser(u *model.User) Authenticated {
	return Authenticated{UserID: u.ID, Username: u.Username, Email: u.Email, Preferences: u.Preferences}
}

// UserID returns the user id when id is Authenticated.
func UserID(id Identity) (string, bool) {
	if a, ok := id.(Authenticated); ok {
		return a.UserID, true
	}
	return "", false
}

// Kind names the variant for logs and wire payloads.
func Kind(id Identity) string {
	switch id.(type) {
	case Authenticated:
		return "user"
	case Guest:
		return "guest"
	case Anonymous:
		return "anonymous"
	}
	return "anonymous"
}

// Mode selects how Resolve treats failures.
type Mode int

const (
	// Tolerant absorbs every failure into Anonymous. Used by read paths that
	// allow browsing without login.
	Tolerant Mode = iota

	// Strict returns ErrUnauthorized for a missing or bad token and an
	// internal error when the user lookup fails.
	Strict
)

// UserLookup is the subset of store.Users the resolver needs.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// Resolver turns tokens into identities.
type Resolver struct {
	users  UserLookup
	secret string
	logger zerolog.Logger
}

// NewResolver returns a Resolver verifying HS256 tokens signed with secret.
func NewResolver(users UserLookup, secret string) *Resolver {
	return &Resolver{users: users, secret: secret, logger: logx.Component("identity")}
}

// Resolve maps token to an Identity according to mode. In Tolerant mode the
// returned error is always nil.
func (r *Resolver) Resolve(ctx context.Context, token string, mode Mode) (Identity, error) {
	id, err := r.resolve(ctx, token)
	if err == nil {
		return id, nil
	}
	if mode == Tolerant {
		return Anonymous{}, nil
	}
	return nil, err
}

func (r *Resolver) resolve(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return nil, errs.NewError(errs.ErrUnauthorized)
	}

	payload, err := jwt.ParseToken(token, r.secret)
	if err != nil {
		r.logger.Debug().Err(err).Msg("Rejected bearer token")
		return nil, errs.NewError(errs.ErrUnauthorized)
	}

	switch payload.Kind {
	case jwt.KindGuest:
		name, err := model.NormalizeGuestName(payload.DisplayName)
		if err != nil {
			return nil, errs.NewError(errs.ErrUnauthorized)
		}
		return Guest{DisplayName: name}, nil

	case jwt.KindUser:
		u, err := r.users.GetUserByID(ctx, payload.UserID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, errs.NewError(errs.ErrUnauthorized)
		}
		if err != nil {
			r.logger.Error().Err(err).Str("user_id", payload.UserID).Msg("User lookup failed during identity resolution")
			return nil, errs.NewError(errs.ErrUnknown)
		}
		return FromUser(u), nil
	}

	return nil, errs.NewError(errs.ErrUnauthorized)
}

// IssueUserToken signs a user token.
func IssueUserToken(u *model.User, secret string, ttl time.Duration) (string, error) {
	token, err := jwt.GenerateToken(&jwt.Payload{Kind: jwt.KindUser, UserID: u.ID}, secret, ttl)
	if err != nil {
		return "", fmt.Errorf("identity.IssueUserToken: %w", err)
	}
	return token, nil
}

// IssueGuestToken signs a guest token for displayName.
func IssueGuestToken(displayName, secret string, ttl time.Duration) (string, error) {
	token, err := jwt.GenerateToken(&jwt.Payload{Kind: jwt.KindGuest, DisplayName: displayName}, secret, ttl)
	if err != nil {
		return "", fmt.Errorf("identity.IssueGuestToken: %w", err)
	}
	return token, nil
}
