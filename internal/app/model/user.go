/*
Package model contains the persisted entities of the chat core and their validation rules.

Types carry JSON tags for the HTTP and WebSocket wire formats. Validation helpers
return *errs.CustomError values ready to be surfaced to clients.
*/
package model

import (
	"strings"
	"time"

	"parley/internal/pkg/errs"
)

// Status is a user's presence status.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusOffline Status = "offline"
)

// ParseStatus validates a client supplied status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusOnline, StatusAway, StatusOffline:
		return st, nil
	}
	return "", errs.NewError(errs.ErrInvalidStatus)
}

// Preferences are per-user client settings.
type Preferences struct {
	Theme         string `json:"theme"`
	Notifications bool   `json:"notifications"`
	Language      string `json:"language"`
}

// DefaultPreferences is applied at registration.
func DefaultPreferences() Preferences {
	return Preferences{Theme: "light", Notifications: true, Language: "en"}
}

// User is a registered account.
type User struct {
	ID           string      `json:"id"`
	Username     string      `json:"username"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"`
	IsOnline     bool        `json:"isOnline"`
	LastSeen     time.Time   `json:"lastSeen"`
	Status       Status      `json:"status"`
	Preferences  Preferences `json:"preferences"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// PublicUser is the projection of a User shown to other users.
type PublicUser struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	IsOnline bool      `json:"isOnline"`
	Status   Status    `json:"status"`
	LastSeen time.Time `json:"lastSeen"`
}

// Public returns the projection of u safe to show to other users.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:       u.ID,
		Username: u.Username,
		IsOnline: u.IsOnline,
		Status:   u.Status,
		LastSeen: u.LastSeen,
	}
}
