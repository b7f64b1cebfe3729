package model

import (
	"encoding/json"
	"fmt"
)

// SenderKind discriminates the Sender variant.
type SenderKind string

const (
	SenderUser  SenderKind = "user"
	SenderGuest SenderKind = "guest"
)

// Sender identifies who posted a channel message. It is either a reference to a
// registered user or an inline guest record with no stable identity. Construct it
// with UserSender or GuestSender; the variant never changes after creation.
type Sender struct {
	kind     SenderKind
	userID   string
	username string
}

// UserSender builds the registered-user variant. username is a snapshot taken at post time.
func UserSender(userID, username string) Sender {
	return Sender{kind: SenderUser, userID: userID, username: username}
}

// GuestSender builds the guest variant.
func GuestSender(displayName string) Sender {
	return Sender{kind: SenderGuest, username: displayName}
}

// Kind returns the variant tag.
func (s Sender) Kind() SenderKind { return s.kind }

// UserID returns the user id for the user variant and "" for guests.
func (s Sender) UserID() string {
	switch s.kind {
	case SenderUser:
		return s.userID
	case SenderGuest:
		return ""
	}
	return ""
}

// DisplayName returns the name shown next to the message.
func (s Sender) DisplayName() string {
	switch s.kind {
	case SenderUser, SenderGuest:
		return s.username
	}
	return ""
}

// OwnedBy reports whether userID authored the message. Guest messages have no owner.
func (s Sender) OwnedBy(userID string) bool {
	switch s.kind {
	case SenderUser:
		return userID != "" && s.userID == userID
	case SenderGuest:
		return false
	}
	return false
}

type senderJSON struct {
	Type     SenderKind `json:"type"`
	ID       string     `json:"id,omitempty"`
	Username string     `json:"username"`
}

// MarshalJSON renders {"type":"user","id",...,"username"} or {"type":"guest","username"}.
func (s Sender) MarshalJSON() ([]byte, error) {
	switch s.kind {
	case SenderUser:
		return json.Marshal(senderJSON{Type: SenderUser, ID: s.userID, Username: s.username})
	case SenderGuest:
		return json.Marshal(senderJSON{Type: SenderGuest, Username: s.username})
	}
	return nil, fmt.Errorf("model: sender without kind")
}

// UnmarshalJSON accepts the two shapes produced by MarshalJSON.
func (s *Sender) UnmarshalJSON(data []byte) error {
	var raw senderJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw.Type {
	case SenderUser:
		if raw.ID == "" {
			return fmt.Errorf("model: user sender without id")
		}
		*s = UserSender(raw.ID, raw.Username)
	case SenderGuest:
		*s = GuestSender(raw.Username)
	default:
		return fmt.Errorf("model: unknown sender type %q", raw.Type)
	}
	return nil
}
