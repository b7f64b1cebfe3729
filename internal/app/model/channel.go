package model

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"parley/internal/pkg/errs"
)

const (
	ChannelNameMinLen     = 3
	ChannelNameMaxLen     = 30
	ChannelDescriptionMax = 200
)

// Channel is a group conversation. Its visibility class is derived from
// IsPrivate and IsRestricted, see policy.ClassOf.
type Channel struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	IsPrivate    bool      `json:"isPrivate"`
	IsRestricted bool      `json:"isRestricted"`
	Members      []string  `json:"members"`
	CreatedBy    string    `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
}

// HasMember reports whether userID is in the member set.
func (c *Channel) HasMember(userID string) bool {
	return userID != "" && slices.Contains(c.Members, userID)
}

// Clone returns a copy whose member slice is not shared with c.
func (c *Channel) Clone() *Channel {
	cp := *c
	cp.Members = slices.Clone(c.Members)
	return &cp
}

// NormalizeChannelName trims name and checks its length.
func NormalizeChannelName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < ChannelNameMinLen || n > ChannelNameMaxLen {
		return "", errs.NewError(errs.ErrChannelNameInvalid, ChannelNameMinLen, ChannelNameMaxLen)
	}
	return name, nil
}

// NormalizeDescription trims description and checks its length.
func NormalizeDescription(description string) (string, error) {
	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) > ChannelDescriptionMax {
		return "", errs.NewError(errs.ErrDescriptionTooLong, ChannelDescriptionMax)
	}
	return description, nil
}
