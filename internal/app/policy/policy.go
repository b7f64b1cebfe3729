/*
Package policy decides what an identity may do with a channel.

The decision table, by visibility class:

	class       read                  post                            join
	Public      anyone                anyone (guests need a name)     authenticated
	Restricted  anyone                authenticated                   authenticated
	Private     authenticated member  authenticated member            authenticated

Every function is total over identity variants and classes.
*/
package policy

import (
	"parley/internal/app/identity"
	"parley/internal/app/model"
)

// Class is a channel's visibility class.
type Class int

const (
	Public Class = iota
	Restricted
	Private
)

func (c Class) String() string {
	switch c {
	case Public:
		return "public"
	case Restricted:
		return "restricted"
	case Private:
		return "private"
	}
	return "unknown"
}

// ClassOf derives the class from the channel flags. IsPrivate wins over IsRestricted.
func ClassOf(ch *model.Channel) Class {
	switch {
	case ch.IsPrivate:
		return Private
	case ch.IsRestricted:
		return Restricted
	default:
		return Public
	}
}

func member(id identity.Identity, ch *model.Channel) bool {
	a, ok := id.(identity.Authenticated)
	return ok && ch.HasMember(a.UserID)
}

// CanRead reports whether id may see the channel and its messages.
func CanRead(id identity.Identity, ch *model.Channel) bool {
	switch ClassOf(ch) {
	case Public, Restricted:
		return true
	case Private:
		return member(id, ch)
	}
	return false
}

// CanPost reports whether id may post. For Public channels the pipeline still
// requires a display name from guests and anonymous callers.
func CanPost(id identity.Identity, ch *model.Channel) bool {
	switch ClassOf(ch) {
	case Public:
		switch id.(type) {
		case identity.Authenticated, identity.Guest, identity.Anonymous:
			return true
		}
		return false
	case Restricted:
		_, ok := id.(identity.Authenticated)
		return ok
	case Private:
		return member(id, ch)
	}
	return false
}

// CanJoin reports whether id may become a persisted member. Only registered
// users have membership; on Private channels any registered user who can
// address the channel may join.
func CanJoin(id identity.Identity, ch *model.Channel) bool {
	switch ClassOf(ch) {
	case Public, Restricted, Private:
		_, ok := id.(identity.Authenticated)
		return ok
	}
	return false
}

// CanDelete reports whether id may delete the channel: only its creator.
func CanDelete(id identity.Identity, ch *model.Channel) bool {
	uid, ok := identity.UserID(id)
	return ok && uid == ch.CreatedBy
}

// CanDeleteMessage reports whether id may delete msg in ch: its author or the channel creator.
func CanDeleteMessage(id identity.Identity, ch *model.Channel, msg *model.Message) bool {
	uid, ok := identity.UserID(id)
	if !ok {
		return false
	}
	return msg.Sender.OwnedBy(uid) || uid == ch.CreatedBy
}
