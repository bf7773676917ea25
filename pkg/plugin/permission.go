package plugin

import (
	"fmt"
	"slices"
	"strings"

	"github.com/beeper/chatgate/pkg/event"
)

// Permission is a sender's privilege tier. Tiers are ordered: a listener
// with floor p accepts senders whose tier is at least p.
type Permission int

const (
	Everyone Permission = iota
	Member
	Admin
	Owner
	Superuser
)

var permissionNames = []string{"everyone", "member", "admin", "owner", "superuser"}

func (p Permission) String() string {
	if p < 0 || int(p) >= len(permissionNames) {
		return fmt.Sprintf("permission(%d)", int(p))
	}
	return permissionNames[p]
}

// ParsePermission parses a tier name case-insensitively.
func ParsePermission(name string) (Permission, error) {
	idx := slices.Index(permissionNames, strings.ToLower(strings.TrimSpace(name)))
	if idx < 0 {
		return Everyone, fmt.Errorf("unknown permission %q", name)
	}
	return Permission(idx), nil
}

// tierOf computes the sender tier of an event. Only message events carry a
// role; every other event is attributed to Everyone unless its actor is a
// superuser.
func tierOf(evt event.Event, superusers []int64) Permission {
	var userID int64
	tier := Everyone
	switch evt := evt.(type) {
	case *event.GroupMessage:
		userID = evt.UserID
		switch evt.Sender.Role {
		case event.RoleOwner:
			tier = Owner
		case event.RoleAdmin:
			tier = Admin
		default:
			tier = Member
		}
		if evt.Anonymous != nil {
			return Everyone
		}
	case *event.PrivateMessage:
		userID = evt.UserID
		tier = Member
	case event.Request:
		userID = evt.RequestHeader().UserID
	}
	if userID != 0 && slices.Contains(superusers, userID) {
		return Superuser
	}
	return tier
}
