package session

import (
	"context"
	"fmt"

	"github.com/beeper/chatgate/pkg/action"
	"github.com/beeper/chatgate/pkg/event"
)

// Apply patches the directory with the state change an event describes.
// It runs on the session's event worker before listeners see the event.
func (s *Session) Apply(evt event.Event) {
	if selfID := evt.Base().SelfID; selfID != 0 {
		s.selfID.Store(selfID)
	}
	switch evt := evt.(type) {
	case *event.GroupMessage:
		if evt.Anonymous != nil {
			s.dir.addGroup(evt.GroupID)
			return
		}
		s.dir.addGroupMember(evt.GroupID, Member{
			UserID:   evt.UserID,
			Nickname: evt.Sender.Nickname,
			Card:     evt.Sender.Card,
			Role:     evt.Sender.Role,
			Title:    evt.Sender.Title,
			Level:    evt.Sender.Level,
			LastSent: evt.Time.Unix(),
		})
	case *event.GroupIncrease:
		if evt.UserID == evt.SelfID {
			s.dir.addGroup(evt.GroupID)
			return
		}
		s.dir.addGroupMember(evt.GroupID, Member{UserID: evt.UserID, Role: event.RoleMember, JoinTime: evt.Time.Unix()})
		if evt.UserID > 0 {
			s.resolveMember(evt.GroupID, evt.UserID)
		}
	case *event.GroupDecrease:
		if evt.IsSelf() {
			s.dir.removeGroup(evt.GroupID)
			return
		}
		s.dir.removeGroupMember(evt.GroupID, evt.UserID)
	case *event.GroupAdmin:
		s.dir.applyAdminChange(evt.GroupID, evt.UserID, evt.IsSet())
	case *event.GroupCard:
		s.dir.applyCardChange(evt.GroupID, evt.UserID, evt.CardNew)
	case *event.Title:
		s.dir.applyTitleChange(evt.GroupID, evt.UserID, evt.Title)
	case *event.FriendAdd:
		if s.dir.addFriend(Friend{UserID: evt.UserID}) {
			s.resolveFriend(evt.UserID)
		}
	case *event.Lifecycle:
		if evt.IsConnect() {
			go func() {
				if err := s.Prime(s.ctx); err != nil {
					s.log.Warn().Err(err).Msg("Failed to prime directory after connect")
				}
			}()
		}
	}
}

// PopulateGroup fetches group info and the member list for a group the
// directory has just created. Requests are issued off the caller's
// goroutine since the directory calls this with its lock held.
func (s *Session) PopulateGroup(groupID int64) {
	go func() {
		err := s.InvokeAsync(s.ctx, action.GetGroupInfo, map[string]any{"group_id": groupID}, func(resp *action.Response, err error) {
			if err != nil {
				s.log.Debug().Err(err).Int64("group_id", groupID).Msg("Failed to fetch group info")
				return
			}
			var info GroupInfo
			if err = resp.Into(&info); err != nil {
				s.log.Debug().Err(err).Int64("group_id", groupID).Msg("Undecodable group info")
				return
			}
			if info.GroupID == 0 {
				info.GroupID = groupID
			}
			s.dir.fillGroupInfo(info)
		})
		if err != nil {
			s.log.Debug().Err(err).Int64("group_id", groupID).Msg("Failed to request group info")
		}
	}()
	s.ResolveMembers(groupID)
}

// ResolveMembers re-fetches a group's member list in the background.
func (s *Session) ResolveMembers(groupID int64) {
	go func() {
		err := s.InvokeAsync(s.ctx, action.GetGroupMemberList, map[string]any{"group_id": groupID}, func(resp *action.Response, err error) {
			if err != nil {
				s.log.Debug().Err(err).Int64("group_id", groupID).Msg("Failed to fetch member list")
				return
			}
			var members []Member
			if err = resp.Into(&members); err != nil {
				s.log.Debug().Err(err).Int64("group_id", groupID).Msg("Undecodable member list")
				return
			}
			s.dir.fillMembers(groupID, members)
		})
		if err != nil {
			s.log.Debug().Err(err).Int64("group_id", groupID).Msg("Failed to request member list")
		}
	}()
}

func (s *Session) resolveMember(groupID, userID int64) {
	params := map[string]any{"group_id": groupID, "user_id": userID}
	err := s.InvokeAsync(s.ctx, action.GetGroupMemberInfo, params, func(resp *action.Response, err error) {
		if err != nil {
			return
		}
		var member Member
		if resp.Into(&member) == nil && member.UserID == userID {
			s.dir.addGroupMember(groupID, member)
		}
	})
	if err != nil {
		s.log.Debug().Err(err).Int64("group_id", groupID).Int64("user_id", userID).Msg("Failed to request member info")
	}
}

func (s *Session) resolveFriend(userID int64) {
	err := s.InvokeAsync(s.ctx, action.GetStrangerInfo, map[string]any{"user_id": userID}, func(resp *action.Response, err error) {
		if err != nil {
			return
		}
		var info Stranger
		if resp.Into(&info) == nil && info.UserID == userID {
			s.dir.addFriend(Friend{UserID: userID, Nickname: info.Nickname})
		}
	})
	if err != nil {
		s.log.Debug().Err(err).Int64("user_id", userID).Msg("Failed to request stranger info")
	}
}

// Prime loads the account, group and friend lists into the directory. It
// is run when a peer connects and on every scheduled refresh.
func (s *Session) Prime(ctx context.Context) error {
	login, err := s.GetLoginInfo(ctx)
	if err != nil {
		return fmt.Errorf("loading login info: %w", err)
	}
	if login.UserID != 0 {
		s.selfID.Store(login.UserID)
	}
	groups, err := s.GetGroupList(ctx)
	if err != nil {
		return fmt.Errorf("loading group list: %w", err)
	}
	s.dir.replaceGroups(groups)
	friends, err := s.GetFriendList(ctx)
	if err != nil {
		return fmt.Errorf("loading friend list: %w", err)
	}
	s.dir.replaceFriends(friends)
	s.log.Info().
		Int64("self_id", s.SelfID()).
		Int("groups", len(groups)).
		Int("friends", len(friends)).
		Msg("Directory primed")
	return nil
}
