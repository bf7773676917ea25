package session

import (
	"context"

	"github.com/beeper/chatgate/pkg/action"
	"github.com/beeper/chatgate/pkg/segment"
)

// LoginInfo is the data of get_login_info.
type LoginInfo struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
}

// Stranger is the data of get_stranger_info.
type Stranger struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Sex      string `json:"sex"`
	Age      int    `json:"age"`
}

// SentMessage is the data of the send_* actions.
type SentMessage struct {
	MessageID int64 `json:"message_id"`
}

func (s *Session) SendPrivateMessage(ctx context.Context, userID int64, msg segment.Message) (int64, error) {
	wire, err := msg.Wire()
	if err != nil {
		return 0, err
	}
	sent, err := Call[SentMessage](ctx, s, action.SendPrivateMsg, map[string]any{
		"user_id": userID,
		"message": wire,
	})
	return sent.MessageID, err
}

func (s *Session) SendGroupMessage(ctx context.Context, groupID int64, msg segment.Message) (int64, error) {
	wire, err := msg.Wire()
	if err != nil {
		return 0, err
	}
	sent, err := Call[SentMessage](ctx, s, action.SendGroupMsg, map[string]any{
		"group_id": groupID,
		"message":  wire,
	})
	return sent.MessageID, err
}

func (s *Session) DeleteMessage(ctx context.Context, messageID int64) error {
	_, err := s.Invoke(ctx, action.DeleteMsg, map[string]any{"message_id": messageID})
	return err
}

func (s *Session) GetLoginInfo(ctx context.Context) (LoginInfo, error) {
	return Call[LoginInfo](ctx, s, action.GetLoginInfo, nil)
}

func (s *Session) GetStrangerInfo(ctx context.Context, userID int64) (Stranger, error) {
	return Call[Stranger](ctx, s, action.GetStrangerInfo, map[string]any{"user_id": userID})
}

func (s *Session) GetFriendList(ctx context.Context) ([]Friend, error) {
	return Call[[]Friend](ctx, s, action.GetFriendList, nil)
}

func (s *Session) GetGroupList(ctx context.Context) ([]GroupInfo, error) {
	return Call[[]GroupInfo](ctx, s, action.GetGroupList, nil)
}

// GetGroupInfo fetches group info and writes it into the directory.
func (s *Session) GetGroupInfo(ctx context.Context, groupID int64) (GroupInfo, error) {
	info, err := Call[GroupInfo](ctx, s, action.GetGroupInfo, map[string]any{"group_id": groupID})
	if err == nil {
		if info.GroupID == 0 {
			info.GroupID = groupID
		}
		s.dir.fillGroupInfo(info)
	}
	return info, err
}

// GetGroupMemberList fetches the member list and replaces the cached one.
func (s *Session) GetGroupMemberList(ctx context.Context, groupID int64) ([]Member, error) {
	members, err := Call[[]Member](ctx, s, action.GetGroupMemberList, map[string]any{"group_id": groupID})
	if err == nil {
		s.dir.fillMembers(groupID, members)
	}
	return members, err
}

// GetGroupMemberInfo fetches one member, bypassing the cache, and stores it.
func (s *Session) GetGroupMemberInfo(ctx context.Context, groupID, userID int64) (Member, error) {
	member, err := Call[Member](ctx, s, action.GetGroupMemberInfo, map[string]any{
		"group_id": groupID,
		"user_id":  userID,
		"no_cache": true,
	})
	if err == nil && member.UserID == userID {
		s.dir.addGroupMember(groupID, member)
	}
	return member, err
}

func (s *Session) SetGroupKick(ctx context.Context, groupID, userID int64, rejectAddRequest bool) error {
	_, err := s.Invoke(ctx, action.SetGroupKick, map[string]any{
		"group_id":           groupID,
		"user_id":            userID,
		"reject_add_request": rejectAddRequest,
	})
	return err
}

// SetGroupBan mutes a member for seconds; zero lifts the mute.
func (s *Session) SetGroupBan(ctx context.Context, groupID, userID int64, seconds int64) error {
	_, err := s.Invoke(ctx, action.SetGroupBan, map[string]any{
		"group_id": groupID,
		"user_id":  userID,
		"duration": seconds,
	})
	return err
}

func (s *Session) SetGroupCard(ctx context.Context, groupID, userID int64, card string) error {
	_, err := s.Invoke(ctx, action.SetGroupCard, map[string]any{
		"group_id": groupID,
		"user_id":  userID,
		"card":     card,
	})
	if err == nil {
		s.dir.applyCardChange(groupID, userID, card)
	}
	return err
}
