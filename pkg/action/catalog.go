package action

import (
	"fmt"
	"strings"
)

// Names of the actions the session exposes typed helpers for. Any other
// name can still be invoked through the generic call.
const (
	SendPrivateMsg     = "send_private_msg"
	SendGroupMsg       = "send_group_msg"
	SendMsg            = "send_msg"
	DeleteMsg          = "delete_msg"
	GetMsg             = "get_msg"
	GetForwardMsg      = "get_forward_msg"
	SendLike           = "send_like"
	SetGroupKick       = "set_group_kick"
	SetGroupBan        = "set_group_ban"
	SetGroupWholeBan   = "set_group_whole_ban"
	SetGroupAdmin      = "set_group_admin"
	SetGroupCard       = "set_group_card"
	SetGroupName       = "set_group_name"
	SetGroupLeave      = "set_group_leave"
	SetGroupSpecial    = "set_group_special_title"
	SetFriendAddReq    = "set_friend_add_request"
	SetGroupAddReq     = "set_group_add_request"
	GetLoginInfo       = "get_login_info"
	GetStrangerInfo    = "get_stranger_info"
	GetFriendList      = "get_friend_list"
	GetGroupInfo       = "get_group_info"
	GetGroupList       = "get_group_list"
	GetGroupMemberInfo = "get_group_member_info"
	GetGroupMemberList = "get_group_member_list"
	GetStatus          = "get_status"
	GetVersionInfo     = "get_version_info"
	HandleQuickOp      = ".handle_quick_operation"
)

// Info is the metadata kept for a catalogued action.
type Info struct {
	Name     string
	Required []string
}

var catalog = map[string]Info{}

func define(name string, required ...string) {
	catalog[name] = Info{Name: name, Required: required}
}

func init() {
	define(SendPrivateMsg, "user_id", "message")
	define(SendGroupMsg, "group_id", "message")
	define(SendMsg, "message")
	define(DeleteMsg, "message_id")
	define(GetMsg, "message_id")
	define(GetForwardMsg, "id")
	define(SendLike, "user_id")
	define(SetGroupKick, "group_id", "user_id")
	define(SetGroupBan, "group_id", "user_id")
	define(SetGroupWholeBan, "group_id")
	define(SetGroupAdmin, "group_id", "user_id")
	define(SetGroupCard, "group_id", "user_id")
	define(SetGroupName, "group_id", "group_name")
	define(SetGroupLeave, "group_id")
	define(SetGroupSpecial, "group_id", "user_id")
	define(SetFriendAddReq, "flag")
	define(SetGroupAddReq, "flag")
	define(GetLoginInfo)
	define(GetStrangerInfo, "user_id")
	define(GetFriendList)
	define(GetGroupInfo, "group_id")
	define(GetGroupList)
	define(GetGroupMemberInfo, "group_id", "user_id")
	define(GetGroupMemberList, "group_id")
	define(GetStatus)
	define(GetVersionInfo)
	define(HandleQuickOp, "context", "operation")
}

// Lookup returns the catalogued metadata for name.
func Lookup(name string) (Info, bool) {
	info, ok := catalog[name]
	return info, ok
}

// Validate checks that map params carry every required field of a
// catalogued action. Uncatalogued actions and non-map params pass.
func Validate(name string, params any) error {
	info, ok := catalog[name]
	if !ok {
		return nil
	}
	fields, ok := params.(map[string]any)
	if !ok {
		return nil
	}
	for _, key := range info.Required {
		if _, present := fields[key]; !present {
			return fmt.Errorf("action %s: missing required param %q", name, key)
		}
	}
	return nil
}

// Path maps an action name onto the URL path used by HTTP peers. Dotted
// names become nested path segments; names with a leading dot are internal
// actions and keep their name verbatim.
func Path(name string) string {
	name = strings.TrimLeft(name, "/")
	if strings.HasPrefix(name, ".") {
		return "/" + name
	}
	return "/" + strings.ReplaceAll(name, ".", "/")
}
