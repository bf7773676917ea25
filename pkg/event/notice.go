package event

import "strings"

// Notice categories used for union matching by listeners.
const (
	CategoryGroup  = "group"
	CategoryFriend = "friend"
	CategoryClient = "client"
	CategoryOther  = "other"
)

// NoticeBase holds the fields shared by every notice.
type NoticeBase struct {
	Header
	NoticeType string `json:"notice_type"`
	SubType    string `json:"sub_type,omitempty"`
}

func (n *NoticeBase) NoticeHeader() *NoticeBase { return n }

// Notice is implemented by every notice variant.
type Notice interface {
	Event
	NoticeHeader() *NoticeBase
	// Kind is the listener discriminator: the notice type, or the sub type
	// for "notify" notices.
	Kind() string
	Category() string
}

// GroupScoped is implemented by events that belong to a group.
type GroupScoped interface {
	Group() int64
}

type GroupRecall struct {
	NoticeBase
	GroupID    int64 `json:"group_id"`
	UserID     int64 `json:"user_id"`
	OperatorID int64 `json:"operator_id"`
	MessageID  int64 `json:"message_id"`
}

func (*GroupRecall) expect() expectation {
	return expectation{post: PostNotice, secondary: "group_recall"}
}
func (*GroupRecall) Kind() string      { return "group_recall" }
func (*GroupRecall) Category() string  { return CategoryGroup }
func (n *GroupRecall) Group() int64    { return n.GroupID }
func (n *GroupRecall) validate() error { return requireGroup(n) }

type FriendRecall struct {
	NoticeBase
	UserID    int64 `json:"user_id"`
	MessageID int64 `json:"message_id"`
}

func (*FriendRecall) expect() expectation {
	return expectation{post: PostNotice, secondary: "friend_recall"}
}
func (*FriendRecall) Kind() string     { return "friend_recall" }
func (*FriendRecall) Category() string { return CategoryFriend }

func (n *FriendRecall) validate() error {
	return requireID("friend_recall", "user_id", n.UserID)
}

// GroupAdmin reports an admin being set (SubType "set") or unset ("unset").
type GroupAdmin struct {
	NoticeBase
	GroupID int64 `json:"group_id"`
	UserID  int64 `json:"user_id"`
}

func (*GroupAdmin) expect() expectation {
	return expectation{post: PostNotice, secondary: "group_admin"}
}
func (*GroupAdmin) Kind() string      { return "group_admin" }
func (*GroupAdmin) Category() string  { return CategoryGroup }
func (n *GroupAdmin) Group() int64    { return n.GroupID }
func (n *GroupAdmin) validate() error { return requireGroup(n) }
func (n *GroupAdmin) IsSet() bool     { return n.SubType == "set" }

// GroupIncrease reports a new member (SubType "approve" or "invite").
type GroupIncrease struct {
	NoticeBase
	GroupID    int64 `json:"group_id"`
	UserID     int64 `json:"user_id"`
	OperatorID int64 `json:"operator_id"`
}

func (*GroupIncrease) expect() expectation {
	return expectation{post: PostNotice, secondary: "group_increase"}
}
func (*GroupIncrease) Kind() string      { return "group_increase" }
func (*GroupIncrease) Category() string  { return CategoryGroup }
func (n *GroupIncrease) Group() int64    { return n.GroupID }
func (n *GroupIncrease) validate() error { return requireGroup(n) }

// GroupDecrease reports a member leaving (SubType "leave", "kick" or
// "kick_me" when the bot itself was removed).
type GroupDecrease struct {
	NoticeBase
	GroupID    int64 `json:"group_id"`
	UserID     int64 `json:"user_id"`
	OperatorID int64 `json:"operator_id"`
}

func (*GroupDecrease) expect() expectation {
	return expectation{post: PostNotice, secondary: "group_decrease"}
}
func (*GroupDecrease) Kind() string      { return "group_decrease" }
func (*GroupDecrease) Category() string  { return CategoryGroup }
func (n *GroupDecrease) Group() int64    { return n.GroupID }
func (n *GroupDecrease) validate() error { return requireGroup(n) }
func (n *GroupDecrease) IsSelf() bool    { return n.SubType == "kick_me" || n.UserID == n.SelfID }

type GroupCard struct {
	NoticeBase
	GroupID int64  `json:"group_id"`
	UserID  int64  `json:"user_id"`
	CardNew string `json:"card_new"`
	CardOld string `json:"card_old"`
}

func (*GroupCard) expect() expectation {
	return expectation{post: PostNotice, secondary: "group_card"}
}
func (*GroupCard) Kind() string      { return "group_card" }
func (*GroupCard) Category() string  { return CategoryGroup }
func (n *GroupCard) Group() int64    { return n.GroupID }
func (n *GroupCard) validate() error { return requireGroup(n) }

// GroupBan reports a mute (SubType "ban") or unmute ("lift_ban"). UserID 0
// means the whole group.
type GroupBan struct {
	NoticeBase
	GroupID    int64 `json:"group_id"`
	UserID     int64 `json:"user_id"`
	OperatorID int64 `json:"operator_id"`
	Duration   int64 `json:"duration"`
}

func (*GroupBan) expect() expectation {
	return expectation{post: PostNotice, secondary: "group_ban"}
}
func (*GroupBan) Kind() string      { return "group_ban" }
func (*GroupBan) Category() string  { return CategoryGroup }
func (n *GroupBan) Group() int64    { return n.GroupID }
func (n *GroupBan) validate() error { return requireGroup(n) }

// Essence reports a message being added to ("add") or removed from
// ("delete") the group's essence list.
type Essence struct {
	NoticeBase
	GroupID    int64 `json:"group_id"`
	SenderID   int64 `json:"sender_id"`
	OperatorID int64 `json:"operator_id"`
	MessageID  int64 `json:"message_id"`
}

func (*Essence) expect() expectation {
	return expectation{post: PostNotice, secondary: "essence"}
}
func (*Essence) Kind() string      { return "essence" }
func (*Essence) Category() string  { return CategoryGroup }
func (n *Essence) Group() int64    { return n.GroupID }
func (n *Essence) validate() error { return requireGroup(n) }

type FriendAdd struct {
	NoticeBase
	UserID int64 `json:"user_id"`
}

func (*FriendAdd) expect() expectation {
	return expectation{post: PostNotice, secondary: "friend_add"}
}
func (*FriendAdd) Kind() string     { return "friend_add" }
func (*FriendAdd) Category() string { return CategoryFriend }

func (n *FriendAdd) validate() error {
	return requireID("friend_add", "user_id", n.UserID)
}

// UploadedFile describes a file uploaded to a group.
type UploadedFile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	BusID int64  `json:"busid"`
}

type GroupUpload struct {
	NoticeBase
	GroupID int64        `json:"group_id"`
	UserID  int64        `json:"user_id"`
	File    UploadedFile `json:"file"`
}

func (*GroupUpload) expect() expectation {
	return expectation{post: PostNotice, secondary: "group_upload"}
}
func (*GroupUpload) Kind() string      { return "group_upload" }
func (*GroupUpload) Category() string  { return CategoryGroup }
func (n *GroupUpload) Group() int64    { return n.GroupID }
func (n *GroupUpload) validate() error { return requireGroup(n) }

// Poke is a "notify" notice. GroupID is zero for a friend poke.
type Poke struct {
	NoticeBase
	GroupID  int64 `json:"group_id"`
	UserID   int64 `json:"user_id"`
	TargetID int64 `json:"target_id"`
}

func (*Poke) expect() expectation {
	return expectation{post: PostNotice, secondary: "notify", sub: "poke"}
}
func (*Poke) Kind() string   { return "poke" }
func (n *Poke) Group() int64 { return n.GroupID }
func (n *Poke) Category() string {
	if n.GroupID != 0 {
		return CategoryGroup
	}
	return CategoryFriend
}

// LuckyKing reports the winner of a group red envelope.
type LuckyKing struct {
	NoticeBase
	GroupID  int64 `json:"group_id"`
	UserID   int64 `json:"user_id"`
	TargetID int64 `json:"target_id"`
}

func (*LuckyKing) expect() expectation {
	return expectation{post: PostNotice, secondary: "notify", sub: "lucky_king"}
}
func (*LuckyKing) Kind() string      { return "lucky_king" }
func (*LuckyKing) Category() string  { return CategoryGroup }
func (n *LuckyKing) Group() int64    { return n.GroupID }
func (n *LuckyKing) validate() error { return requireGroup(n) }

// Honor reports a group honor change ("talkative", "performer", "emotion").
type Honor struct {
	NoticeBase
	GroupID   int64  `json:"group_id"`
	UserID    int64  `json:"user_id"`
	HonorType string `json:"honor_type"`
}

func (*Honor) expect() expectation {
	return expectation{post: PostNotice, secondary: "notify", sub: "honor"}
}
func (*Honor) Kind() string      { return "honor" }
func (*Honor) Category() string  { return CategoryGroup }
func (n *Honor) Group() int64    { return n.GroupID }
func (n *Honor) validate() error { return requireGroup(n) }

// Title reports a member's special title change.
type Title struct {
	NoticeBase
	GroupID int64  `json:"group_id"`
	UserID  int64  `json:"user_id"`
	Title   string `json:"title"`
}

func (*Title) expect() expectation {
	return expectation{post: PostNotice, secondary: "notify", sub: "title"}
}
func (*Title) Kind() string      { return "title" }
func (*Title) Category() string  { return CategoryGroup }
func (n *Title) Group() int64    { return n.GroupID }
func (n *Title) validate() error { return requireGroup(n) }

func requireGroup(n interface {
	Kind() string
	Group() int64
}) error {
	return requireID(n.Kind(), "group_id", n.Group())
}

// Device describes a client of the logged-in account.
type Device struct {
	AppID      int64  `json:"app_id"`
	DeviceName string `json:"device_name"`
	DeviceKind string `json:"device_kind"`
}

// ClientStatus reports another client of the account going on- or offline.
type ClientStatus struct {
	NoticeBase
	Client Device `json:"client"`
	Online bool   `json:"online"`
}

func (*ClientStatus) expect() expectation {
	return expectation{post: PostNotice, secondary: "client_status"}
}
func (*ClientStatus) Kind() string     { return "client_status" }
func (*ClientStatus) Category() string { return CategoryClient }

// UnknownNotice is a notice whose type matches no known variant.
type UnknownNotice struct {
	NoticeBase
	GroupID int64 `json:"group_id,omitempty"`
	UserID  int64 `json:"user_id,omitempty"`
}

func (*UnknownNotice) expect() expectation { return expectation{post: PostNotice} }
func (n *UnknownNotice) Group() int64      { return n.GroupID }

func (n *UnknownNotice) Kind() string {
	if n.NoticeType == "notify" && n.SubType != "" {
		return n.SubType
	}
	return n.NoticeType
}

func (n *UnknownNotice) Category() string {
	switch {
	case n.GroupID != 0 || strings.HasPrefix(n.NoticeType, "group_"):
		return CategoryGroup
	case strings.HasPrefix(n.NoticeType, "friend_"):
		return CategoryFriend
	}
	return CategoryOther
}

var noticeFactories = []func() Event{
	func() Event { return &GroupRecall{} },
	func() Event { return &FriendRecall{} },
	func() Event { return &GroupAdmin{} },
	func() Event { return &GroupIncrease{} },
	func() Event { return &GroupDecrease{} },
	func() Event { return &GroupCard{} },
	func() Event { return &GroupBan{} },
	func() Event { return &Essence{} },
	func() Event { return &FriendAdd{} },
	func() Event { return &GroupUpload{} },
	func() Event { return &Poke{} },
	func() Event { return &LuckyKing{} },
	func() Event { return &Honor{} },
	func() Event { return &Title{} },
	func() Event { return &ClientStatus{} },
}
