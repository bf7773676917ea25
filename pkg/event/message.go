package event

import (
	"github.com/beeper/chatgate/pkg/segment"
)

// Role is a group member's role as reported by the gateway.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Sender describes the author of a message event. Group-only fields are
// empty for private messages.
type Sender struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Card     string `json:"card,omitempty"`
	Sex      string `json:"sex,omitempty"`
	Age      int    `json:"age,omitempty"`
	Area     string `json:"area,omitempty"`
	Level    string `json:"level,omitempty"`
	Role     Role   `json:"role,omitempty"`
	Title    string `json:"title,omitempty"`
}

// DisplayName returns the group card if set, the nickname otherwise.
func (s Sender) DisplayName() string {
	if s.Card != "" {
		return s.Card
	}
	return s.Nickname
}

// MessageBase holds the fields shared by private and group messages.
type MessageBase struct {
	Header
	MessageType string          `json:"message_type"`
	SubType     string          `json:"sub_type"`
	MessageID   int64           `json:"message_id"`
	UserID      int64           `json:"user_id"`
	Message     segment.Message `json:"message"`
	RawMessage  string          `json:"raw_message"`
	Font        int             `json:"font"`
	Sender      Sender          `json:"sender"`
}

func (m *MessageBase) Msg() *MessageBase { return m }

// PlainText concatenates the plain-text rendering of every segment.
func (m *MessageBase) PlainText() string { return m.Message.PlainText() }

// Wire re-encodes the message body into wire segments.
func (m *MessageBase) Wire() ([]segment.Wire, error) { return m.Message.Wire() }

// Message is implemented by private and group message events.
type Message interface {
	Event
	Msg() *MessageBase
}

// Temp-session sources reported on private messages that did not come from
// a friend.
const (
	TempSourceGroup       = 0
	TempSourceConsult     = 1
	TempSourceSearch      = 2
	TempSourceMovie       = 3
	TempSourceHotChat     = 4
	TempSourceVerify      = 6
	TempSourceMultiChat   = 7
	TempSourceDating      = 8
	TempSourceAddressBook = 9
)

type PrivateMessage struct {
	MessageBase
	TargetID   int64 `json:"target_id"`
	TempSource int   `json:"temp_source"`
}

func (*PrivateMessage) expect() expectation {
	return expectation{post: PostMessage, secondary: "private"}
}

func (m *PrivateMessage) validate() error {
	return requireID("private message", "user_id", m.UserID)
}

// IsTemp reports whether the message arrived through a temporary session
// rather than from a friend.
func (m *PrivateMessage) IsTemp() bool { return m.SubType == "group" || m.SubType == "other" }

// AnonymousSender identifies an anonymous group message author.
type AnonymousSender struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Flag string `json:"flag"`
}

type GroupMessage struct {
	MessageBase
	GroupID   int64            `json:"group_id"`
	Anonymous *AnonymousSender `json:"anonymous,omitempty"`
}

func (*GroupMessage) expect() expectation {
	return expectation{post: PostMessage, secondary: "group"}
}

func (m *GroupMessage) Group() int64 { return m.GroupID }

func (m *GroupMessage) validate() error {
	if err := requireID("group message", "group_id", m.GroupID); err != nil {
		return err
	}
	return requireID("group message", "user_id", m.UserID)
}
