package event

// RequestBase holds the fields shared by every request.
type RequestBase struct {
	Header
	RequestType string `json:"request_type"`
	SubType     string `json:"sub_type,omitempty"`
	UserID      int64  `json:"user_id"`
	Comment     string `json:"comment"`
	// Flag must be echoed back when approving or rejecting the request.
	Flag string `json:"flag"`
}

func (r *RequestBase) RequestHeader() *RequestBase { return r }

// Request is implemented by every request variant.
type Request interface {
	Event
	RequestHeader() *RequestBase
	Kind() string
}

type FriendRequest struct {
	RequestBase
}

func (*FriendRequest) expect() expectation {
	return expectation{post: PostRequest, secondary: "friend"}
}
func (*FriendRequest) Kind() string { return "friend" }
func (r *FriendRequest) validate() error {
	return requireID("friend request", "user_id", r.UserID)
}

// GroupRequest is a join request (SubType "add") or an invitation for the
// bot to join (SubType "invite").
type GroupRequest struct {
	RequestBase
	GroupID int64 `json:"group_id"`
}

func (*GroupRequest) expect() expectation {
	return expectation{post: PostRequest, secondary: "group"}
}
func (*GroupRequest) Kind() string   { return "group" }
func (r *GroupRequest) Group() int64 { return r.GroupID }
func (r *GroupRequest) validate() error {
	return requireID("group request", "group_id", r.GroupID)
}
func (r *GroupRequest) IsInvite() bool {
	return r.SubType == "invite"
}

type UnknownRequest struct {
	RequestBase
}

func (*UnknownRequest) expect() expectation { return expectation{post: PostRequest} }
func (r *UnknownRequest) Kind() string      { return r.RequestType }
