package event

import "encoding/json"

// MetaBase holds the fields shared by meta events.
type MetaBase struct {
	Header
	MetaEventType string `json:"meta_event_type"`
	SubType       string `json:"sub_type,omitempty"`
}

func (m *MetaBase) MetaHeader() *MetaBase { return m }

// Meta is implemented by every meta event variant.
type Meta interface {
	Event
	MetaHeader() *MetaBase
}

// Lifecycle reports the gateway enabling, disabling or (re)connecting.
type Lifecycle struct {
	MetaBase
}

func (*Lifecycle) expect() expectation {
	return expectation{post: PostMeta, secondary: "lifecycle"}
}

// IsConnect reports whether this lifecycle event marks a fresh connection.
func (l *Lifecycle) IsConnect() bool { return l.SubType == "connect" }

type Heartbeat struct {
	MetaBase
	Status   json.RawMessage `json:"status"`
	Interval int64           `json:"interval"`
}

func (*Heartbeat) expect() expectation {
	return expectation{post: PostMeta, secondary: "heartbeat"}
}

type UnknownMeta struct {
	MetaBase
}

func (*UnknownMeta) expect() expectation { return expectation{post: PostMeta} }
