package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"go.mau.fi/util/jsontime"
)

// PostType is the top-level discriminator of an inbound payload.
type PostType string

const (
	PostMessage     PostType = "message"
	PostMessageSent PostType = "message_sent"
	PostNotice      PostType = "notice"
	PostRequest     PostType = "request"
	PostMeta        PostType = "meta_event"
)

// Event is the closed set of classified inbound payloads.
type Event interface {
	PostType() PostType
	Base() *Header
	// Raw returns the payload the event was decoded from.
	Raw() json.RawMessage

	expect() expectation
}

// Header carries the fields every inbound payload has.
type Header struct {
	Time   jsontime.Unix `json:"time"`
	SelfID int64         `json:"self_id"`
	Type   PostType      `json:"post_type"`

	raw json.RawMessage
}

func (h *Header) PostType() PostType   { return h.Type }
func (h *Header) Base() *Header        { return h }
func (h *Header) Raw() json.RawMessage { return h.raw }

// Unknown is an inbound payload with no recognized post type, or one that
// could not be decoded into its typed variant.
type Unknown struct {
	Header
	// Reason explains why classification fell back to Unknown.
	Reason string `json:"-"`
}

func (*Unknown) expect() expectation { return expectation{} }

// WrongTypeError is returned when a payload is decoded into a specific event
// type whose discriminator does not match the payload.
type WrongTypeError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *WrongTypeError) Error() string {
	return fmt.Sprintf("wrong event type: %s is %q, expected %q", e.Field, e.Actual, e.Expected)
}

// IsWrongType reports whether err is a *WrongTypeError.
func IsWrongType(err error) bool {
	var wrongType *WrongTypeError
	return errors.As(err, &wrongType)
}

// MissingFieldError is returned when a payload matches a variant's
// discriminators but lacks an id that variant requires.
type MissingFieldError struct {
	Variant string
	Field   string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s payload has no %s", e.Variant, e.Field)
}

// IsMissingField reports whether err is a *MissingFieldError.
func IsMissingField(err error) bool {
	var missing *MissingFieldError
	return errors.As(err, &missing)
}

// validator is implemented by variants with required ids.
type validator interface {
	validate() error
}

func requireID(variant, field string, id int64) error {
	if id == 0 {
		return &MissingFieldError{Variant: variant, Field: field}
	}
	return nil
}

// expectation is the discriminator tuple a concrete type requires.
// Empty fields match anything.
type expectation struct {
	post      PostType
	secondary string
	sub       string
}

type probe struct {
	PostType      PostType `json:"post_type"`
	MessageType   string   `json:"message_type"`
	NoticeType    string   `json:"notice_type"`
	RequestType   string   `json:"request_type"`
	MetaEventType string   `json:"meta_event_type"`
	SubType       string   `json:"sub_type"`
}

func (p probe) secondary() (field, value string) {
	switch normalizePost(p.PostType) {
	case PostMessage:
		return "message_type", p.MessageType
	case PostNotice:
		return "notice_type", p.NoticeType
	case PostRequest:
		return "request_type", p.RequestType
	case PostMeta:
		return "meta_event_type", p.MetaEventType
	}
	return "", ""
}

// message_sent carries self-sent messages with the same shape as message.
func normalizePost(post PostType) PostType {
	if post == PostMessageSent {
		return PostMessage
	}
	return post
}

type tableKey struct {
	post      PostType
	secondary string
	sub       string
}

var (
	table     = map[tableKey]func() Event{}
	fallbacks = map[PostType]func() Event{
		PostNotice:  func() Event { return &UnknownNotice{} },
		PostRequest: func() Event { return &UnknownRequest{} },
		PostMeta:    func() Event { return &UnknownMeta{} },
	}
)

func register(factories ...func() Event) {
	for _, factory := range factories {
		exp := factory().expect()
		table[tableKey{post: exp.post, secondary: exp.secondary, sub: exp.sub}] = factory
	}
}

func init() {
	register(
		func() Event { return &PrivateMessage{} },
		func() Event { return &GroupMessage{} },
	)
	register(noticeFactories...)
	register(
		func() Event { return &FriendRequest{} },
		func() Event { return &GroupRequest{} },
	)
	register(
		func() Event { return &Lifecycle{} },
		func() Event { return &Heartbeat{} },
	)
}

// Classify turns a raw payload into exactly one typed event. It never fails:
// payloads that match no known shape become one of the Unknown variants.
func Classify(payload []byte) Event {
	raw := bytes.Clone(payload)
	var p probe
	if err := json.Unmarshal(raw, &p); err != nil {
		return &Unknown{Header: Header{raw: raw}, Reason: fmt.Sprintf("invalid payload: %v", err)}
	}
	_, secondary := p.secondary()
	post := normalizePost(p.PostType)
	factory, ok := table[tableKey{post: post, secondary: secondary, sub: p.SubType}]
	if !ok {
		factory, ok = table[tableKey{post: post, secondary: secondary}]
	}
	if !ok {
		factory, ok = fallbacks[post]
	}
	if !ok {
		return unknownFrom(raw, fmt.Sprintf("unrecognized post type %q", p.PostType))
	}
	evt := factory()
	if err := decode(raw, evt); err != nil {
		fallback, hasFallback := fallbacks[post]
		if !hasFallback {
			return unknownFrom(raw, err.Error())
		}
		evt = fallback()
		if err = decode(raw, evt); err != nil {
			return unknownFrom(raw, err.Error())
		}
	}
	return evt
}

func unknownFrom(raw json.RawMessage, reason string) *Unknown {
	evt := &Unknown{Reason: reason}
	_ = json.Unmarshal(raw, &evt.Header)
	evt.raw = raw
	return evt
}

func decode(raw json.RawMessage, evt Event) error {
	if err := json.Unmarshal(raw, evt); err != nil {
		return fmt.Errorf("decoding %T: %w", evt, err)
	}
	if v, ok := evt.(validator); ok {
		if err := v.validate(); err != nil {
			return err
		}
	}
	evt.Base().raw = raw
	return nil
}

// Parse decodes payload as the specific event type T and fails with a
// *WrongTypeError when the payload's discriminators belong to another type.
func Parse[T any, PT interface {
	*T
	Event
}](payload []byte) (PT, error) {
	evt := PT(new(T))
	var p probe
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decoding event discriminators: %w", err)
	}
	exp := evt.expect()
	if exp.post != "" && normalizePost(p.PostType) != exp.post {
		return nil, &WrongTypeError{Field: "post_type", Expected: string(exp.post), Actual: string(p.PostType)}
	}
	if field, secondary := p.secondary(); exp.secondary != "" && secondary != exp.secondary {
		return nil, &WrongTypeError{Field: field, Expected: exp.secondary, Actual: secondary}
	}
	if exp.sub != "" && p.SubType != exp.sub {
		return nil, &WrongTypeError{Field: "sub_type", Expected: exp.sub, Actual: p.SubType}
	}
	if err := decode(bytes.Clone(payload), evt); err != nil {
		return nil, err
	}
	return evt, nil
}
