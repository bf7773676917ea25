package segment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Message is an ordered list of segments.
type Message []Segment

// TextMessage builds a message consisting of a single text segment.
func TextMessage(text string) Message {
	return Message{&Text{Text: text}}
}

// PlainText concatenates the plain-text rendering of every segment.
func (m Message) PlainText() string {
	var sb strings.Builder
	for _, seg := range m {
		sb.WriteString(seg.PlainText())
	}
	return sb.String()
}

// Wire encodes every segment into its wire form.
func (m Message) Wire() ([]Wire, error) {
	out := make([]Wire, 0, len(m))
	for i, seg := range m {
		w, err := Encode(seg)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		out = append(out, w)
	}
	return out, nil
}

// Filter returns the segments of the given kind.
func (m Message) Filter(kind Kind) Message {
	var out Message
	for _, seg := range m {
		if seg.Kind() == kind {
			out = append(out, seg)
		}
	}
	return out
}

// Mentions returns the user ids mentioned by at segments, including "all".
func (m Message) Mentions() []string {
	var out []string
	for _, seg := range m {
		if at, ok := seg.(*At); ok {
			out = append(out, at.QQ)
		}
	}
	return out
}

func (m Message) MarshalJSON() ([]byte, error) {
	wires, err := m.Wire()
	if err != nil {
		return nil, err
	}
	return json.Marshal(wires)
}

// UnmarshalJSON accepts both the segment array form and the CQ-code string form.
func (m *Message) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeMessage(data)
	if err != nil {
		return err
	}
	*m = decoded
	return nil
}

// DecodeMessage decodes a message body that is either an array of wire
// segments or a CQ-code string.
func DecodeMessage(raw json.RawMessage) (Message, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	switch trimmed[0] {
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return nil, err
		}
		return ParseCQ(text), nil
	case '{':
		// A lone segment object is tolerated by most gateways.
		trimmed = append(append([]byte{'['}, trimmed...), ']')
	}
	var wires []Wire
	if err := json.Unmarshal(trimmed, &wires); err != nil {
		return nil, fmt.Errorf("decoding message body: %w", err)
	}
	msg := make(Message, 0, len(wires))
	for i, w := range wires {
		seg, err := Decode(w)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		msg = append(msg, seg)
	}
	return msg, nil
}
