package segment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind is the wire discriminator of a message segment.
type Kind string

const (
	KindText      Kind = "text"
	KindFace      Kind = "face"
	KindImage     Kind = "image"
	KindRecord    Kind = "record"
	KindVideo     Kind = "video"
	KindAt        Kind = "at"
	KindRPS       Kind = "rps"
	KindDice      Kind = "dice"
	KindShake     Kind = "shake"
	KindPoke      Kind = "poke"
	KindAnonymous Kind = "anonymous"
	KindShare     Kind = "share"
	KindContact   Kind = "contact"
	KindLocation  Kind = "location"
	KindMusic     Kind = "music"
	KindReply     Kind = "reply"
	KindForward   Kind = "forward"
	KindNode      Kind = "node"
	KindXML       Kind = "xml"
	KindJSON      Kind = "json"
	KindFile      Kind = "file"
	KindMarkdown  Kind = "markdown"
	KindTTS       Kind = "tts"
	KindGift      Kind = "gift"
	KindMFace     Kind = "mface"
)

// Segment is one fragment of a rich chat message.
type Segment interface {
	Kind() Kind
	// PlainText is a lossy human-readable rendering, never used for round-tripping.
	PlainText() string
}

// Wire is the {"type": ..., "data": {...}} form of a segment.
type Wire struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// WrongTypeError is returned when a wire segment cannot be decoded as the
// expected kind, either because the discriminator differs or because the
// kind-specific fields are malformed.
type WrongTypeError struct {
	Expected Kind
	Actual   Kind
	Err      error
}

func (e *WrongTypeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed %s segment (got %s): %v", e.Expected, e.Actual, e.Err)
	}
	return fmt.Sprintf("wrong segment type: expected %s, got %s", e.Expected, e.Actual)
}

func (e *WrongTypeError) Unwrap() error { return e.Err }

// IsWrongType reports whether err is a *WrongTypeError.
func IsWrongType(err error) bool {
	var wrongType *WrongTypeError
	return errors.As(err, &wrongType)
}

var registry = map[Kind]func() Segment{
	KindText:      func() Segment { return &Text{} },
	KindFace:      func() Segment { return &Face{} },
	KindImage:     func() Segment { return &Image{} },
	KindRecord:    func() Segment { return &Record{} },
	KindVideo:     func() Segment { return &Video{} },
	KindAt:        func() Segment { return &At{} },
	KindRPS:       func() Segment { return &RPS{} },
	KindDice:      func() Segment { return &Dice{} },
	KindShake:     func() Segment { return &Shake{} },
	KindPoke:      func() Segment { return &Poke{} },
	KindAnonymous: func() Segment { return &Anonymous{} },
	KindShare:     func() Segment { return &Share{} },
	KindContact:   func() Segment { return &Contact{} },
	KindLocation:  func() Segment { return &Location{} },
	KindMusic:     func() Segment { return &Music{} },
	KindReply:     func() Segment { return &Reply{} },
	KindForward:   func() Segment { return &Forward{} },
	KindNode:      func() Segment { return &Node{} },
	KindXML:       func() Segment { return &XML{} },
	KindJSON:      func() Segment { return &JSON{} },
	KindFile:      func() Segment { return &File{} },
	KindMarkdown:  func() Segment { return &Markdown{} },
	KindTTS:       func() Segment { return &TTS{} },
	KindGift:      func() Segment { return &Gift{} },
	KindMFace:     func() Segment { return &MFace{} },
}

// unknownData copies raw data, turning absent or null data into an empty
// object so that an Unknown re-encodes to what it decoded from.
func unknownData(data json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("{}")
	}
	return bytes.Clone(data)
}

// Known reports whether kind decodes to a concrete variant.
func Known(kind Kind) bool {
	_, ok := registry[kind]
	return ok
}

// Decode converts a wire segment into its typed variant. Unrecognized kinds
// decode to *Unknown and never fail.
func Decode(w Wire) (Segment, error) {
	kind := Kind(w.Type)
	factory, ok := registry[kind]
	if !ok {
		return &Unknown{Type: w.Type, Data: unknownData(w.Data)}, nil
	}
	fields, err := normalizeFields(w.Data)
	if err != nil {
		return nil, &WrongTypeError{Expected: kind, Actual: kind, Err: err}
	}
	seg := factory()
	if kind == KindMusic && isCustomMusic(fields) {
		seg = &CustomMusic{}
	}
	if err = json.Unmarshal(fields, seg); err != nil {
		return nil, &WrongTypeError{Expected: kind, Actual: kind, Err: err}
	}
	return seg, nil
}

// As decodes w and requires it to be the variant T.
func As[T Segment](w Wire) (T, error) {
	var zero T
	expected := zero.Kind()
	if Kind(w.Type) != expected {
		return zero, &WrongTypeError{Expected: expected, Actual: Kind(w.Type)}
	}
	seg, err := Decode(w)
	if err != nil {
		return zero, err
	}
	typed, ok := seg.(T)
	if !ok {
		return zero, &WrongTypeError{Expected: expected, Actual: seg.Kind()}
	}
	return typed, nil
}

// Encode converts a typed segment into its wire form.
func Encode(seg Segment) (Wire, error) {
	if seg == nil {
		return Wire{}, errors.New("nil segment")
	}
	if unknown, ok := seg.(*Unknown); ok {
		return unknown.wire(), nil
	}
	data, err := json.Marshal(seg)
	if err != nil {
		return Wire{}, fmt.Errorf("encoding %s segment: %w", seg.Kind(), err)
	}
	return Wire{Type: string(seg.Kind()), Data: data}, nil
}

// normalizeFields turns a data object into one where every top-level scalar
// is a JSON string. Gateways disagree on whether ids are sent as numbers or
// strings; the typed variants always hold strings.
func normalizeFields(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("{}"), nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("data is not an object: %w", err)
	}
	changed := false
	for key, value := range fields {
		value = bytes.TrimSpace(value)
		if len(value) == 0 {
			continue
		}
		switch value[0] {
		case '"', '{', '[':
			continue
		case 'n':
			delete(fields, key)
		default:
			quoted, err := json.Marshal(string(value))
			if err != nil {
				return nil, err
			}
			fields[key] = quoted
		}
		changed = true
	}
	if !changed {
		return trimmed, nil
	}
	return json.Marshal(fields)
}

func isCustomMusic(fields json.RawMessage) bool {
	var probe struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(fields, &probe)
	return probe.Type == "custom"
}
