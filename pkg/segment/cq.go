package segment

import (
	"encoding/json"
	"sort"
	"strings"
)

var (
	cqTextEscaper = strings.NewReplacer("&", "&amp;", "[", "&#91;", "]", "&#93;")
	cqArgEscaper  = strings.NewReplacer("&", "&amp;", "[", "&#91;", "]", "&#93;", ",", "&#44;")
	cqUnescaper   = strings.NewReplacer("&#44;", ",", "&#91;", "[", "&#93;", "]", "&amp;", "&")
)

// ParseCQ parses the CQ-code string form of a message, e.g.
// "[CQ:at,qq=10001] hello". Malformed codes are kept as text.
func ParseCQ(text string) Message {
	var msg Message
	for len(text) > 0 {
		start := strings.Index(text, "[CQ:")
		if start < 0 {
			msg = appendText(msg, text)
			break
		}
		if start > 0 {
			msg = appendText(msg, text[:start])
		}
		end := strings.IndexByte(text[start:], ']')
		if end < 0 {
			msg = appendText(msg, text[start:])
			break
		}
		code := text[start+len("[CQ:") : start+end]
		msg = append(msg, parseCQCode(code, text[start:start+end+1]))
		text = text[start+end+1:]
	}
	return msg
}

func appendText(msg Message, raw string) Message {
	if raw == "" {
		return msg
	}
	return append(msg, &Text{Text: cqUnescaper.Replace(raw)})
}

func parseCQCode(code, original string) Segment {
	parts := strings.Split(code, ",")
	kind := strings.TrimSpace(parts[0])
	if kind == "" {
		return &Text{Text: cqUnescaper.Replace(original)}
	}
	fields := make(map[string]string, len(parts)-1)
	for _, part := range parts[1:] {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		fields[key] = cqUnescaper.Replace(value)
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return &Text{Text: cqUnescaper.Replace(original)}
	}
	seg, err := Decode(Wire{Type: kind, Data: data})
	if err != nil {
		return &Text{Text: cqUnescaper.Replace(original)}
	}
	return seg
}

// CQString renders the message in CQ-code string form. Nested node
// content cannot be expressed as CQ code and is rendered as plain text.
func (m Message) CQString() string {
	var sb strings.Builder
	for _, seg := range m {
		if text, ok := seg.(*Text); ok {
			sb.WriteString(cqTextEscaper.Replace(text.Text))
			continue
		}
		w, err := Encode(seg)
		if err != nil {
			sb.WriteString(cqTextEscaper.Replace(seg.PlainText()))
			continue
		}
		var fields map[string]any
		if err = json.Unmarshal(w.Data, &fields); err != nil {
			sb.WriteString(cqTextEscaper.Replace(seg.PlainText()))
			continue
		}
		sb.WriteString("[CQ:")
		sb.WriteString(w.Type)
		keys := make([]string, 0, len(fields))
		for key := range fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			var value string
			switch v := fields[key].(type) {
			case string:
				value = v
			case []any, map[string]any:
				continue
			default:
				raw, _ := json.Marshal(v)
				value = string(raw)
			}
			sb.WriteByte(',')
			sb.WriteString(key)
			sb.WriteByte('=')
			sb.WriteString(cqArgEscaper.Replace(value))
		}
		sb.WriteByte(']')
	}
	return sb.String()
}
