package segment

import (
	"encoding/json"
	"fmt"
)

type Text struct {
	Text string `json:"text"`
}

func (*Text) Kind() Kind          { return KindText }
func (t *Text) PlainText() string { return t.Text }

type Face struct {
	ID string `json:"id"`
}

func (*Face) Kind() Kind          { return KindFace }
func (f *Face) PlainText() string { return "[face:" + f.ID + "]" }

// Image is a picture. SubType "flash" marks a self-destructing image.
type Image struct {
	File    string `json:"file"`
	Type    string `json:"type,omitempty"`
	SubType string `json:"sub_type,omitempty"`
	URL     string `json:"url,omitempty"`
	Summary string `json:"summary,omitempty"`
	Cache   string `json:"cache,omitempty"`
	Proxy   string `json:"proxy,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

func (*Image) Kind() Kind { return KindImage }
func (i *Image) PlainText() string {
	if i.Summary != "" {
		return i.Summary
	}
	return "[image]"
}

// Record is a voice message.
type Record struct {
	File    string `json:"file"`
	Magic   string `json:"magic,omitempty"`
	URL     string `json:"url,omitempty"`
	Cache   string `json:"cache,omitempty"`
	Proxy   string `json:"proxy,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

func (*Record) Kind() Kind        { return KindRecord }
func (*Record) PlainText() string { return "[voice]" }

type Video struct {
	File  string `json:"file"`
	URL   string `json:"url,omitempty"`
	Cover string `json:"cover,omitempty"`
}

func (*Video) Kind() Kind        { return KindVideo }
func (*Video) PlainText() string { return "[video]" }

// At mentions a user. QQ is the user id, or "all" to mention everyone.
type At struct {
	QQ   string `json:"qq"`
	Name string `json:"name,omitempty"`
}

// AtAll is the QQ value that mentions every group member.
const AtAll = "all"

func (*At) Kind() Kind { return KindAt }
func (a *At) PlainText() string {
	if a.Name != "" {
		return "@" + a.Name
	}
	return "@" + a.QQ
}

// RPS is a rock-paper-scissors magic emoji.
type RPS struct {
	Result string `json:"result,omitempty"`
}

func (*RPS) Kind() Kind        { return KindRPS }
func (*RPS) PlainText() string { return "[rps]" }

type Dice struct {
	Result string `json:"result,omitempty"`
}

func (*Dice) Kind() Kind        { return KindDice }
func (*Dice) PlainText() string { return "[dice]" }

// Shake is a window shake (legacy poke).
type Shake struct{}

func (*Shake) Kind() Kind        { return KindShake }
func (*Shake) PlainText() string { return "[shake]" }

type Poke struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

func (*Poke) Kind() Kind        { return KindPoke }
func (*Poke) PlainText() string { return "[poke]" }

// Anonymous asks the gateway to send the message anonymously.
type Anonymous struct {
	Ignore string `json:"ignore,omitempty"`
}

func (*Anonymous) Kind() Kind        { return KindAnonymous }
func (*Anonymous) PlainText() string { return "" }

type Share struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
	Image   string `json:"image,omitempty"`
}

func (*Share) Kind() Kind          { return KindShare }
func (s *Share) PlainText() string { return "[share:" + s.Title + "]" }

// Contact recommends a friend ("qq") or a group ("group").
type Contact struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (*Contact) Kind() Kind          { return KindContact }
func (c *Contact) PlainText() string { return "[contact:" + c.Type + ":" + c.ID + "]" }

type Location struct {
	Lat     string `json:"lat"`
	Lon     string `json:"lon"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
}

func (*Location) Kind() Kind { return KindLocation }
func (l *Location) PlainText() string {
	if l.Title != "" {
		return "[location:" + l.Title + "]"
	}
	return fmt.Sprintf("[location:%s,%s]", l.Lat, l.Lon)
}

// Music shares a track from a platform catalog (Type is "qq", "163", "xm").
type Music struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (*Music) Kind() Kind        { return KindMusic }
func (*Music) PlainText() string { return "[music]" }

// CustomMusic shares an arbitrary track. It travels as a "music" segment
// whose data.type is "custom".
type CustomMusic struct {
	URL     string `json:"url"`
	Audio   string `json:"audio"`
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
	Image   string `json:"image,omitempty"`
}

func (*CustomMusic) Kind() Kind          { return KindMusic }
func (m *CustomMusic) PlainText() string { return "[music:" + m.Title + "]" }

func (m *CustomMusic) MarshalJSON() ([]byte, error) {
	type alias CustomMusic
	return json.Marshal(struct {
		Type string `json:"type"`
		*alias
	}{Type: "custom", alias: (*alias)(m)})
}

type Reply struct {
	ID string `json:"id"`
}

func (*Reply) Kind() Kind        { return KindReply }
func (*Reply) PlainText() string { return "" }

// Forward references a merged-forward message by id.
type Forward struct {
	ID string `json:"id"`
}

func (*Forward) Kind() Kind        { return KindForward }
func (*Forward) PlainText() string { return "[forward]" }

// Node is one entry of a merged-forward message: either a reference to an
// existing message (ID) or custom content attributed to UserID.
type Node struct {
	ID       string  `json:"id,omitempty"`
	UserID   string  `json:"user_id,omitempty"`
	Nickname string  `json:"nickname,omitempty"`
	Content  Message `json:"content,omitempty"`
}

func (*Node) Kind() Kind { return KindNode }
func (n *Node) PlainText() string {
	if len(n.Content) == 0 {
		return "[node]"
	}
	return n.Content.PlainText()
}

type XML struct {
	Data  string `json:"data"`
	Resid string `json:"resid,omitempty"`
}

func (*XML) Kind() Kind        { return KindXML }
func (*XML) PlainText() string { return "[xml]" }

type JSON struct {
	Data  string `json:"data"`
	Resid string `json:"resid,omitempty"`
}

func (*JSON) Kind() Kind        { return KindJSON }
func (*JSON) PlainText() string { return "[json]" }

type File struct {
	File string `json:"file"`
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
	Size string `json:"file_size,omitempty"`
}

func (*File) Kind() Kind { return KindFile }
func (f *File) PlainText() string {
	if f.Name != "" {
		return "[file:" + f.Name + "]"
	}
	return "[file]"
}

type Markdown struct {
	Content string `json:"content"`
}

func (*Markdown) Kind() Kind          { return KindMarkdown }
func (m *Markdown) PlainText() string { return m.Content }

// TTS asks the gateway to synthesize speech from Text.
type TTS struct {
	Text string `json:"text"`
}

func (*TTS) Kind() Kind          { return KindTTS }
func (t *TTS) PlainText() string { return t.Text }

type Gift struct {
	QQ string `json:"qq"`
	ID string `json:"id"`
}

func (*Gift) Kind() Kind        { return KindGift }
func (*Gift) PlainText() string { return "[gift]" }

// MFace is a marketplace sticker.
type MFace struct {
	EmojiID  string `json:"emoji_id"`
	EmojiPkg string `json:"emoji_package_id"`
	Key      string `json:"key,omitempty"`
	Summary  string `json:"summary,omitempty"`
}

func (*MFace) Kind() Kind { return KindMFace }
func (m *MFace) PlainText() string {
	if m.Summary != "" {
		return m.Summary
	}
	return "[mface]"
}

// Unknown preserves a segment of an unrecognized kind so it can be passed
// through unchanged.
type Unknown struct {
	Type string
	Data json.RawMessage
}

func (u *Unknown) Kind() Kind { return Kind(u.Type) }
func (u *Unknown) PlainText() string {
	if u.Type == "" {
		return "[unknown]"
	}
	return "[" + u.Type + "]"
}

func (u *Unknown) wire() Wire {
	if u.Type == "" {
		data, _ := json.Marshal(&Text{Text: u.PlainText()})
		return Wire{Type: string(KindText), Data: data}
	}
	return Wire{Type: u.Type, Data: unknownData(u.Data)}
}
