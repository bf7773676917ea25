package plugin

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/beeper/chatgate/pkg/command"
	"github.com/beeper/chatgate/pkg/event"
	"github.com/beeper/chatgate/pkg/segment"
	"github.com/beeper/chatgate/pkg/session"
)

// Context is passed to every listener invocation.
type Context struct {
	Ctx     context.Context
	Session *session.Session
	Event   event.Event
	Log     zerolog.Logger

	// Plugin is the name of the plugin whose listener is running.
	Plugin string
	// Key is the discriminator key the listener was registered under.
	Key string
	// Sender is the tier of the event's author.
	Sender Permission
	// Command is set for command listeners.
	Command command.Command
	// Matches holds the submatches of a regular expression message key.
	Matches []string
}

// Message returns the event as a message, if it is one.
func (c *Context) Message() (event.Message, bool) {
	msg, ok := c.Event.(event.Message)
	return msg, ok
}

// Text returns the plain text of a message event, or "".
func (c *Context) Text() string {
	if msg, ok := c.Message(); ok {
		return msg.Msg().PlainText()
	}
	return ""
}

// Reply sends segments to where the message event came from: the group for
// group messages, the author for private ones.
func (c *Context) Reply(segs ...segment.Segment) (int64, error) {
	msg := segment.Message(segs)
	switch evt := c.Event.(type) {
	case *event.GroupMessage:
		return c.Session.SendGroupMessage(c.Ctx, evt.GroupID, msg)
	case *event.PrivateMessage:
		return c.Session.SendPrivateMessage(c.Ctx, evt.UserID, msg)
	}
	return 0, fmt.Errorf("cannot reply to %s event", c.Event.PostType())
}

// ReplyText replies with a text message.
func (c *Context) ReplyText(text string) (int64, error) {
	return c.Reply(&segment.Text{Text: text})
}

// Quote replies with a reference to the source message followed by segs.
func (c *Context) Quote(segs ...segment.Segment) (int64, error) {
	msg, ok := c.Message()
	if !ok {
		return 0, fmt.Errorf("cannot quote %s event", c.Event.PostType())
	}
	reply := &segment.Reply{ID: strconv.FormatInt(msg.Msg().MessageID, 10)}
	return c.Reply(append([]segment.Segment{reply}, segs...)...)
}
