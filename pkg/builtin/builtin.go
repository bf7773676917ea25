// Package builtin provides the plugins every deployment loads by default.
package builtin

import (
	"fmt"
	"strings"

	"github.com/beeper/chatgate/pkg/event"
	"github.com/beeper/chatgate/pkg/plugin"
	"github.com/beeper/chatgate/pkg/shared/stringutil"
)

// TracePriority runs the trace listeners after every domain listener.
const TracePriority = 10000

// All returns the built-in plugins in load order.
func All() []plugin.Plugin {
	return []plugin.Plugin{Ping{}, Echo{}, Status{}, Trace{}}
}

// Ping answers /ping with pong.
type Ping struct{}

func (Ping) Name() string { return "ping" }

func (Ping) Setup(r *plugin.Registry) error {
	return r.OnCommand("ping", func(c *plugin.Context) error {
		_, err := c.ReplyText("pong")
		return err
	}, plugin.Block())
}

// Echo repeats its arguments back to the sender.
type Echo struct{}

func (Echo) Name() string { return "echo" }

func (Echo) Setup(r *plugin.Registry) error {
	return r.OnCommand("echo", func(c *plugin.Context) error {
		text := c.Command.Rest()
		if text == "" {
			return nil
		}
		_, err := c.ReplyText(text)
		return err
	}, plugin.Aliases("say"), plugin.Permit(plugin.Member))
}

// Status reports what the session's directory currently holds. Only
// superusers may ask.
type Status struct{}

func (Status) Name() string { return "status" }

func (Status) Setup(r *plugin.Registry) error {
	return r.OnCommand("status", func(c *plugin.Context) error {
		dir := c.Session.Directory()
		groups := dir.GroupIDs()
		members := 0
		for _, id := range groups {
			if g, ok := dir.Group(id); ok {
				members += len(g.Members)
			}
		}
		reachable := "reachable"
		if !c.Session.Reachable() {
			reachable = "unreachable"
		}
		_, err := c.ReplyText(fmt.Sprintf("self %d via %s (%s): %d groups, %d cached members, %d friends",
			c.Session.SelfID(), c.Session.Peer().Addr(), reachable, len(groups), members, len(dir.Friends())))
		return err
	}, plugin.Permit(plugin.Superuser), plugin.Block())
}

// Trace logs every message, notice and request at debug level.
type Trace struct{}

func (Trace) Name() string { return "trace" }

func (Trace) Setup(r *plugin.Registry) error {
	if err := r.OnMessage("", traceMessage, plugin.Priority(TracePriority)); err != nil {
		return err
	}
	if err := r.OnNotice("", traceNotice, plugin.Priority(TracePriority)); err != nil {
		return err
	}
	return r.OnRequest("", traceRequest, plugin.Priority(TracePriority))
}

func traceMessage(c *plugin.Context) error {
	msg, _ := c.Message()
	base := msg.Msg()
	logEvt := c.Log.Debug().
		Str("message_type", base.MessageType).
		Int64("message_id", base.MessageID).
		Int64("user_id", base.UserID).
		Str("text", stringutil.Truncate(c.Text(), 120))
	if scoped, ok := c.Event.(event.GroupScoped); ok {
		logEvt = logEvt.Int64("group_id", scoped.Group())
	}
	logEvt.Msg("Message")
	return nil
}

func traceNotice(c *plugin.Context) error {
	notice := c.Event.(event.Notice)
	logEvt := c.Log.Debug().Str("kind", notice.Kind()).Str("category", notice.Category())
	if scoped, ok := c.Event.(event.GroupScoped); ok {
		logEvt = logEvt.Int64("group_id", scoped.Group())
	}
	logEvt.Msg("Notice")
	return nil
}

func traceRequest(c *plugin.Context) error {
	req := c.Event.(event.Request)
	header := req.RequestHeader()
	c.Log.Debug().
		Str("kind", req.Kind()).
		Str("sub_type", header.SubType).
		Int64("user_id", header.UserID).
		Str("comment", stringutil.Truncate(strings.TrimSpace(header.Comment), 120)).
		Msg("Request")
	return nil
}
