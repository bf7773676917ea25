// Package plugin holds per-plugin listener registries and the dispatcher
// that runs them for every classified event.
package plugin

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/beeper/chatgate/pkg/command"
	"github.com/beeper/chatgate/pkg/event"
	"github.com/beeper/chatgate/pkg/segment"
	"github.com/beeper/chatgate/pkg/session"
	"github.com/beeper/chatgate/pkg/shared/registry"
)

// Plugin is a named bundle of listeners.
type Plugin interface {
	Name() string
	// Setup registers the plugin's listeners.
	Setup(r *Registry) error
}

// Observer is notified of listener failures.
type Observer interface {
	ListenerFailed(plugin string)
}

// Options configures a Dispatcher.
type Options struct {
	Command command.Config
	// CaseSensitive is the default command matching mode for listeners
	// that do not choose one.
	CaseSensitive bool
	Superusers    []int64
	Log           zerolog.Logger
	Observer      Observer
}

type loaded struct {
	plugin    Plugin
	listeners *Registry
}

func (l *loaded) Name() string { return l.plugin.Name() }

// Dispatcher routes events to the listeners of every loaded plugin.
// Plugins are visited in load order.
type Dispatcher struct {
	opts    Options
	log     zerolog.Logger
	plugins *registry.Registry[*loaded]
}

func NewDispatcher(opts Options) *Dispatcher {
	if opts.Command.Prompts == "" && opts.Command.Separators == "" {
		opts.Command = command.DefaultConfig
	}
	return &Dispatcher{
		opts:    opts,
		log:     opts.Log.With().Str("component", "dispatcher").Logger(),
		plugins: registry.New[*loaded](),
	}
}

// Load sets up a plugin and makes its listeners eligible for dispatch.
func (d *Dispatcher) Load(p Plugin) error {
	listeners := NewRegistry(p.Name(), CaseSensitive(d.opts.CaseSensitive))
	if err := p.Setup(listeners); err != nil {
		return fmt.Errorf("setting up plugin %s: %w", p.Name(), err)
	}
	if err := d.plugins.Register(&loaded{plugin: p, listeners: listeners}); err != nil {
		return err
	}
	d.log.Debug().Str("plugin", p.Name()).Int("listeners", listeners.Len()).Msg("Loaded plugin")
	return nil
}

// Plugins returns the names of the loaded plugins in load order.
func (d *Dispatcher) Plugins() []string {
	all := d.plugins.All()
	names := make([]string, len(all))
	for i, p := range all {
		names[i] = p.Name()
	}
	return names
}

// Dispatch runs every matching listener for evt. Its signature matches
// session.EventSink.
func (d *Dispatcher) Dispatch(ctx context.Context, s *session.Session, evt event.Event) {
	base := Context{
		Ctx:     ctx,
		Session: s,
		Event:   evt,
		Sender:  tierOf(evt, d.opts.Superusers),
	}
	logger := d.log
	if s != nil {
		logger = *s.Log()
	}

	var (
		text    string
		cmd     command.Command
		isCmd   bool
		kinds   []string
		tables  []tableKind
		ownText bool
	)
	switch evt := evt.(type) {
	case event.Message:
		msg := evt.Msg()
		text = msg.PlainText()
		tables = append(tables, tableMessage)
		ownText = msg.UserID != 0 && msg.UserID == msg.SelfID
		if !ownText {
			cmd, isCmd = command.Tokenize(commandText(msg), d.opts.Command)
		}
		if isCmd {
			tables = append(tables, tableCommand)
		}
	case event.Notice:
		kinds = []string{evt.Kind(), evt.Category()}
		tables = append(tables, tableNotice)
	case event.Request:
		kinds = []string{evt.Kind()}
		tables = append(tables, tableRequest)
	default:
		return
	}

	for _, p := range d.plugins.All() {
		base.Plugin = p.Name()
		base.Log = logger.With().Str("plugin", p.Name()).Logger()
		for _, table := range tables {
			for _, list := range p.listeners.snapshot(table) {
				lc := base
				lc.Key = list.key
				switch table {
				case tableMessage:
					ok, matches := list.matchText(text)
					if !ok {
						continue
					}
					lc.Matches = matches
				case tableCommand:
					lc.Command = cmd
				case tableNotice, tableRequest:
					if !list.matchKind(kinds...) {
						continue
					}
				}
				d.runList(&lc, table, list.entries)
			}
		}
	}
}

// runList invokes the entries of one key in priority order until a
// blocking entry runs.
func (d *Dispatcher) runList(base *Context, table tableKind, entries []*entry) {
	for i, e := range entries {
		if table == tableCommand && !e.matchesCommand(base.Command.Name) {
			continue
		}
		lc := *base
		if !d.admit(&lc, e) {
			continue
		}
		if err := d.invoke(&lc, e); err != nil {
			lc.Log.Error().Err(err).
				Str("table", table.String()).
				Str("key", lc.Key).
				Int("priority", e.priority).
				Int("index", i).
				Msg("Listener failed")
			if d.opts.Observer != nil {
				d.opts.Observer.ListenerFailed(lc.Plugin)
			}
		}
		if e.block {
			return
		}
	}
}

func (d *Dispatcher) admit(c *Context, e *entry) bool {
	if c.Sender < e.permission {
		return false
	}
	for _, guard := range e.guards {
		if !guard(c) {
			return false
		}
	}
	return true
}

// invoke runs a handler, turning panics into errors.
func (d *Dispatcher) invoke(c *Context, e *entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
			c.Log.Debug().Bytes("stack", debug.Stack()).Msg("Listener panic stack")
		}
	}()
	return e.handler(c)
}

// commandText renders a message for tokenizing with leading reply
// references and mentions of the bot removed.
func commandText(msg *event.MessageBase) string {
	self := strconv.FormatInt(msg.SelfID, 10)
	var sb strings.Builder
	leading := true
	for _, seg := range msg.Message {
		if leading {
			switch seg := seg.(type) {
			case *segment.Reply:
				continue
			case *segment.At:
				if seg.QQ == self {
					continue
				}
			case *segment.Text:
				if strings.TrimSpace(seg.Text) == "" {
					continue
				}
			}
			leading = false
		}
		sb.WriteString(seg.PlainText())
	}
	return sb.String()
}
