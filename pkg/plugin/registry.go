package plugin

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
)

// DefaultPriority is used when a listener does not set one. Lower values
// run first.
const DefaultPriority = 50

// RegexPrefix marks a message key as a regular expression rather than a
// substring.
const RegexPrefix = "re:"

// Handler handles one event. A returned error is logged and does not stop
// dispatch.
type Handler func(*Context) error

// Guard decides whether a listener runs for an event. A listener whose
// guard fails is skipped and does not block.
type Guard func(*Context) bool

// Option configures a listener at registration.
type Option func(*entry)

// Priority sets the listener priority.
func Priority(priority int) Option {
	return func(e *entry) { e.priority = priority }
}

// Permit sets the minimum sender tier.
func Permit(floor Permission) Option {
	return func(e *entry) { e.permission = floor }
}

// When adds guards. All guards must pass.
func When(guards ...Guard) Option {
	return func(e *entry) { e.guards = append(e.guards, guards...) }
}

// Block stops the remaining listeners of the same key once this listener
// has run.
func Block() Option {
	return func(e *entry) { e.block = true }
}

// Aliases adds alternative names to a command listener.
func Aliases(names ...string) Option {
	return func(e *entry) { e.names = append(e.names, names...) }
}

// CaseSensitive makes command name matching exact.
func CaseSensitive(sensitive bool) Option {
	return func(e *entry) { e.caseSensitive = sensitive }
}

type tableKind int

const (
	tableMessage tableKind = iota
	tableCommand
	tableNotice
	tableRequest
	tableCount
)

func (t tableKind) String() string {
	switch t {
	case tableMessage:
		return "message"
	case tableCommand:
		return "command"
	case tableNotice:
		return "notice"
	case tableRequest:
		return "request"
	}
	return "unknown"
}

type entry struct {
	priority      int
	permission    Permission
	guards        []Guard
	block         bool
	names         []string
	caseSensitive bool
	handler       Handler
}

func (e *entry) matchesCommand(name string) bool {
	for _, candidate := range e.names {
		if candidate == "" {
			return true
		}
		if e.caseSensitive && candidate == name {
			return true
		}
		if !e.caseSensitive && strings.EqualFold(candidate, name) {
			return true
		}
	}
	return false
}

type keyedList struct {
	key     string
	pattern *regexp.Regexp
	entries []*entry
}

type listenerTable struct {
	lists []*keyedList
	index map[string]*keyedList
}

// Registry holds one plugin's listeners: four tables keyed by
// discriminator, each key holding a priority-ordered list.
type Registry struct {
	plugin   string
	defaults []Option

	mu     sync.RWMutex
	tables [tableCount]listenerTable
}

// NewRegistry creates the listener registry of a plugin. defaults are
// applied to every listener before its own options.
func NewRegistry(plugin string, defaults ...Option) *Registry {
	r := &Registry{plugin: plugin, defaults: defaults}
	for i := range r.tables {
		r.tables[i].index = make(map[string]*keyedList)
	}
	return r
}

func (r *Registry) Plugin() string { return r.plugin }

// OnMessage listens for message events whose plain text contains pattern.
// A pattern starting with "re:" is a regular expression; "" matches every
// message.
func (r *Registry) OnMessage(pattern string, handler Handler, opts ...Option) error {
	var re *regexp.Regexp
	if expr, ok := strings.CutPrefix(pattern, RegexPrefix); ok {
		var err error
		if re, err = regexp.Compile(expr); err != nil {
			return fmt.Errorf("compiling message pattern %q: %w", pattern, err)
		}
	}
	return r.add(tableMessage, pattern, re, nil, handler, opts)
}

// OnCommand listens for the command name and any aliases. The name ""
// matches every command.
func (r *Registry) OnCommand(name string, handler Handler, opts ...Option) error {
	if strings.ContainsAny(name, " \t\n") {
		return fmt.Errorf("command name %q contains blanks", name)
	}
	return r.add(tableCommand, name, nil, []string{name}, handler, opts)
}

// OnNotice listens for notices whose kind or category matches. Several
// alternatives can be joined with "|"; "" matches every notice.
func (r *Registry) OnNotice(kind string, handler Handler, opts ...Option) error {
	return r.add(tableNotice, kind, nil, nil, handler, opts)
}

// OnRequest listens for requests by kind ("friend", "group") with the same
// union syntax as OnNotice.
func (r *Registry) OnRequest(kind string, handler Handler, opts ...Option) error {
	return r.add(tableRequest, kind, nil, nil, handler, opts)
}

func (r *Registry) add(table tableKind, key string, pattern *regexp.Regexp, names []string, handler Handler, opts []Option) error {
	if handler == nil {
		return fmt.Errorf("%s listener %q has no handler", table, key)
	}
	e := &entry{priority: DefaultPriority, names: names, handler: handler}
	for _, opt := range r.defaults {
		opt(e)
	}
	for _, opt := range opts {
		opt(e)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	t := &r.tables[table]
	list, ok := t.index[key]
	if !ok {
		list = &keyedList{key: key, pattern: pattern}
		t.index[key] = list
		t.lists = append(t.lists, list)
	}
	list.entries = append(list.entries, e)
	slices.SortStableFunc(list.entries, func(a, b *entry) int {
		return cmp.Compare(a.priority, b.priority)
	})
	return nil
}

// Len returns the number of listeners in all tables.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, t := range r.tables {
		for _, list := range t.lists {
			count += len(list.entries)
		}
	}
	return count
}

// snapshot copies a table so that handlers may register listeners while
// it is being iterated.
func (r *Registry) snapshot(table tableKind) []keyedList {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lists := r.tables[table].lists
	out := make([]keyedList, len(lists))
	for i, list := range lists {
		out[i] = keyedList{key: list.key, pattern: list.pattern, entries: slices.Clone(list.entries)}
	}
	return out
}

// matchText reports whether a message key matches text and returns the
// regex submatches, if any.
func (l *keyedList) matchText(text string) (bool, []string) {
	switch {
	case l.key == "":
		return true, nil
	case l.pattern != nil:
		matches := l.pattern.FindStringSubmatch(text)
		return matches != nil, matches
	default:
		return strings.Contains(text, l.key), nil
	}
}

// matchKind reports whether a notice or request key matches any of the
// given discriminators.
func (l *keyedList) matchKind(kinds ...string) bool {
	if l.key == "" {
		return true
	}
	for alt := range strings.SplitSeq(l.key, "|") {
		alt = strings.TrimSpace(alt)
		if alt != "" && slices.Contains(kinds, alt) {
			return true
		}
	}
	return false
}
