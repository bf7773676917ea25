// Package transport owns the network endpoints a gateway peer talks to:
// an HTTP pair (outbound action POSTs plus an inbound push listener) or a
// reverse WebSocket server that gateway peers dial into.
package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/beeper/chatgate/pkg/action"
)

// Kind selects a transport variant.
type Kind string

const (
	KindHTTP      Kind = "http"
	KindWSReverse Kind = "ws-reverse"
)

// Peer is one remote gateway endpoint actions can be sent to.
type Peer interface {
	// Addr identifies the peer: its remote address, or the action base URL
	// for HTTP peers.
	Addr() string
	// SelfID is the account id the peer announced, or 0 if unknown.
	SelfID() int64
	// Call sends an action and waits for its response.
	Call(ctx context.Context, name string, params any) (*action.Response, error)
	// CallAsync sends an action and delivers the outcome to cb exactly once.
	// Errors that prevent sending are returned and cb is not invoked.
	CallAsync(ctx context.Context, name string, params any, cb action.Callback) error
	Close() error
}

// Handler receives peer lifecycle changes and inbound event payloads. Calls
// for one peer arrive in order from a single goroutine.
type Handler interface {
	PeerConnected(peer Peer)
	PeerDisconnected(peer Peer, err error)
	HandleEvent(peer Peer, payload []byte)
}

// Connection is a started network endpoint owning zero or more peers.
type Connection interface {
	Kind() Kind
	// Start binds the listener and returns once it accepts traffic.
	Start(ctx context.Context) error
	Close() error
	// Addr is the bound listening address, empty before Start.
	Addr() string
	Peers() []Peer
}

// Options configures a Connection.
type Options struct {
	Host string
	Port int
	// Path is the HTTP path the listener serves on. Defaults to "/".
	Path string
	// Token is the bearer credential required from inbound traffic and sent
	// with outbound HTTP actions.
	Token string
	// Target is the action base URL of an HTTP peer.
	Target string
	// PushDisabled turns off the inbound listener of an HTTP connection,
	// leaving an action-only peer.
	PushDisabled bool

	Platform      string
	ActionTimeout time.Duration
	Log           zerolog.Logger
	Observer      action.Observer
}

func (o Options) listenAddr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

func (o Options) path() string {
	if o.Path == "" {
		return "/"
	}
	return o.Path
}

// New builds a Connection of the given kind. Nothing is bound until Start.
func New(kind Kind, opts Options, handler Handler) (Connection, error) {
	if handler == nil {
		return nil, fmt.Errorf("transport %s: handler is required", kind)
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = action.DefaultTimeout
	}
	switch kind {
	case KindHTTP:
		return newHTTPConnection(opts, handler)
	case KindWSReverse:
		return newWSReverseConnection(opts, handler), nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", kind)
	}
}
