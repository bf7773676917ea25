// Package session holds the per-peer client: action invocation, the
// directory cache and the ordered delivery of classified events.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/beeper/chatgate/pkg/action"
	"github.com/beeper/chatgate/pkg/event"
	"github.com/beeper/chatgate/pkg/transport"
)

// EventSink receives every classified event after the directory has been
// patched. Calls for one session are serialized in arrival order.
type EventSink func(ctx context.Context, s *Session, evt event.Event)

// Options configures a Session.
type Options struct {
	Log  zerolog.Logger
	Sink EventSink
}

// Session is the client for one remote peer.
type Session struct {
	id   string
	peer transport.Peer
	log  zerolog.Logger
	sink EventSink
	dir  *Directory

	reachable atomic.Bool
	selfID    atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	queue  *eventQueue
	done   chan struct{}
	start  sync.Once
	stop   sync.Once
}

// New creates a session for peer. Call Start to begin delivering events.
func New(peer transport.Peer, opts Options) *Session {
	id := xid.New().String()
	s := &Session{
		id:   id,
		peer: peer,
		log: opts.Log.With().
			Str("component", "session").
			Str("session_id", id).
			Str("peer", peer.Addr()).
			Logger(),
		sink:  opts.Sink,
		queue: newEventQueue(),
		done:  make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(s.log.WithContext(context.Background()))
	s.dir = NewDirectory(s)
	s.reachable.Store(true)
	s.selfID.Store(peer.SelfID())
	return s
}

func (s *Session) ID() string               { return s.id }
func (s *Session) Peer() transport.Peer     { return s.peer }
func (s *Session) Log() *zerolog.Logger     { return &s.log }
func (s *Session) Directory() *Directory    { return s.dir }
func (s *Session) Reachable() bool          { return s.reachable.Load() }
func (s *Session) Context() context.Context { return s.ctx }

// SelfID is the bot account id of this session, learned from the peer's
// handshake or the first event that carries it.
func (s *Session) SelfID() int64 { return s.selfID.Load() }

// Start launches the event worker.
func (s *Session) Start() {
	s.start.Do(func() {
		go s.run()
	})
}

// Close stops event delivery and marks the session unreachable. Queued
// events that have not been delivered are dropped.
func (s *Session) Close() {
	s.stop.Do(func() {
		s.reachable.Store(false)
		s.cancel()
		s.queue.close()
	})
}

// Done is closed once the event worker has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Deliver classifies a raw inbound payload and queues it for ordered
// processing. It never blocks on listeners.
func (s *Session) Deliver(payload []byte) event.Event {
	evt := event.Classify(payload)
	s.reachable.Store(true)
	if unknown, ok := evt.(*event.Unknown); ok {
		s.log.Debug().Str("reason", unknown.Reason).Msg("Received unclassifiable payload")
	}
	s.queue.push(evt)
	return evt
}

func (s *Session) run() {
	defer close(s.done)
	for {
		evt, ok := s.queue.pop()
		if !ok {
			return
		}
		s.Apply(evt)
		if s.sink != nil {
			s.sink(s.ctx, s, evt)
		}
	}
}

// Invoke calls an action and waits for its response.
func (s *Session) Invoke(ctx context.Context, name string, params any) (*action.Response, error) {
	if err := action.Validate(name, params); err != nil {
		return nil, err
	}
	if s.ctx.Err() != nil {
		return nil, fmt.Errorf("invoking %s: %w", name, action.ErrConnectionClosed)
	}
	resp, err := s.peer.Call(ctx, name, params)
	s.observe(err)
	return resp, err
}

// InvokeAsync calls an action and hands its outcome to cb. cb may be nil.
func (s *Session) InvokeAsync(ctx context.Context, name string, params any, cb action.Callback) error {
	if err := action.Validate(name, params); err != nil {
		return err
	}
	if s.ctx.Err() != nil {
		return fmt.Errorf("invoking %s: %w", name, action.ErrConnectionClosed)
	}
	err := s.peer.CallAsync(ctx, name, params, func(resp *action.Response, err error) {
		s.observe(err)
		if cb != nil {
			cb(resp, err)
		}
	})
	s.observe(err)
	return err
}

// observe tracks reachability from call outcomes.
func (s *Session) observe(err error) {
	switch {
	case err == nil:
		s.reachable.Store(true)
	case errors.Is(err, action.ErrConnectionClosed):
		if s.reachable.Swap(false) {
			s.log.Warn().Err(err).Msg("Peer became unreachable")
		}
	}
}

// Call invokes an action and decodes its data into T.
func Call[T any](ctx context.Context, s *Session, name string, params any) (T, error) {
	var out T
	resp, err := s.Invoke(ctx, name, params)
	if err != nil {
		return out, err
	}
	if err = resp.Into(&out); err != nil {
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// eventQueue is an unbounded FIFO so the transport read loop never waits
// for listeners that are themselves waiting for action responses.
type eventQueue struct {
	mu     sync.Mutex
	items  []event.Event
	signal chan struct{}
	closed bool
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

func (q *eventQueue) push(evt event.Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, evt)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *eventQueue) pop() (event.Event, bool) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		if len(q.items) > 0 {
			evt := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return evt, true
		}
		q.mu.Unlock()
		<-q.signal
	}
}

func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
