package action

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds how long a pending call waits for its response.
const DefaultTimeout = 30 * time.Second

// Callback receives the outcome of an action exactly once. err is non-nil
// when the peer rejected the action, the response was malformed, the call
// timed out or the connection closed; resp may still be set for rejections.
type Callback func(resp *Response, err error)

// SendFunc writes a fully built envelope to the transport.
type SendFunc func(ctx context.Context, req Request) error

// Observer is notified about call outcomes and pending-table size.
type Observer interface {
	ActionDone(action string, err error)
	PendingDelta(delta int)
}

type pendingCall struct {
	action string
	cb     Callback
	timer  *time.Timer
}

// Correlator pairs outbound actions with their responses using the echo
// field. It is transport agnostic: the transport supplies a SendFunc and
// feeds every response frame to Resolve.
type Correlator struct {
	platform string
	timeout  time.Duration
	log      zerolog.Logger
	observer Observer

	mu      sync.Mutex
	pending map[string]*pendingCall
	closed  bool
}

// CorrelatorOptions configures a Correlator. Zero values select defaults.
type CorrelatorOptions struct {
	Platform string
	Timeout  time.Duration
	Log      zerolog.Logger
	Observer Observer
}

func NewCorrelator(opts CorrelatorOptions) *Correlator {
	if opts.Platform == "" {
		opts.Platform = "chatgate"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Correlator{
		platform: opts.Platform,
		timeout:  opts.Timeout,
		log:      opts.Log.With().Str("component", "correlator").Logger(),
		observer: opts.Observer,
		pending:  make(map[string]*pendingCall),
	}
}

// Platform returns the tag embedded in every echo this correlator issues.
func (c *Correlator) Platform() string { return c.platform }

// Pending returns the number of calls awaiting a response.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// InvokeAsync sends an action and registers cb for its response. It returns
// the correlation id. When cb is nil nothing is registered and the response
// is dropped on arrival. Send failures are returned directly and cb is not
// invoked.
func (c *Correlator) InvokeAsync(ctx context.Context, name string, params any, send SendFunc, cb Callback) (string, error) {
	id := uuid.NewString()
	req := Request{
		Action: name,
		Params: params,
		Echo:   Echo{Platform: c.platform, ID: id}.String(),
	}
	if req.Params == nil {
		req.Params = map[string]any{}
	}
	if cb != nil {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return "", fmt.Errorf("invoking %s: %w", name, ErrConnectionClosed)
		}
		call := &pendingCall{action: name, cb: cb}
		call.timer = time.AfterFunc(c.timeout, func() {
			c.settle(id, nil, fmt.Errorf("%w: %s after %s", ErrTimeout, name, c.timeout))
		})
		c.pending[id] = call
		c.mu.Unlock()
		c.pendingDelta(1)
	}
	if err := send(ctx, req); err != nil {
		if cb != nil && c.take(id) != nil {
			c.pendingDelta(-1)
		}
		c.actionDone(name, err)
		return "", fmt.Errorf("sending %s: %w", name, err)
	}
	return id, nil
}

// Invoke sends an action and blocks until its response arrives, the call
// times out, or ctx is done. Rejected actions return the response together
// with an *ActionFailedError.
func (c *Correlator) Invoke(ctx context.Context, name string, params any, send SendFunc) (*Response, error) {
	type result struct {
		resp *Response
		err  error
	}
	done := make(chan result, 1)
	id, err := c.InvokeAsync(ctx, name, params, send, func(resp *Response, err error) {
		done <- result{resp, err}
	})
	if err != nil {
		return nil, err
	}
	select {
	case res := <-done:
		return res.resp, res.err
	case <-ctx.Done():
		c.settle(id, nil, ctx.Err())
		res := <-done
		return res.resp, res.err
	}
}

// Resolve matches a response frame to its pending call. It reports whether
// a continuation was invoked. Frames whose echo is missing, foreign or
// unknown are dropped.
func (c *Correlator) Resolve(payload []byte) bool {
	var probe struct {
		Echo json.RawMessage `json:"echo"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		c.log.Debug().Err(err).Msg("Dropping undecodable response frame")
		return false
	}
	echo, ok := ParseEcho(probe.Echo)
	if !ok {
		c.log.Debug().RawJSON("echo", nonEmpty(probe.Echo)).Msg("Dropping response without usable echo")
		return false
	}
	if echo.Platform != c.platform {
		c.log.Debug().Str("platform", echo.Platform).Str("id", echo.ID).Msg("Ignoring response for foreign platform")
		return false
	}
	c.mu.Lock()
	call, ok := c.pending[echo.ID]
	c.mu.Unlock()
	if !ok {
		c.log.Debug().Str("id", echo.ID).Msg("Dropping response for unknown call")
		return false
	}
	resp, err := DecodeResponse(call.action, payload)
	if err == nil {
		err = resp.Err(call.action)
	}
	return c.settle(echo.ID, resp, err)
}

// Close fails every pending call with ErrConnectionClosed. Later calls to
// InvokeAsync with a callback fail immediately.
func (c *Correlator) Close() {
	c.mu.Lock()
	c.closed = true
	ids := make([]string, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	for _, id := range ids {
		c.settle(id, nil, ErrConnectionClosed)
	}
}

// settle removes the call and invokes its callback. Only the goroutine that
// removes the entry runs the callback, so each call settles exactly once.
func (c *Correlator) settle(id string, resp *Response, err error) bool {
	call := c.take(id)
	if call == nil {
		return false
	}
	c.pendingDelta(-1)
	c.actionDone(call.action, err)
	call.cb(resp, err)
	return true
}

func (c *Correlator) take(id string) *pendingCall {
	c.mu.Lock()
	call, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}
	call.timer.Stop()
	return call
}

func (c *Correlator) actionDone(name string, err error) {
	if c.observer != nil {
		c.observer.ActionDone(name, err)
	}
}

func (c *Correlator) pendingDelta(delta int) {
	if c.observer != nil {
		c.observer.PendingDelta(delta)
	}
}

func nonEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
