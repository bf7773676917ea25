package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/beeper/chatgate/pkg/action"
	"github.com/beeper/chatgate/pkg/shared/httputil"
)

const maxPushBody = 16 << 20

type httpConnection struct {
	opts    Options
	handler Handler
	log     zerolog.Logger
	peer    *httpPeer

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	started  bool
	// pushes from one peer are handed to the handler one at a time.
	pushMu sync.Mutex
}

func newHTTPConnection(opts Options, handler Handler) (*httpConnection, error) {
	base, err := httputil.NormalizeBaseURL(opts.Target)
	if err != nil {
		return nil, fmt.Errorf("http transport target: %w", err)
	}
	log := opts.Log.With().Str("component", "transport").Str("transport", string(KindHTTP)).Logger()
	return &httpConnection{
		opts:    opts,
		handler: handler,
		log:     log,
		peer: &httpPeer{
			base:     base,
			headers:  httputil.MergeHeaders(map[string]string{"Accept": "application/json"}, httputil.BearerHeaders(opts.Token)),
			client:   httputil.NewClient(opts.ActionTimeout),
			observer: opts.Observer,
			log:      log,
		},
	}, nil
}

func (c *httpConnection) Kind() Kind { return KindHTTP }

func (c *httpConnection) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errors.New("http transport already started")
	}
	if !c.opts.PushDisabled {
		var lc net.ListenConfig
		ln, err := lc.Listen(ctx, "tcp", c.opts.listenAddr())
		if err != nil {
			return fmt.Errorf("listening for event pushes: %w", err)
		}
		mux := http.NewServeMux()
		mux.HandleFunc(c.opts.path(), c.handlePush)
		c.listener = ln
		c.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	}
	c.started = true
	// Pushes queue on the bound listener until the handler knows the peer.
	c.handler.PeerConnected(c.peer)
	if c.server != nil {
		server, ln := c.server, c.listener
		go func() {
			if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				c.log.Err(err).Msg("Event push listener stopped")
			}
		}()
		c.log.Info().Str("addr", ln.Addr().String()).Str("target", c.peer.base).Msg("Listening for event pushes")
	}
	return nil
}

func (c *httpConnection) handlePush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !httputil.Authorized(r, c.opts.Token) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPushBody))
	if err != nil {
		http.Error(w, "reading body", http.StatusBadRequest)
		return
	}
	if selfID, err := strconv.ParseInt(r.Header.Get("X-Self-ID"), 10, 64); err == nil {
		c.peer.setSelfID(selfID)
	}
	c.pushMu.Lock()
	c.handler.HandleEvent(c.peer, body)
	c.pushMu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (c *httpConnection) Close() error {
	c.mu.Lock()
	server := c.server
	started := c.started
	c.started = false
	c.mu.Unlock()
	if !started {
		return nil
	}
	var err error
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = server.Shutdown(ctx)
	}
	c.handler.PeerDisconnected(c.peer, nil)
	return err
}

func (c *httpConnection) Addr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

func (c *httpConnection) Peers() []Peer {
	return []Peer{c.peer}
}

// httpPeer invokes actions with one POST each. The response arrives on the
// same request, so no correlation table is needed.
type httpPeer struct {
	base     string
	headers  map[string]string
	client   *http.Client
	observer action.Observer
	log      zerolog.Logger

	selfMu sync.RWMutex
	selfID int64
}

func (p *httpPeer) Addr() string { return p.base }

func (p *httpPeer) SelfID() int64 {
	p.selfMu.RLock()
	defer p.selfMu.RUnlock()
	return p.selfID
}

func (p *httpPeer) setSelfID(id int64) {
	p.selfMu.Lock()
	p.selfID = id
	p.selfMu.Unlock()
}

func (p *httpPeer) Call(ctx context.Context, name string, params any) (*action.Response, error) {
	resp, err := p.call(ctx, name, params)
	if p.observer != nil {
		p.observer.ActionDone(name, err)
	}
	return resp, err
}

func (p *httpPeer) call(ctx context.Context, name string, params any) (*action.Response, error) {
	if params == nil {
		params = map[string]any{}
	}
	url := p.base + action.Path(name)
	body, status, err := httputil.PostJSON(ctx, p.client, url, p.headers, params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("posting %s: %w: %w", name, action.ErrConnectionClosed, err)
	}
	if status != http.StatusOK {
		return nil, &action.ActionFailedError{
			Action:     name,
			Code:       status,
			HTTPStatus: true,
			Reason:     strings.TrimSpace(string(body)),
		}
	}
	resp, err := action.DecodeResponse(name, body)
	if err != nil {
		return nil, err
	}
	return resp, resp.Err(name)
}

func (p *httpPeer) CallAsync(ctx context.Context, name string, params any, cb action.Callback) error {
	go func() {
		resp, err := p.Call(ctx, name, params)
		if cb != nil {
			cb(resp, err)
		}
	}()
	return nil
}

func (p *httpPeer) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
