package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"go.mau.fi/util/exsync"

	"github.com/beeper/chatgate/pkg/action"
	"github.com/beeper/chatgate/pkg/shared/httputil"
)

const wsReadLimit = 64 << 20

type wsReverseConnection struct {
	opts    Options
	handler Handler
	log     zerolog.Logger
	peers   *exsync.Map[string, *wsPeer]

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	nextPeer atomic.Int64
}

func newWSReverseConnection(opts Options, handler Handler) *wsReverseConnection {
	return &wsReverseConnection{
		opts:    opts,
		handler: handler,
		log:     opts.Log.With().Str("component", "transport").Str("transport", string(KindWSReverse)).Logger(),
		peers:   exsync.NewMap[string, *wsPeer](),
	}
}

func (c *wsReverseConnection) Kind() Kind { return KindWSReverse }

func (c *wsReverseConnection) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.server != nil {
		return errors.New("ws-reverse transport already started")
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", c.opts.listenAddr())
	if err != nil {
		return fmt.Errorf("listening for reverse websocket peers: %w", err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc(c.opts.path(), c.handleWS)
	c.listener = ln
	c.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := c.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.log.Err(err).Msg("Reverse websocket listener stopped")
		}
	}()
	c.log.Info().Str("addr", ln.Addr().String()).Str("path", c.opts.path()).Msg("Listening for reverse websocket peers")
	return nil
}

func (c *wsReverseConnection) handleWS(w http.ResponseWriter, r *http.Request) {
	if !httputil.Authorized(r, c.opts.Token) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		c.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Rejected websocket handshake")
		return
	}
	conn.SetReadLimit(wsReadLimit)

	selfID, _ := strconv.ParseInt(r.Header.Get("X-Self-ID"), 10, 64)
	key := fmt.Sprintf("%s#%d", r.RemoteAddr, c.nextPeer.Add(1))
	peer := &wsPeer{
		key:    key,
		addr:   r.RemoteAddr,
		selfID: selfID,
		conn:   conn,
		log:    c.log.With().Str("peer", r.RemoteAddr).Int64("self_id", selfID).Logger(),
	}
	peer.correlator = action.NewCorrelator(action.CorrelatorOptions{
		Platform: c.opts.Platform,
		Timeout:  c.opts.ActionTimeout,
		Log:      peer.log,
		Observer: c.opts.Observer,
	})
	c.peers.Set(key, peer)
	peer.log.Info().Str("role", r.Header.Get("X-Client-Role")).Msg("Peer connected")
	c.handler.PeerConnected(peer)

	readErr := c.readLoop(r.Context(), peer)
	c.peers.Delete(key)
	peer.shutdown(websocket.StatusNormalClosure, "bye")
	if websocket.CloseStatus(readErr) == websocket.StatusNormalClosure || errors.Is(readErr, context.Canceled) {
		readErr = nil
	}
	peer.log.Info().AnErr("reason", readErr).Msg("Peer disconnected")
	c.handler.PeerDisconnected(peer, readErr)
}

// frameProbe tells events and action responses apart.
type frameProbe struct {
	PostType *string         `json:"post_type"`
	Echo     json.RawMessage `json:"echo"`
	Status   *string         `json:"status"`
	RetCode  *int            `json:"retcode"`
}

func (c *wsReverseConnection) readLoop(ctx context.Context, peer *wsPeer) error {
	for {
		typ, data, err := peer.conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			peer.log.Debug().Int("type", int(typ)).Msg("Ignoring non-text frame")
			continue
		}
		var probe frameProbe
		if err := json.Unmarshal(data, &probe); err != nil {
			peer.log.Warn().Err(err).Msg("Dropping undecodable frame")
			continue
		}
		switch {
		case probe.PostType != nil:
			c.handler.HandleEvent(peer, data)
		case len(probe.Echo) > 0 || probe.Status != nil || probe.RetCode != nil:
			peer.correlator.Resolve(data)
		default:
			peer.log.Debug().Msg("Dropping frame that is neither event nor response")
		}
	}
}

func (c *wsReverseConnection) Close() error {
	c.mu.Lock()
	server := c.server
	c.server = nil
	c.mu.Unlock()
	if server == nil {
		return nil
	}
	for _, peer := range c.peers.CopyData() {
		peer.shutdown(websocket.StatusGoingAway, "shutting down")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

func (c *wsReverseConnection) Addr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

func (c *wsReverseConnection) Peers() []Peer {
	data := c.peers.CopyData()
	peers := make([]Peer, 0, len(data))
	for _, peer := range data {
		peers = append(peers, peer)
	}
	return peers
}

// wsPeer multiplexes actions over one socket and correlates responses by
// echo.
type wsPeer struct {
	key        string
	addr       string
	selfID     int64
	conn       *websocket.Conn
	correlator *action.Correlator
	log        zerolog.Logger

	writeMu sync.Mutex
	closed  atomic.Bool
}

func (p *wsPeer) Addr() string  { return p.addr }
func (p *wsPeer) SelfID() int64 { return p.selfID }

func (p *wsPeer) send(ctx context.Context, req action.Request) error {
	if p.closed.Load() {
		return action.ErrConnectionClosed
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := wsjson.Write(ctx, p.conn, req); err != nil {
		return fmt.Errorf("%w: %w", action.ErrConnectionClosed, err)
	}
	return nil
}

func (p *wsPeer) Call(ctx context.Context, name string, params any) (*action.Response, error) {
	return p.correlator.Invoke(ctx, name, params, p.send)
}

func (p *wsPeer) CallAsync(ctx context.Context, name string, params any, cb action.Callback) error {
	_, err := p.correlator.InvokeAsync(ctx, name, params, p.send, cb)
	return err
}

func (p *wsPeer) Close() error {
	p.shutdown(websocket.StatusNormalClosure, "closed by runtime")
	return nil
}

func (p *wsPeer) shutdown(code websocket.StatusCode, reason string) {
	if p.closed.Swap(true) {
		return
	}
	p.correlator.Close()
	_ = p.conn.Close(code, reason)
}
