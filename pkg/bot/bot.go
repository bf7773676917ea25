// Package bot wires configured connections to sessions and sessions to the
// plugin dispatcher.
package bot

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"go.mau.fi/util/exsync"

	"github.com/beeper/chatgate/pkg/config"
	"github.com/beeper/chatgate/pkg/event"
	"github.com/beeper/chatgate/pkg/metrics"
	"github.com/beeper/chatgate/pkg/plugin"
	"github.com/beeper/chatgate/pkg/session"
	"github.com/beeper/chatgate/pkg/transport"
)

// primeTimeout bounds one directory refresh of one session.
const primeTimeout = 2 * time.Minute

// Bot owns the connections, their sessions and the dispatcher.
type Bot struct {
	cfg        *config.Config
	log        zerolog.Logger
	metrics    *metrics.Metrics
	dispatcher *plugin.Dispatcher

	sessions *exsync.Map[transport.Peer, *session.Session]

	mu      sync.Mutex
	conns   []transport.Connection
	cron    *cronlib.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

func New(cfg *config.Config, log zerolog.Logger) *Bot {
	m := metrics.New()
	return &Bot{
		cfg:     cfg,
		log:     log,
		metrics: m,
		dispatcher: plugin.NewDispatcher(plugin.Options{
			Command:       cfg.Command.Tokenizer(),
			CaseSensitive: cfg.Command.CaseSensitive,
			Superusers:    cfg.Superusers,
			Log:           log,
			Observer:      m,
		}),
		sessions: exsync.NewMap[transport.Peer, *session.Session](),
	}
}

func (b *Bot) Metrics() *metrics.Metrics      { return b.metrics }
func (b *Bot) Dispatcher() *plugin.Dispatcher { return b.dispatcher }

// Connections returns the started connections.
func (b *Bot) Connections() []transport.Connection {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.conns)
}

// Load registers plugins that the configuration does not disable.
func (b *Bot) Load(plugins ...plugin.Plugin) error {
	for _, p := range plugins {
		if !b.cfg.Plugins.Enabled(p.Name()) {
			b.log.Info().Str("plugin", p.Name()).Msg("Plugin disabled by config")
			continue
		}
		if err := b.dispatcher.Load(p); err != nil {
			return err
		}
	}
	return nil
}

// Sessions returns the sessions of every connected peer.
func (b *Bot) Sessions() []*session.Session {
	data := b.sessions.CopyData()
	out := make([]*session.Session, 0, len(data))
	for _, s := range data {
		out = append(out, s)
	}
	return out
}

// Start binds every configured connection and the refresh schedule.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return errors.New("bot already started")
	}
	b.ctx, b.cancel = context.WithCancel(b.log.WithContext(ctx))
	for i, desc := range b.cfg.Connections {
		conn, err := transport.New(desc.Type, transport.Options{
			Host:          desc.Host,
			Port:          desc.Port,
			Path:          desc.Path,
			Token:         desc.Token,
			Target:        desc.Target,
			PushDisabled:  desc.PushDisabled,
			Platform:      b.cfg.Platform,
			ActionTimeout: b.cfg.Timeout(),
			Log:           b.log.With().Int("connection", i).Logger(),
			Observer:      b.metrics,
		}, b)
		if err == nil {
			err = conn.Start(b.ctx)
		}
		if err != nil {
			b.closeConnections()
			b.cancel()
			return fmt.Errorf("starting connection %d (%s): %w", i, desc.Type, err)
		}
		b.conns = append(b.conns, conn)
	}
	if b.cfg.DirectoryRefresh != "" {
		b.cron = cronlib.New(
			cronlib.WithParser(config.RefreshParser),
			cronlib.WithChain(cronlib.SkipIfStillRunning(cronlib.DiscardLogger)),
		)
		if _, err := b.cron.AddFunc(b.cfg.DirectoryRefresh, b.Refresh); err != nil {
			b.closeConnections()
			b.cancel()
			return fmt.Errorf("scheduling directory refresh: %w", err)
		}
		b.cron.Start()
	}
	if b.cfg.MetricsListen != "" {
		go func() {
			if err := b.metrics.Serve(b.ctx, b.cfg.MetricsListen, b.log); err != nil {
				b.log.Err(err).Msg("Metrics endpoint failed")
			}
		}()
	}
	b.started = true
	b.log.Info().
		Int("connections", len(b.conns)).
		Strs("plugins", b.dispatcher.Plugins()).
		Msg("Bot started")
	return nil
}

// Run starts the bot and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	b.Stop()
	return nil
}

// Stop closes every connection, which fails pending calls and ends every
// session.
func (b *Bot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return
	}
	b.started = false
	if b.cron != nil {
		<-b.cron.Stop().Done()
		b.cron = nil
	}
	b.closeConnections()
	for peer, s := range b.sessions.CopyData() {
		if _, ok := b.sessions.Pop(peer); ok {
			s.Close()
			b.metrics.SessionClosed()
		}
	}
	b.cancel()
	b.log.Info().Msg("Bot stopped")
}

func (b *Bot) closeConnections() {
	for _, conn := range b.conns {
		if err := conn.Close(); err != nil {
			b.log.Warn().Err(err).Str("kind", string(conn.Kind())).Msg("Failed to close connection")
		}
	}
	b.conns = nil
}

// Refresh re-primes the directory of every session.
func (b *Bot) Refresh() {
	for _, s := range b.Sessions() {
		ctx, cancel := context.WithTimeout(s.Context(), primeTimeout)
		if err := s.Prime(ctx); err != nil {
			s.Log().Warn().Err(err).Msg("Directory refresh failed")
		}
		cancel()
	}
}

func (b *Bot) PeerConnected(peer transport.Peer) {
	s := session.New(peer, session.Options{Log: b.log, Sink: b.dispatcher.Dispatch})
	if old, ok := b.sessions.Swap(peer, s); ok {
		old.Close()
	} else {
		b.metrics.SessionOpened()
	}
	s.Start()
	go func() {
		if err := s.Prime(s.Context()); err != nil {
			s.Log().Warn().Err(err).Msg("Failed to prime directory")
		}
	}()
}

func (b *Bot) PeerDisconnected(peer transport.Peer, err error) {
	s, ok := b.sessions.Pop(peer)
	if !ok {
		return
	}
	s.Close()
	b.metrics.SessionClosed()
	if err != nil {
		s.Log().Warn().Err(err).Msg("Session ended with error")
	} else {
		s.Log().Debug().Msg("Session ended")
	}
}

func (b *Bot) HandleEvent(peer transport.Peer, payload []byte) {
	s, ok := b.sessions.Get(peer)
	if !ok {
		b.log.Warn().Str("peer", peer.Addr()).Msg("Dropping event from peer without session")
		return
	}
	evt := s.Deliver(payload)
	b.metrics.EventReceived(postTypeLabel(evt))
}

func postTypeLabel(evt event.Event) string {
	if _, ok := evt.(*event.Unknown); ok {
		return "unknown"
	}
	return string(evt.PostType())
}
