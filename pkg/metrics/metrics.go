// Package metrics exposes prometheus collectors for actions, events,
// sessions and listener failures.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/beeper/chatgate/pkg/action"
)

const namespace = "chatgate"

// Action results used as the result label.
const (
	ResultOK      = "ok"
	ResultFailed  = "failed"
	ResultTimeout = "timeout"
	ResultClosed  = "closed"
	ResultError   = "error"
)

// Metrics holds every collector on a private registry. It implements
// action.Observer and plugin.Observer.
type Metrics struct {
	registry *prometheus.Registry

	actions          *prometheus.CounterVec
	events           *prometheus.CounterVec
	listenerFailures *prometheus.CounterVec
	pending          prometheus.Gauge
	sessions         prometheus.Gauge
}

var _ action.Observer = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Completed action calls by action and result",
		}, []string{"action", "result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Classified inbound events by post type",
		}, []string{"post_type"}),
		listenerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listener_failures_total",
			Help:      "Listener errors and panics by plugin",
		}, []string{"plugin"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_calls",
			Help:      "Action calls waiting for a response",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Connected peer sessions",
		}),
	}
	m.registry.MustRegister(
		m.actions,
		m.events,
		m.listenerFailures,
		m.pending,
		m.sessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ActionDone counts a finished action call.
func (m *Metrics) ActionDone(name string, err error) {
	m.actions.WithLabelValues(name, Result(err)).Inc()
}

// PendingDelta moves the pending call gauge.
func (m *Metrics) PendingDelta(delta int) { m.pending.Add(float64(delta)) }

func (m *Metrics) EventReceived(postType string) { m.events.WithLabelValues(postType).Inc() }
func (m *Metrics) ListenerFailed(plugin string)  { m.listenerFailures.WithLabelValues(plugin).Inc() }
func (m *Metrics) SessionOpened()                { m.sessions.Inc() }
func (m *Metrics) SessionClosed()                { m.sessions.Dec() }

// Result maps an action outcome to its result label.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, action.ErrTimeout):
		return ResultTimeout
	case errors.Is(err, action.ErrConnectionClosed):
		return ResultClosed
	case action.IsActionFailed(err):
		return ResultFailed
	}
	return ResultError
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Serve exposes /metrics and /health on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")
	if err = srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
