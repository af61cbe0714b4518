// Package metrics provides Prometheus instrumentation for the server
// process: reload/respawn counts, active session state, and watcher event
// totals. All metrics use the relo_ prefix. Methods follow the nil
// receiver pattern, so a disabled metrics collector (nil *Metrics) is
// zero overhead and requires no conditionals at call sites.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relohq/relo/internal/logger"
)

// Metrics holds every Prometheus collector the server reports.
type Metrics struct {
	RestartsTotal      *prometheus.CounterVec
	WatcherEventsTotal *prometheus.CounterVec
	ClientRespawns     prometheus.Counter
	ClientCrashes      prometheus.Counter
	SessionsActive     prometheus.Gauge
	LoadErrorsTotal    prometheus.Counter
}

// New creates and registers server metrics against reg. Pass nil to build
// metrics without registration, e.g. in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RestartsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relo_restarts_total",
				Help: "Total client restarts by kind (soft, hard) and trigger (watcher, request)",
			},
			[]string{"kind", "trigger"},
		),

		WatcherEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relo_watcher_events_total",
				Help: "Total filesystem events observed by kind (created, changed, destroyed)",
			},
			[]string{"kind"},
		),

		ClientRespawns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "relo_client_respawns_total",
				Help: "Total times the server spawned a new client process",
			},
		),

		ClientCrashes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "relo_client_crashes_total",
				Help: "Total times a client process exited unexpectedly",
			},
		),

		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "relo_sessions_active",
				Help: "Whether a client session is currently connected (0 or 1)",
			},
		),

		LoadErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "relo_library_load_errors_total",
				Help: "Total fatal library load errors observed by clients",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.RestartsTotal,
			m.WatcherEventsTotal,
			m.ClientRespawns,
			m.ClientCrashes,
			m.SessionsActive,
			m.LoadErrorsTotal,
		)
	}

	return m
}

// RecordRestart records a client restart of the given kind ("soft"/"hard")
// and trigger ("watcher"/"request"). Safe to call on a nil receiver.
func (m *Metrics) RecordRestart(kind, trigger string) {
	if m == nil {
		return
	}
	m.RestartsTotal.WithLabelValues(kind, trigger).Inc()
}

// RecordWatcherEvent records an observed filesystem event kind. Safe to
// call on a nil receiver.
func (m *Metrics) RecordWatcherEvent(kind string) {
	if m == nil {
		return
	}
	m.WatcherEventsTotal.WithLabelValues(kind).Inc()
}

// RecordRespawn increments the client respawn counter. Safe to call on a
// nil receiver.
func (m *Metrics) RecordRespawn() {
	if m == nil {
		return
	}
	m.ClientRespawns.Inc()
}

// RecordCrash increments the client crash counter. Safe to call on a nil
// receiver.
func (m *Metrics) RecordCrash() {
	if m == nil {
		return
	}
	m.ClientCrashes.Inc()
}

// SetSessionActive sets whether a client session is currently connected.
// Safe to call on a nil receiver.
func (m *Metrics) SetSessionActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.SessionsActive.Set(1)
	} else {
		m.SessionsActive.Set(0)
	}
}

// RecordLoadError increments the library load error counter. Safe to call
// on a nil receiver.
func (m *Metrics) RecordLoadError() {
	if m == nil {
		return
	}
	m.LoadErrorsTotal.Inc()
}

// Server exposes a Metrics collector on a /metrics HTTP endpoint. A single
// route needs no router package; the server's own state is otherwise
// entirely socket- and process-based, so net/http's ServeMux is sufficient
// here.
type Server struct {
	httpServer *http.Server
}

// NewServer builds a metrics HTTP server bound to addr. Call Start to begin
// serving and Shutdown to stop.
func NewServer(addr string, reg *prometheus.Registry) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start runs the metrics server until Shutdown is called or an
// unrecoverable listen error occurs.
func (s *Server) Start() error {
	logger.Info("starting metrics server", logger.Host(s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: serve: %w", err)
	}
	return nil
}

// Shutdown stops the metrics server gracefully within the given timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
