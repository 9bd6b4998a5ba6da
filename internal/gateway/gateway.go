// Package gateway serves the admin HTTP surface: health, Prometheus metrics
// and a read-only view of the scheduler.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/taskd/internal/dispatch"
	"github.com/flemzord/taskd/internal/scheduler"
	"github.com/flemzord/taskd/internal/shutdown"
)

// SnapshotSource exposes scheduler state.
type SnapshotSource interface {
	Snapshot() scheduler.Snapshot
}

// StateSource exposes the shutdown receiver state.
type StateSource interface {
	State() shutdown.State
}

// Options configures New.
type Options struct {
	Config     Config
	Scheduler  SnapshotSource
	Receiver   StateSource          // nil: never reports terminating
	Dispatcher *dispatch.Dispatcher // nil: health skips the database ping
	Gatherer   prometheus.Gatherer  // nil: prometheus.DefaultGatherer
	Logger     *slog.Logger
	Version    string
}

// Gateway is the admin HTTP server.
type Gateway struct {
	config     Config
	sched      SnapshotSource
	receiver   StateSource
	dispatcher *dispatch.Dispatcher
	gatherer   prometheus.Gatherer
	logger     *slog.Logger
	version    string
	startedAt  time.Time

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
}

// New builds a gateway. It does not listen until Start.
func New(opts Options) *Gateway {
	opts.Config.Defaults()
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &Gateway{
		config:     opts.Config,
		sched:      opts.Scheduler,
		receiver:   opts.Receiver,
		dispatcher: opts.Dispatcher,
		gatherer:   opts.Gatherer,
		logger:     opts.Logger.With("component", "gateway"),
		version:    opts.Version,
		startedAt:  time.Now(),
	}
}

// Handler returns the routed handler without starting a listener.
func (g *Gateway) Handler() http.Handler {
	return g.buildRouter()
}

// Start implements core.Starter. It is a no-op when no bind address is set.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.config.Enabled() {
		g.logger.Debug("gateway disabled")
		return nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen: %w", err)
	}

	srv := &http.Server{
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	g.mu.Lock()
	g.server = srv
	g.addr = ln.Addr()
	g.mu.Unlock()

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (g *Gateway) Addr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addr
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	srv := g.server
	g.server = nil
	g.mu.Unlock()
	if srv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return srv.Shutdown(shutdownCtx)
}
