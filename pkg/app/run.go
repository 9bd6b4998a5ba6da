// Package app provides the shared entry point for the taskd binary and its
// service wrapper.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/flemzord/taskd/internal/config"
	"github.com/flemzord/taskd/internal/core"
	"github.com/flemzord/taskd/internal/gateway"
	"github.com/flemzord/taskd/internal/logging"
	"github.com/flemzord/taskd/internal/scheduler"
	"github.com/flemzord/taskd/internal/service"
	"github.com/flemzord/taskd/internal/shutdown"
	"github.com/flemzord/taskd/internal/telemetry"

	_ "github.com/flemzord/taskd/internal/jobs" // built-in job kinds
)

const telemetryFlushTimeout = 5 * time.Second

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, config.ResolvePath searches the standard locations.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the default persistent data directory when the
	// config file does not set data_dir.
	DataDir string

	// Stderr receives log output. Defaults to os.Stderr.
	Stderr io.Writer

	// Subscriber replaces the transport built from the shutdown section.
	Subscriber shutdown.Subscriber

	// Clock drives timers. Defaults to the real clock.
	Clock clockwork.Clock

	// HandleSignals routes SIGINT and SIGTERM to the shutdown receiver.
	HandleSignals bool
}

// LoadConfig resolves, loads, defaults, and validates the configuration.
func LoadConfig(path, dataDir string) (*config.Config, string, error) {
	path, err := config.ResolvePath(path)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}
	cfg.ApplyDefaults(dataDir)
	if err := config.Validate(cfg); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// Run loads configuration, builds the shared context, arms every configured
// job, and blocks until the shutdown receiver has stopped the scheduler and
// the exit grace elapsed. Cancelling ctx or a handled signal triggers the
// same path. It returns an error when construction fails or when the
// shutdown channel broke before a shutdown was requested.
func Run(ctx context.Context, params RunParams) error {
	cfg, cfgPath, err := LoadConfig(params.ConfigPath, params.DataDir)
	if err != nil {
		return err
	}

	stderr := params.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	clock := params.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	redactor := logging.NewRedactor()
	redactor.AddLiteral(cfg.Gateway.Auth.BearerToken)
	redactor.AddLiteral(cfg.Gateway.Auth.BasicPass)
	logger, err := logging.New(stderr, cfg.Log, redactor)
	if err != nil {
		return err
	}
	logger.Info("starting taskd",
		"version", params.Version,
		"commit", params.Commit,
		"config", cfgPath,
		"data_dir", cfg.DataDir,
	)

	flush, err := telemetry.Setup(ctx, cfg.Telemetry, params.Version, logger)
	if err != nil {
		return err
	}
	defer func() {
		fctx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		defer cancel()
		if err := flush(fctx); err != nil {
			logger.Warn("telemetry flush failed", "error", err)
		}
	}()

	appCtx, err := core.NewAppContext(ctx, core.Options{
		Logger:   logger,
		DataDir:  cfg.DataDir,
		Database: cfg.Database,
		Cache:    cfg.Cache,
		Clock:    clock,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := appCtx.Close(); err != nil {
			logger.Error("closing shared context", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sched := scheduler.New(appCtx, scheduler.Options{
		Config:  cfg.Scheduler,
		Logger:  logger,
		Clock:   clock,
		Metrics: scheduler.NewMetrics(reg),
	})
	if err := registerJobs(sched, appCtx, cfg, logger); err != nil {
		return err
	}

	sub := params.Subscriber
	if sub == nil {
		if sub, err = shutdown.NewSubscriber(cfg.Shutdown, logger); err != nil {
			return err
		}
	}
	receiver := shutdown.NewReceiver(shutdown.Options{
		Topic:      cfg.Shutdown.Topic,
		ExitGrace:  cfg.Shutdown.ExitGrace,
		Subscriber: sub,
		Stopper:    sched,
		Clock:      clock,
		Logger:     logger,
	})

	gw := gateway.New(gateway.Options{
		Config:     cfg.Gateway,
		Scheduler:  sched,
		Receiver:   receiver,
		Dispatcher: appCtx.Dispatcher(),
		Gatherer:   reg,
		Logger:     logger,
		Version:    params.Version,
	})

	lifecycle := core.NewApp(logger)
	lifecycle.Append("gateway", gw)
	lifecycle.Append("scheduler", sched)
	if err := lifecycle.Start(ctx); err != nil {
		return err
	}
	defer lifecycle.Stop()

	notifier := service.NewNotifier(logger)
	notifier.Ready()
	notifier.Status(fmt.Sprintf("%d jobs armed", len(sched.Snapshot().Jobs)))
	defer notifier.Stopping()

	return awaitShutdown(ctx, receiver, logger, params.HandleSignals)
}

// awaitShutdown listens on the shutdown channel and returns once the
// receiver finished terminating.
func awaitShutdown(ctx context.Context, receiver *shutdown.Receiver, logger *slog.Logger, handleSignals bool) error {
	listenCtx, cancelListen := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelListen()

	listenErr := make(chan error, 1)
	go func() { listenErr <- receiver.Listen(listenCtx) }()

	var sigCh chan os.Signal
	if handleSignals {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
	}

	var runErr error
	select {
	case <-receiver.Done():
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
		receiver.Terminate("signal " + sig.String())
	case <-ctx.Done():
		receiver.Terminate("context cancelled")
	case err := <-listenErr:
		if err == nil {
			err = errors.New("shutdown: listener stopped")
		}
		// A message may have raced the transport failure.
		if receiver.State() == shutdown.Listening {
			runErr = err
			receiver.Terminate("shutdown channel failed")
		}
	}

	<-receiver.Done()
	logger.Info("shutdown complete", "reason", receiver.Reason())
	return runErr
}
