package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/flemzord/taskd/internal/core"
)

// WatchdogJobName is the name the watchdog job registers under.
const WatchdogJobName = "systemd_watchdog"

// Notifier sends sd_notify state changes. Outside systemd (no NOTIFY_SOCKET)
// every call is a silent no-op.
type Notifier struct {
	logger *slog.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{logger: logger.With("component", "sd_notify")}
}

// Ready reports READY=1.
func (n *Notifier) Ready() {
	n.send(daemon.SdNotifyReady)
}

// Stopping reports STOPPING=1.
func (n *Notifier) Stopping() {
	n.send(daemon.SdNotifyStopping)
}

// Status reports a free-form STATUS= line.
func (n *Notifier) Status(msg string) {
	n.send("STATUS=" + msg)
}

func (n *Notifier) send(state string) {
	sent, err := daemon.SdNotify(false, state)
	switch {
	case err != nil:
		n.logger.Warn("sd_notify failed", "state", state, "error", err)
	case sent:
		n.logger.Debug("sd_notify sent", "state", state)
	}
}

// WatchdogJob pings the systemd watchdog at half its configured period.
type WatchdogJob struct {
	interval time.Duration
}

// Compile-time interface check.
var _ core.Job = (*WatchdogJob)(nil)

// NewWatchdogJob returns the job when systemd enabled the watchdog for this
// process, or ok=false otherwise.
func NewWatchdogJob() (job *WatchdogJob, ok bool, err error) {
	period, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return nil, false, fmt.Errorf("service: reading watchdog settings: %w", err)
	}
	if period <= 0 {
		return nil, false, nil
	}
	return &WatchdogJob{interval: period / 2}, true, nil
}

// Name implements core.Job.
func (w *WatchdogJob) Name() string { return WatchdogJobName }

// Interval is the ping cadence.
func (w *WatchdogJob) Interval() time.Duration { return w.interval }

// Execute implements core.Job.
func (w *WatchdogJob) Execute(context.Context, *core.AppContext) (time.Duration, error) {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
		return w.interval, fmt.Errorf("watchdog ping: %w", err)
	}
	return w.interval, nil
}
