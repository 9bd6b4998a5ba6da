package app

import (
	"fmt"
	"log/slog"

	"github.com/flemzord/taskd/internal/config"
	"github.com/flemzord/taskd/internal/core"
	"github.com/flemzord/taskd/internal/scheduler"
	"github.com/flemzord/taskd/internal/service"
)

// registerJobs instantiates every configured job in name order, then adds
// the systemd watchdog when the service manager asked for one.
func registerJobs(sched *scheduler.Scheduler, appCtx *core.AppContext, cfg *config.Config, logger *slog.Logger) error {
	for _, name := range config.JobNames(cfg) {
		node := cfg.Jobs[name]
		job, err := appCtx.LoadJob(name, &node)
		if err != nil {
			return err
		}
		if err := sched.Register(job); err != nil {
			return fmt.Errorf("registering job %s: %w", name, err)
		}
		logger.Debug("job registered", "job", name, "kind", config.JobKind(&node))
	}

	wd, ok, err := service.NewWatchdogJob()
	if err != nil {
		logger.Warn("systemd watchdog unavailable", "error", err)
		return nil
	}
	if ok {
		if err := sched.Register(wd); err != nil {
			return fmt.Errorf("registering watchdog: %w", err)
		}
		logger.Info("systemd watchdog enabled", "interval", wd.Interval())
	}
	return nil
}
