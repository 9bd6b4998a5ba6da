// Package service integrates taskd with the host service manager: install and
// control through kardianos/service, readiness and watchdog through sd_notify.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/kardianos/service"
)

const (
	defaultName        = "taskd"
	defaultDisplayName = "taskd periodic job scheduler"
	defaultDescription = "Runs self-scheduling maintenance jobs until told to exit."
	defaultStopTimeout = 30 * time.Second
)

// ErrUnknownAction is returned by Control for actions kardianos does not know.
var ErrUnknownAction = errors.New("service: unknown action")

// RunFunc is the daemon body. It must return once ctx is cancelled.
type RunFunc func(ctx context.Context) error

// Config describes the installed service.
type Config struct {
	Name        string
	DisplayName string
	Description string
	// Arguments are passed to the executable when the manager starts it.
	Arguments []string
	// StopTimeout bounds how long Stop waits for RunFunc to return.
	StopTimeout time.Duration
}

// Defaults fills zero values.
func (c *Config) Defaults() {
	if c.Name == "" {
		c.Name = defaultName
	}
	if c.DisplayName == "" {
		c.DisplayName = defaultDisplayName
	}
	if c.Description == "" {
		c.Description = defaultDescription
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = defaultStopTimeout
	}
}

// Program adapts a RunFunc to service.Interface.
type Program struct {
	run         RunFunc
	stopTimeout time.Duration
	logger      *slog.Logger

	done chan struct{}

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	err     error
}

// Compile-time interface check.
var _ service.Interface = (*Program)(nil)

// NewProgram wraps run.
func NewProgram(run RunFunc, stopTimeout time.Duration, logger *slog.Logger) *Program {
	if logger == nil {
		logger = slog.Default()
	}
	if stopTimeout <= 0 {
		stopTimeout = defaultStopTimeout
	}
	return &Program{
		run:         run,
		stopTimeout: stopTimeout,
		logger:      logger.With("component", "service"),
		done:        make(chan struct{}),
	}
}

// Start implements service.Interface. It must not block.
func (p *Program) Start(service.Service) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("service: already started")
	}
	p.started = true

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	go func() {
		err := p.run(ctx)
		if err != nil {
			p.logger.Error("daemon exited with error", "error", err)
		}
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
	}()
	return nil
}

// Stop implements service.Interface. It cancels the run context and waits
// up to the stop timeout for RunFunc to return.
func (p *Program) Stop(service.Service) error {
	p.mu.Lock()
	started, cancel := p.started, p.cancel
	p.mu.Unlock()
	if !started {
		return nil
	}

	cancel()
	select {
	case <-p.done:
	case <-time.After(p.stopTimeout):
		return fmt.Errorf("service: daemon did not stop within %s", p.stopTimeout)
	}
	return p.Err()
}

// Done is closed when RunFunc has returned.
func (p *Program) Done() <-chan struct{} {
	return p.done
}

// Err returns what RunFunc returned, or nil while it is still running.
func (p *Program) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Run hands prg to the service manager and blocks until either the manager
// stops it or the daemon body returns on its own, e.g. after a shutdown
// message. In the latter case the daemon's error is returned so the process
// exits with the right status.
func Run(svc service.Service, prg *Program) error {
	errc := make(chan error, 1)
	go func() { errc <- svc.Run() }()

	select {
	case err := <-errc:
		return err
	case <-prg.Done():
		return prg.Err()
	}
}

// New builds the service handle for prg.
func New(cfg Config, prg *Program) (service.Service, error) {
	cfg.Defaults()
	svc, err := service.New(prg, &service.Config{
		Name:        cfg.Name,
		DisplayName: cfg.DisplayName,
		Description: cfg.Description,
		Arguments:   cfg.Arguments,
	})
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	return svc, nil
}

// Actions lists the control verbs accepted by Control.
func Actions() []string {
	return slices.Clone(service.ControlAction[:])
}

// Control runs one of Actions against svc.
func Control(svc service.Service, action string) error {
	if !slices.Contains(service.ControlAction[:], action) {
		return fmt.Errorf("%w %q (valid: %v)", ErrUnknownAction, action, service.ControlAction)
	}
	if err := service.Control(svc, action); err != nil {
		return fmt.Errorf("service %s: %w", action, err)
	}
	return nil
}

// Interactive reports whether the process runs from a terminal rather than
// under a service manager.
func Interactive() bool {
	return service.Interactive()
}
