// Package scheduler drives a fixed set of jobs, each on its own self-adjusting
// timer. A single event loop owns every timer slot: executions run on their
// own goroutines and report back to the loop, which re-arms the job for the
// delay it returned. Re-arming is chained, so the interval between two runs
// of a job is its own cost plus the delay it declared.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/taskd/internal/core"
)

const (
	defaultFallbackDelay = 30 * time.Second
	defaultDrainTimeout  = 10 * time.Second

	tracerName = "github.com/flemzord/taskd/internal/scheduler"
)

// Sentinel errors for scheduler operations.
var (
	ErrAlreadyStarted = errors.New("scheduler: already started")
	ErrStopped        = errors.New("scheduler: stopped")
	ErrRegistryClosed = errors.New("scheduler: registry closed")
	ErrDuplicateJob   = errors.New("scheduler: duplicate job name")
	ErrJobPanic       = errors.New("scheduler: job panicked")
)

// Config holds scheduler tuning.
type Config struct {
	// FallbackDelay re-arms a job whose run failed or returned a negative
	// delay. Defaults to 30s.
	FallbackDelay time.Duration `yaml:"fallback_delay"`

	// DrainTimeout bounds how long Stop waits for in-flight runs. When it
	// expires their contexts are cancelled and Stop returns. Defaults to 10s.
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// Defaults fills zero values.
func (c *Config) Defaults() {
	if c.FallbackDelay <= 0 {
		c.FallbackDelay = defaultFallbackDelay
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = defaultDrainTimeout
	}
}

// Options configures New.
type Options struct {
	Config  Config
	Logger  *slog.Logger
	Clock   clockwork.Clock
	Metrics *Metrics     // nil disables metrics
	Tracer  trace.Tracer // nil uses the global tracer provider
}

// Scheduler owns the job registry and one timer slot per job.
type Scheduler struct {
	cfg     Config
	app     *core.AppContext
	logger  *slog.Logger
	clock   clockwork.Clock
	metrics *Metrics
	tracer  trace.Tracer

	// mu guards registration, the started flag, and per-slot stats.
	// Timer slots themselves are only touched by the loop goroutine.
	mu      sync.Mutex
	slots   []*slot
	names   map[string]struct{}
	started bool

	// shutdown is the write-once shutdown state, read before every re-arm.
	shutdown atomic.Bool
	stopOnce sync.Once

	fire      chan *slot
	done      chan completion
	stopReq   chan struct{}
	exited    chan struct{}
	runCancel context.CancelFunc
}

type slot struct {
	job     core.Job
	timer   clockwork.Timer
	running bool
	stats   JobStatus
}

type completion struct {
	slot    *slot
	delay   time.Duration
	err     error
	started time.Time
	elapsed time.Duration
}

// New creates a scheduler whose jobs receive app on every run.
func New(app *core.AppContext, opts Options) *Scheduler {
	opts.Config.Defaults()
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}
	return &Scheduler{
		cfg:     opts.Config,
		app:     app,
		logger:  opts.Logger.With("component", "scheduler"),
		clock:   opts.Clock,
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
		names:   make(map[string]struct{}),
		stopReq: make(chan struct{}),
		exited:  make(chan struct{}),
	}
}

// Register adds a job. Must be called before Start().
func (s *Scheduler) Register(job core.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if s.started || s.shutdown.Load() {
		return fmt.Errorf("%w: cannot register %q", ErrRegistryClosed, name)
	}
	if name == "" {
		return errors.New("scheduler: job name must not be empty")
	}
	if _, exists := s.names[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateJob, name)
	}

	s.names[name] = struct{}{}
	s.slots = append(s.slots, &slot{job: job, stats: JobStatus{Name: name}})
	return nil
}

// Start closes the registry, runs every job once, and starts the event loop.
// Runs keep going after ctx is cancelled; use Stop to shut down.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	if s.shutdown.Load() {
		return ErrStopped
	}
	s.started = true

	// One buffered slot per job: each job has at most one pending timer and
	// at most one in-flight run, so neither channel ever blocks a sender.
	s.fire = make(chan *slot, len(s.slots))
	s.done = make(chan completion, len(s.slots))

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.runCancel = cancel

	go s.loop(runCtx)
	s.logger.Info("scheduler started", "jobs", len(s.slots))
	return nil
}

// Stop sets the shutdown state, cancels every pending timer, and waits for
// in-flight runs to finish without re-arming them. It returns when the loop
// has drained, when the drain timeout expired, or when ctx is done.
// Safe to call multiple times and before Start.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.MarkStopping()

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	if !started {
		return nil
	}
	s.stopOnce.Do(func() {
		s.logger.Info("scheduler stopping")
		close(s.stopReq)
	})

	select {
	case <-s.exited:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler: stop: %w", ctx.Err())
	}
}

// MarkStopping sets the shutdown state without waiting. From then on no
// completion re-arms its job and no firing timer launches a run; Stop still
// has to be called to cancel timers and drain.
func (s *Scheduler) MarkStopping() {
	s.shutdown.Store(true)
}

// Stopping reports whether MarkStopping or Stop has been called.
func (s *Scheduler) Stopping() bool {
	return s.shutdown.Load()
}

// Done is closed once the event loop has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.exited
}

// loop is the only goroutine that touches timer slots.
func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.exited)
	defer s.cancelTimers()
	defer s.runCancel()

	inflight := 0
	for _, sl := range s.slots {
		inflight++
		s.launch(ctx, sl)
	}

	stopReq := s.stopReq
	var (
		drainTimer clockwork.Timer
		drain      <-chan time.Time
	)
	defer func() {
		if drainTimer != nil {
			drainTimer.Stop()
		}
	}()

	for {
		select {
		case c := <-s.done:
			if !c.slot.running || c.slot.timer != nil {
				s.logger.Warn("dropping unexpected completion", "job", c.slot.job.Name())
				continue
			}
			inflight--
			delay := s.complete(c)
			if s.shutdown.Load() {
				if inflight == 0 {
					s.logger.Info("scheduler drained")
					return
				}
				continue
			}
			s.arm(c.slot, delay)

		case sl := <-s.fire:
			sl.timer = nil
			if s.shutdown.Load() {
				continue
			}
			inflight++
			s.launch(ctx, sl)

		case <-stopReq:
			stopReq = nil
			n := s.cancelTimers()
			s.logger.Info("pending timers cancelled", "timers", n, "in_flight", inflight)
			if inflight == 0 {
				return
			}
			drainTimer = s.clock.NewTimer(s.cfg.DrainTimeout)
			drain = drainTimer.Chan()

		case <-drain:
			s.logger.Warn("drain timeout elapsed, cancelling in-flight jobs",
				"timeout", s.cfg.DrainTimeout,
				"jobs", s.runningNames(),
			)
			s.metrics.runsAbandoned(inflight)
			return
		}
	}
}

func (s *Scheduler) launch(ctx context.Context, sl *slot) {
	sl.running = true
	now := s.clock.Now()

	s.mu.Lock()
	sl.stats.Running = true
	sl.stats.LastStart = now
	sl.stats.NextRun = time.Time{}
	s.mu.Unlock()

	s.metrics.runStarted()
	go func() {
		s.done <- s.execute(ctx, sl)
	}()
}

// execute runs the job once. Errors and panics are captured in the result;
// nothing escapes to the loop.
func (s *Scheduler) execute(ctx context.Context, sl *slot) (c completion) {
	name := sl.job.Name()
	ctx, span := s.tracer.Start(ctx, "job.execute",
		trace.WithAttributes(attribute.String("job.name", name)),
	)
	defer span.End()

	c.slot = sl
	c.started = s.clock.Now()

	defer func() {
		if r := recover(); r != nil {
			c.err = fmt.Errorf("%w: %v", ErrJobPanic, r)
		}
		c.elapsed = s.clock.Since(c.started)
		if c.err != nil {
			span.RecordError(c.err)
			span.SetStatus(codes.Error, c.err.Error())
		} else {
			span.SetAttributes(attribute.Int64("job.next_delay_ms", c.delay.Milliseconds()))
		}
	}()

	c.delay, c.err = sl.job.Execute(ctx, s.app)
	return c
}

// complete records the outcome and returns the delay to re-arm with.
func (s *Scheduler) complete(c completion) time.Duration {
	sl := c.slot
	sl.running = false
	name := sl.job.Name()

	delay := c.delay
	result := resultSuccess
	switch {
	case c.err != nil:
		result = resultFailure
		delay = s.cfg.FallbackDelay
		s.logger.Error("job failed",
			"job", name,
			"error", c.err,
			"duration", c.elapsed,
			"retry_in", delay,
		)
	case delay < 0:
		s.logger.Warn("job returned negative delay, using fallback",
			"job", name,
			"delay", c.delay,
			"fallback", s.cfg.FallbackDelay,
		)
		delay = s.cfg.FallbackDelay
	default:
		s.logger.Debug("job completed", "job", name, "duration", c.elapsed, "next_in", delay)
	}

	s.mu.Lock()
	sl.stats.Running = false
	sl.stats.Runs++
	sl.stats.LastDuration = c.elapsed
	sl.stats.LastDelay = delay
	if c.err != nil {
		sl.stats.Failures++
		sl.stats.LastError = c.err.Error()
	} else {
		sl.stats.LastError = ""
	}
	s.mu.Unlock()

	s.metrics.runFinished(name, result, c.elapsed, delay)
	return delay
}

func (s *Scheduler) arm(sl *slot, delay time.Duration) {
	s.mu.Lock()
	sl.stats.NextRun = s.clock.Now().Add(delay)
	s.mu.Unlock()

	sl.timer = s.clock.AfterFunc(delay, func() {
		s.fire <- sl
	})
	s.metrics.setPending(s.pendingTimers())
}

// cancelTimers stops every pending timer and returns how many were pending.
func (s *Scheduler) cancelTimers() int {
	n := 0
	for _, sl := range s.slots {
		if sl.timer == nil {
			continue
		}
		sl.timer.Stop()
		sl.timer = nil
		n++

		s.mu.Lock()
		sl.stats.NextRun = time.Time{}
		s.mu.Unlock()
	}
	s.metrics.setPending(0)
	return n
}

func (s *Scheduler) pendingTimers() int {
	n := 0
	for _, sl := range s.slots {
		if sl.timer != nil {
			n++
		}
	}
	return n
}

func (s *Scheduler) runningNames() []string {
	var names []string
	for _, sl := range s.slots {
		if sl.running {
			names = append(names, sl.job.Name())
		}
	}
	return names
}
