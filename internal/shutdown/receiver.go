package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// State is the receiver lifecycle. Terminating is terminal.
type State int32

// Receiver states.
const (
	Listening State = iota
	Terminating
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Listening:
		return "listening"
	case Terminating:
		return "terminating"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Stopper is the component halted on termination; in the daemon it is the
// scheduler.
type Stopper interface {
	Stop(ctx context.Context) error
}

// StopMarker is implemented by stoppers that can refuse new work
// synchronously, before the drain in Stop begins.
type StopMarker interface {
	MarkStopping()
}

// Options configures NewReceiver.
type Options struct {
	Topic      string
	ExitGrace  time.Duration
	Subscriber Subscriber
	Stopper    Stopper
	Clock      clockwork.Clock
	Logger     *slog.Logger
}

// Receiver waits for the exit notification, stops the scheduler, and
// signals process exit after a short grace delay.
type Receiver struct {
	topic   string
	grace   time.Duration
	sub     Subscriber
	stopper Stopper
	clock   clockwork.Clock
	logger  *slog.Logger

	state atomic.Int32
	done  chan struct{}

	mu     sync.Mutex
	reason string
}

// NewReceiver creates a receiver in the Listening state.
func NewReceiver(opts Options) *Receiver {
	if opts.Topic == "" {
		opts.Topic = defaultTopic
	}
	if opts.ExitGrace <= 0 {
		opts.ExitGrace = defaultExitGrace
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Receiver{
		topic:   opts.Topic,
		grace:   opts.ExitGrace,
		sub:     opts.Subscriber,
		stopper: opts.Stopper,
		clock:   opts.Clock,
		logger:  opts.Logger.With("component", "shutdown"),
		done:    make(chan struct{}),
	}
}

// Listen subscribes to the shutdown topic and blocks until ctx is done or
// the transport fails. A transport failure is returned and is fatal to the
// daemon; there is no reconnect.
func (r *Receiver) Listen(ctx context.Context) error {
	if r.sub == nil {
		return errors.New("shutdown: no subscriber configured")
	}

	err := r.sub.Subscribe(ctx, r.topic, r.handle)
	switch {
	case ctx.Err() != nil:
		return nil
	case err != nil:
		return fmt.Errorf("shutdown: listen: %w", err)
	default:
		return fmt.Errorf("shutdown: listen: %w", ErrTransportClosed)
	}
}

func (r *Receiver) handle(msg Message) {
	if msg.Topic != r.topic {
		r.logger.Debug("ignoring message on unrelated topic", "topic", msg.Topic)
		return
	}
	r.Terminate(fmt.Sprintf("message on %q", msg.Topic))
}

// Terminate moves the receiver to Terminating. Only the first call has an
// effect; it returns immediately while the stop proceeds in the background.
// Done is closed once the stopper returned and the exit grace elapsed.
func (r *Receiver) Terminate(reason string) {
	if !r.state.CompareAndSwap(int32(Listening), int32(Terminating)) {
		r.logger.Debug("termination already in progress", "reason", reason)
		return
	}

	r.mu.Lock()
	r.reason = reason
	r.mu.Unlock()

	if m, ok := r.stopper.(StopMarker); ok {
		m.MarkStopping()
	}
	r.logger.Info("termination signal received", "reason", reason)
	go r.terminate()
}

func (r *Receiver) terminate() {
	defer close(r.done)

	if r.stopper != nil {
		if err := r.stopper.Stop(context.Background()); err != nil {
			r.logger.Error("stop failed", "error", err)
		}
	}

	<-r.clock.After(r.grace)
	r.logger.Info("exiting", "grace", r.grace)
}

// State returns the current lifecycle state.
func (r *Receiver) State() State {
	return State(r.state.Load())
}

// Reason returns what triggered termination, or "" while listening.
func (r *Receiver) Reason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reason
}

// Done is closed when the process should exit.
func (r *Receiver) Done() <-chan struct{} {
	return r.done
}
