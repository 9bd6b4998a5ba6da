// Package dispatch is the process-wide event registry. Handlers register for
// topics once at startup; jobs publish events that are fanned out to every
// handler subscribed to the topic.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Event is a published notification.
type Event struct {
	Topic   string
	Time    time.Time
	Payload any
}

// Handler reacts to the topics it declares.
type Handler interface {
	Topics() []string
	Handle(ctx context.Context, evt Event) error
}

// HandlerFunc adapts a function to a single-topic Handler.
type HandlerFunc struct {
	Topic string
	Fn    func(ctx context.Context, evt Event) error
}

// Topics implements Handler.
func (h HandlerFunc) Topics() []string { return []string{h.Topic} }

// Handle implements Handler.
func (h HandlerFunc) Handle(ctx context.Context, evt Event) error { return h.Fn(ctx, evt) }

// Dispatcher fans events out to registered handlers. Safe for concurrent use.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// New creates an empty Dispatcher.
func New(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Register subscribes h to each topic it declares.
func (d *Dispatcher) Register(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, topic := range h.Topics() {
		d.handlers[topic] = append(d.handlers[topic], h)
	}
}

// Topics returns the topics that have at least one handler.
func (d *Dispatcher) Topics() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	topics := make([]string, 0, len(d.handlers))
	for t := range d.handlers {
		topics = append(topics, t)
	}
	return topics
}

// Publish delivers the event synchronously to every handler of topic and
// returns their joined errors. A panicking handler is reported as an error.
func (d *Dispatcher) Publish(ctx context.Context, topic string, payload any) error {
	d.mu.RLock()
	hs := append([]Handler(nil), d.handlers[topic]...)
	d.mu.RUnlock()

	if len(hs) == 0 {
		return nil
	}

	evt := Event{Topic: topic, Time: time.Now(), Payload: payload}
	var errs []error
	for _, h := range hs {
		if err := safeHandle(ctx, h, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishAsync delivers the event on a new goroutine. Errors are logged.
func (d *Dispatcher) PublishAsync(ctx context.Context, topic string, payload any) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.Publish(context.WithoutCancel(ctx), topic, payload); err != nil {
			d.logger.Error("dispatch: async handler failed", "topic", topic, "error", err)
		}
	}()
}

// Wait blocks until every PublishAsync delivery finished or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func safeHandle(ctx context.Context, h Handler, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch: handler panic on %s: %v", evt.Topic, r)
		}
	}()
	return h.Handle(ctx, evt)
}
