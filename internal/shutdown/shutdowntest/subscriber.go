// Package shutdowntest provides test doubles for the shutdown package.
package shutdowntest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/flemzord/taskd/internal/shutdown"
)

// FakeSubscriber is an in-memory shutdown.Subscriber. Messages passed to
// Publish are delivered to the active subscription; Fail ends it with err.
type FakeSubscriber struct {
	msgs chan shutdown.Message
	errs chan error

	once       sync.Once
	subscribed chan struct{}

	delivered atomic.Int64

	mu    sync.Mutex
	topic string
}

// Compile-time interface check.
var _ shutdown.Subscriber = (*FakeSubscriber)(nil)

// NewFakeSubscriber creates a FakeSubscriber.
func NewFakeSubscriber() *FakeSubscriber {
	return &FakeSubscriber{
		msgs:       make(chan shutdown.Message, 16),
		errs:       make(chan error, 1),
		subscribed: make(chan struct{}),
	}
}

// Subscribe implements shutdown.Subscriber.
func (f *FakeSubscriber) Subscribe(ctx context.Context, topic string, fn func(shutdown.Message)) error {
	f.mu.Lock()
	f.topic = topic
	f.mu.Unlock()
	f.once.Do(func() { close(f.subscribed) })

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-f.errs:
			return err
		case msg := <-f.msgs:
			fn(msg)
			f.delivered.Add(1)
		}
	}
}

// Publish queues a message for delivery.
func (f *FakeSubscriber) Publish(topic string, payload []byte) {
	f.msgs <- shutdown.Message{Topic: topic, Payload: payload}
}

// Fail makes the active subscription return err.
func (f *FakeSubscriber) Fail(err error) {
	f.errs <- err
}

// Subscribed is closed once Subscribe has been called.
func (f *FakeSubscriber) Subscribed() <-chan struct{} {
	return f.subscribed
}

// Delivered returns how many messages were handed to the callback.
func (f *FakeSubscriber) Delivered() int {
	return int(f.delivered.Load())
}

// Topic returns the topic passed to Subscribe.
func (f *FakeSubscriber) Topic() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.topic
}
