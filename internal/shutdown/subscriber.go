// Package shutdown listens on an out-of-band channel for the exit
// notification and drives the orderly stop of the daemon.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	defaultEndpoint  = "ipc:///tmp/taskd-exit-sub"
	defaultTopic     = "task-exit"
	defaultExitGrace = 100 * time.Millisecond
)

// Transport names accepted in Config.Transport.
const (
	TransportZMQ       = "zmq"
	TransportWebSocket = "websocket"
)

// Sentinel errors for the shutdown package.
var (
	ErrTransportClosed  = errors.New("shutdown: transport closed")
	ErrUnknownTransport = errors.New("shutdown: unknown transport")
)

// Message is one notification received on the shutdown channel. Only the
// topic is interpreted.
type Message struct {
	Topic   string
	Payload []byte
}

// Subscriber delivers messages published on a topic. Subscribe blocks until
// ctx is done (returning nil) or the transport fails (returning the error).
// fn is called from the subscriber's read goroutine and must not block.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, fn func(Message)) error
}

// Config selects and tunes the shutdown channel.
type Config struct {
	Transport string        `yaml:"transport"`
	Endpoint  string        `yaml:"endpoint"`
	Topic     string        `yaml:"topic"`
	ExitGrace time.Duration `yaml:"exit_grace"`
}

// Defaults fills zero values.
func (c *Config) Defaults() {
	if c.Transport == "" {
		c.Transport = TransportZMQ
	}
	if c.Endpoint == "" && c.Transport == TransportZMQ {
		c.Endpoint = defaultEndpoint
	}
	if c.Topic == "" {
		c.Topic = defaultTopic
	}
	if c.ExitGrace <= 0 {
		c.ExitGrace = defaultExitGrace
	}
}

// Validate checks the transport settings.
func (c *Config) Validate() error {
	var errs []error
	switch c.Transport {
	case TransportZMQ, TransportWebSocket:
	default:
		errs = append(errs, fmt.Errorf("%w %q (want %s or %s)", ErrUnknownTransport, c.Transport, TransportZMQ, TransportWebSocket))
	}
	if c.Endpoint == "" {
		errs = append(errs, errors.New("shutdown: endpoint is required"))
	}
	if c.Topic == "" {
		errs = append(errs, errors.New("shutdown: topic is required"))
	}
	return errors.Join(errs...)
}

// NewSubscriber builds the subscriber for the configured transport.
func NewSubscriber(cfg Config, logger *slog.Logger) (Subscriber, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Transport {
	case TransportZMQ:
		return NewZMQSubscriber(cfg.Endpoint, logger), nil
	case TransportWebSocket:
		return NewWebSocketSubscriber(cfg.Endpoint, logger), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownTransport, cfg.Transport)
	}
}
