package shutdown

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-zeromq/zmq4"
)

const defaultDialRetry = 250 * time.Millisecond

// ZMQSubscriber connects a SUB socket to a publisher endpoint
// (ipc://, tcp://). Publishers either send one frame "topic\x00payload" or a
// multipart message whose first frame is the topic.
type ZMQSubscriber struct {
	endpoint string
	retry    time.Duration
	logger   *slog.Logger
}

// Compile-time interface check.
var _ Subscriber = (*ZMQSubscriber)(nil)

// NewZMQSubscriber creates a subscriber for endpoint.
func NewZMQSubscriber(endpoint string, logger *slog.Logger) *ZMQSubscriber {
	return &ZMQSubscriber{
		endpoint: endpoint,
		retry:    defaultDialRetry,
		logger:   logger,
	}
}

// Subscribe implements Subscriber.
func (z *ZMQSubscriber) Subscribe(ctx context.Context, topic string, fn func(Message)) error {
	sock := zmq4.NewSub(ctx, zmq4.WithDialerRetry(z.retry))
	defer func() { _ = sock.Close() }()

	if err := sock.Dial(z.endpoint); err != nil {
		return fmt.Errorf("shutdown: zmq dial %s: %w", z.endpoint, err)
	}
	if err := sock.SetOption(zmq4.OptionSubscribe, topic); err != nil {
		return fmt.Errorf("shutdown: zmq subscribe %q: %w", topic, err)
	}

	// Recv does not take a context; closing the socket unblocks it.
	stop := context.AfterFunc(ctx, func() { _ = sock.Close() })
	defer stop()

	z.logger.Info("shutdown channel subscribed",
		"transport", TransportZMQ,
		"endpoint", z.endpoint,
		"topic", topic,
	)

	for {
		msg, err := sock.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("shutdown: zmq recv: %w", err)
		}
		fn(parseFrames(msg.Frames))
	}
}

// parseFrames splits a received message into topic and payload.
func parseFrames(frames [][]byte) Message {
	switch len(frames) {
	case 0:
		return Message{}
	case 1:
		topic, payload, _ := bytes.Cut(frames[0], []byte{0})
		return Message{Topic: string(topic), Payload: payload}
	default:
		return Message{Topic: string(frames[0]), Payload: bytes.Join(frames[1:], nil)}
	}
}
