package shutdown

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/coder/websocket"
)

const opSubscribe = "subscribe"

// wsEnvelope is the JSON frame exchanged with a WebSocket publisher. The
// client sends {"op":"subscribe","topic":...}; the publisher pushes
// {"topic":...,"payload":...}.
type wsEnvelope struct {
	Op      string          `json:"op,omitempty"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WebSocketSubscriber dials a ws:// or wss:// publisher and subscribes to a
// topic.
type WebSocketSubscriber struct {
	endpoint string
	logger   *slog.Logger
}

// Compile-time interface check.
var _ Subscriber = (*WebSocketSubscriber)(nil)

// NewWebSocketSubscriber creates a subscriber for endpoint.
func NewWebSocketSubscriber(endpoint string, logger *slog.Logger) *WebSocketSubscriber {
	return &WebSocketSubscriber{endpoint: endpoint, logger: logger}
}

// Subscribe implements Subscriber.
func (w *WebSocketSubscriber) Subscribe(ctx context.Context, topic string, fn func(Message)) error {
	conn, _, err := websocket.Dial(ctx, w.endpoint, nil)
	if err != nil {
		return fmt.Errorf("shutdown: websocket dial %s: %w", w.endpoint, err)
	}
	defer func() { _ = conn.CloseNow() }()

	req, err := json.Marshal(wsEnvelope{Op: opSubscribe, Topic: topic})
	if err != nil {
		return fmt.Errorf("shutdown: marshal subscribe: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, req); err != nil {
		return fmt.Errorf("shutdown: websocket subscribe %q: %w", topic, err)
	}

	w.logger.Info("shutdown channel subscribed",
		"transport", TransportWebSocket,
		"endpoint", w.endpoint,
		"topic", topic,
	)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("shutdown: websocket read: %w", err)
		}

		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			w.logger.Warn("invalid shutdown frame", "error", err)
			continue
		}
		fn(Message{Topic: env.Topic, Payload: env.Payload})
	}
}
