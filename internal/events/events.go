// Package events holds the process-wide dispatch subscribers built from the
// shared database and cache handles.
package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flemzord/taskd/internal/cache"
	"github.com/flemzord/taskd/internal/dispatch"
)

// Topics handled by StoreEvents.
const (
	TopicCacheInvalidate = "cache.invalidate"
	TopicCachePurge      = "cache.purge"
	TopicDBPing          = "db.ping"
)

// Pinger is the subset of the session factory StoreEvents needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreEvents reacts to cache and database maintenance events.
type StoreEvents struct {
	db     Pinger
	cache  cache.Cache
	logger *slog.Logger
}

// Compile-time interface check.
var _ dispatch.Handler = (*StoreEvents)(nil)

// NewStoreEvents creates the subscriber.
func NewStoreEvents(db Pinger, c cache.Cache, logger *slog.Logger) *StoreEvents {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreEvents{db: db, cache: c, logger: logger}
}

// Topics implements dispatch.Handler.
func (e *StoreEvents) Topics() []string {
	return []string{TopicCacheInvalidate, TopicCachePurge, TopicDBPing}
}

// Handle implements dispatch.Handler.
func (e *StoreEvents) Handle(ctx context.Context, evt dispatch.Event) error {
	switch evt.Topic {
	case TopicCacheInvalidate:
		keys, err := invalidateKeys(evt.Payload)
		if err != nil {
			return err
		}
		n, err := e.cache.Delete(ctx, keys...)
		if err != nil {
			return err
		}
		e.logger.Debug("cache keys invalidated", "requested", len(keys), "deleted", n)
		return nil
	case TopicCachePurge:
		n, err := e.cache.Purge(ctx)
		if err != nil {
			return err
		}
		e.logger.Debug("cache purged", "deleted", n)
		return nil
	case TopicDBPing:
		return e.db.Ping(ctx)
	default:
		return fmt.Errorf("events: unexpected topic %q", evt.Topic)
	}
}

func invalidateKeys(payload any) ([]string, error) {
	switch v := payload.(type) {
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	default:
		return nil, fmt.Errorf("events: %s payload must be string or []string, got %T", TopicCacheInvalidate, payload)
	}
}
