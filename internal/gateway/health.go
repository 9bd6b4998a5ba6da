package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/flemzord/taskd/internal/events"
	"github.com/flemzord/taskd/internal/shutdown"
)

const healthPingTimeout = 2 * time.Second

// Health states reported by GET /health.
const (
	StatusOK          = "ok"
	StatusDegraded    = "degraded"
	StatusTerminating = "terminating"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Jobs    int    `json:"jobs"`
}

// handleHealth returns 200 while the daemon is listening and the database
// answers, 503 otherwise.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: StatusOK, Version: g.version}
		if g.sched != nil {
			resp.Jobs = len(g.sched.Snapshot().Jobs)
		}

		switch {
		case g.receiver != nil && g.receiver.State() == shutdown.Terminating:
			resp.Status = StatusTerminating
		case g.dispatcher != nil:
			ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
			err := g.dispatcher.Publish(ctx, events.TopicDBPing, nil)
			cancel()
			if err != nil {
				resp.Status = StatusDegraded
				g.logger.Warn("health check failed", "check", events.TopicDBPing, "error", err)
			}
		}

		status := http.StatusOK
		if resp.Status != StatusOK {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}
