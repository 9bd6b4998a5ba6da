package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flemzord/taskd/internal/scheduler"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(g.requestLogger)
	r.Use(middleware.Recoverer)

	// Public: no auth required.
	r.Get("/health", g.handleHealth())
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(g.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		if g.config.Auth.IsConfigured() {
			r.Use(authMiddleware(g.config.Auth, g.logger))
		}
		r.Get("/jobs", g.handleListJobs())
		r.Get("/jobs/{name}", g.handleGetJob())
	})

	return r
}

// requestLogger logs one debug line per request.
func (g *Gateway) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		g.logger.LogAttrs(r.Context(), slog.LevelDebug, "http request",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}

// JobsResponse is the JSON response for GET /api/jobs.
type JobsResponse struct {
	Version  string              `json:"version"`
	Uptime   string              `json:"uptime"`
	Started  bool                `json:"started"`
	Stopping bool                `json:"stopping"`
	Jobs     []jobStatusResponse `json:"jobs"`
}

type jobStatusResponse struct {
	Name         string    `json:"name"`
	Runs         uint64    `json:"runs"`
	Failures     uint64    `json:"failures"`
	Running      bool      `json:"running"`
	LastStart    time.Time `json:"last_start,omitzero"`
	LastDuration string    `json:"last_duration"`
	LastDelay    string    `json:"last_delay"`
	LastError    string    `json:"last_error,omitempty"`
	NextRun      time.Time `json:"next_run,omitzero"`
}

func toJobResponse(js scheduler.JobStatus) jobStatusResponse {
	return jobStatusResponse{
		Name:         js.Name,
		Runs:         js.Runs,
		Failures:     js.Failures,
		Running:      js.Running,
		LastStart:    js.LastStart,
		LastDuration: js.LastDuration.String(),
		LastDelay:    js.LastDelay.String(),
		LastError:    js.LastError,
		NextRun:      js.NextRun,
	}
}

func (g *Gateway) handleListJobs() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		snap := g.sched.Snapshot()
		resp := JobsResponse{
			Version:  g.version,
			Uptime:   time.Since(g.startedAt).Truncate(time.Second).String(),
			Started:  snap.Started,
			Stopping: snap.Stopping,
			Jobs:     make([]jobStatusResponse, 0, len(snap.Jobs)),
		}
		for _, js := range snap.Jobs {
			resp.Jobs = append(resp.Jobs, toJobResponse(js))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (g *Gateway) handleGetJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		for _, js := range g.sched.Snapshot().Jobs {
			if js.Name == name {
				writeJSON(w, http.StatusOK, toJobResponse(js))
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
