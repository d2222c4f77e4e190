// Package server exposes the snapshot, the run state and a manual trigger
// over HTTP in daemon mode.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matrixise/dog-tracker/internal/health"
	"github.com/matrixise/dog-tracker/internal/metrics"
	"github.com/matrixise/dog-tracker/internal/scheduler"
	"github.com/matrixise/dog-tracker/internal/snapshot"
)

var callbackPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$.]{0,63}$`)

// Options wires the handlers to the poll loop
type Options struct {
	// Context bounds manual runs. Request contexts are not used so a client
	// disconnect does not interrupt a poll.
	Context context.Context
	Guard   *scheduler.Guard
	Job     scheduler.JobFunc
	Store   *snapshot.Store
	Health  *health.Checker
	Metrics *metrics.Metrics
}

type handlers struct {
	opts Options
}

// NewRouter builds the HTTP routes
func NewRouter(opts Options) chi.Router {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	h := &handlers{opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", opts.Health.Handler())
	r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/balances", h.balances)
		r.Get("/status", h.status)
		r.Post("/update", h.update)
	})

	return r
}

// New returns an HTTP server listening on port
func New(port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type statusData struct {
	IsUpdating     bool       `json:"isUpdating"`
	LastUpdateTime *time.Time `json:"lastUpdateTime"`
	TotalUsers     int        `json:"totalUsers"`
	TotalAddresses int        `json:"totalAddresses"`
	LastRun        *runData   `json:"lastRun,omitempty"`
}

type runData struct {
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Error      string    `json:"error,omitempty"`
}

func (h *handlers) balances(w http.ResponseWriter, r *http.Request) {
	callback := r.URL.Query().Get("callback")
	if callback != "" && !callbackPattern.MatchString(callback) {
		writeJSON(w, http.StatusBadRequest, response{Message: "invalid callback"})
		return
	}

	var (
		status = http.StatusOK
		body   any
	)
	snap, err := h.opts.Store.Latest()
	switch {
	case errors.Is(err, snapshot.ErrNoSnapshot):
		status = http.StatusServiceUnavailable
		body = response{Message: "no balance data yet"}
	case err != nil:
		slog.Error("Failed to read snapshot", "error", err)
		status = http.StatusInternalServerError
		body = response{Message: "snapshot unavailable", Error: err.Error()}
	default:
		body = snap
	}

	if callback == "" {
		writeJSON(w, status, body)
		return
	}

	payload, err := json.Marshal(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/javascript")
	w.WriteHeader(status)
	fmt.Fprintf(w, "%s(%s);", callback, payload)
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	data := statusData{IsUpdating: h.opts.Guard.Running()}

	if snap, err := h.opts.Store.Latest(); err == nil {
		last := snap.Data.LastUpdate
		data.LastUpdateTime = &last
		data.TotalUsers = snap.Data.TotalUsers
		data.TotalAddresses = snap.Data.TotalAddresses
	}

	if run, ok := h.opts.Guard.LastRun(); ok {
		data.LastRun = &runData{StartedAt: run.StartedAt, FinishedAt: run.FinishedAt}
		if run.Err != nil {
			data.LastRun.Error = run.Err.Error()
		}
	}

	writeJSON(w, http.StatusOK, response{Success: true, Data: data})
}

func (h *handlers) update(w http.ResponseWriter, r *http.Request) {
	slog.Info("Manual update requested", "remote", r.RemoteAddr)

	err := h.opts.Guard.TryRun(h.opts.Context, h.opts.Job)
	switch {
	case errors.Is(err, scheduler.ErrRunInProgress):
		writeJSON(w, http.StatusConflict, response{Message: "update already in progress"})
	case err != nil:
		slog.Error("Manual update failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, response{Message: "update failed", Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, response{Success: true, Message: "balances updated"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}
