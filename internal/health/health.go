package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/matrixise/dog-tracker/internal/scheduler"
	"github.com/matrixise/dog-tracker/internal/snapshot"
)

// EndpointHealth reports the state of each RPC endpoint
type EndpointHealth interface {
	EndpointsHealth() map[string]bool
}

// Checker reports on the poll loop and the snapshot it produces
type Checker struct {
	guard    *scheduler.Guard
	store    *snapshot.Store
	rpc      EndpointHealth
	interval time.Duration
	now      func() time.Time
}

// NewChecker creates a new health checker. interval is the expected time
// between polls, zero in one-shot mode.
func NewChecker(guard *scheduler.Guard, store *snapshot.Store, interval time.Duration) *Checker {
	return &Checker{
		guard:    guard,
		store:    store,
		interval: interval,
		now:      time.Now,
	}
}

// WithRPC adds an RPC endpoints check
func (c *Checker) WithRPC(rpc EndpointHealth) *Checker {
	c.rpc = rpc
	return c
}

// CheckStatus represents the health status of a component
type CheckStatus string

const (
	StatusOK       CheckStatus = "ok"
	StatusDegraded CheckStatus = "degraded"
	StatusError    CheckStatus = "error"
)

// HealthResponse is the JSON response structure
type HealthResponse struct {
	Status    CheckStatus            `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckDetail `json:"checks"`
	Uptime    string                 `json:"uptime,omitempty"`
}

// CheckDetail contains details about a specific health check
type CheckDetail struct {
	Status  CheckStatus `json:"status"`
	Message string      `json:"message,omitempty"`
}

var startTime = time.Now()

// Check performs all health checks and returns the aggregated status
func (c *Checker) Check(ctx context.Context) HealthResponse {
	checks := make(map[string]CheckDetail)
	overallStatus := StatusOK

	merge := func(name string, detail CheckDetail) {
		checks[name] = detail
		switch {
		case detail.Status == StatusError:
			overallStatus = StatusError
		case detail.Status == StatusDegraded && overallStatus == StatusOK:
			overallStatus = StatusDegraded
		}
	}

	snap, snapCheck := c.checkSnapshot()
	merge("snapshot", snapCheck)

	if snap != nil {
		merge("addresses", c.checkAddresses(snap))
	}

	if c.rpc != nil {
		merge("rpc_endpoints", c.checkRPC())
	}

	// Daemon execution (if in daemon mode)
	if c.interval > 0 {
		merge("daemon", c.checkDaemon())
	}

	return HealthResponse{
		Status:    overallStatus,
		Timestamp: c.now(),
		Checks:    checks,
		Uptime:    time.Since(startTime).Round(time.Second).String(),
	}
}

// checkSnapshot verifies the snapshot file is readable
func (c *Checker) checkSnapshot() (*snapshot.Snapshot, CheckDetail) {
	snap, err := c.store.Latest()
	if errors.Is(err, snapshot.ErrNoSnapshot) {
		return nil, CheckDetail{
			Status:  StatusDegraded,
			Message: "no snapshot written yet",
		}
	}
	if err != nil {
		slog.Error("Health check: snapshot unreadable", "path", c.store.Path(), "error", err)
		return nil, CheckDetail{
			Status:  StatusError,
			Message: "snapshot unreadable: " + err.Error(),
		}
	}

	return snap, CheckDetail{
		Status:  StatusOK,
		Message: fmt.Sprintf("last update %s", snap.Data.LastUpdate.Format(time.RFC3339)),
	}
}

// checkAddresses flags a snapshot where users could not be fetched
func (c *Checker) checkAddresses(snap *snapshot.Snapshot) CheckDetail {
	degraded := snap.Data.DegradedUsers
	total := snap.Data.TotalUsers

	if degraded == 0 {
		return CheckDetail{
			Status:  StatusOK,
			Message: fmt.Sprintf("%d users fetched", total),
		}
	}

	return CheckDetail{
		Status:  StatusDegraded,
		Message: fmt.Sprintf("%d/%d users degraded", degraded, total),
	}
}

// checkRPC verifies that at least one RPC endpoint is available
func (c *Checker) checkRPC() CheckDetail {
	endpoints := c.rpc.EndpointsHealth()
	healthyCount := 0
	for _, healthy := range endpoints {
		if healthy {
			healthyCount++
		}
	}

	switch {
	case healthyCount == 0:
		slog.Error("Health check: no healthy RPC endpoints")
		return CheckDetail{
			Status:  StatusError,
			Message: "no healthy RPC endpoints available",
		}
	case healthyCount == len(endpoints):
		return CheckDetail{
			Status:  StatusOK,
			Message: "all RPC endpoints healthy",
		}
	default:
		return CheckDetail{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("%d/%d RPC endpoints healthy", healthyCount, len(endpoints)),
		}
	}
}

// checkDaemon verifies the daemon is executing at expected intervals
func (c *Checker) checkDaemon() CheckDetail {
	if c.guard.Running() {
		return CheckDetail{
			Status:  StatusOK,
			Message: "poll in progress",
		}
	}

	last, ok := c.guard.LastRun()
	// If we've never run, that's OK (might be starting up)
	if !ok {
		return CheckDetail{
			Status:  StatusOK,
			Message: "daemon not yet executed (startup)",
		}
	}

	if !last.Succeeded() {
		return CheckDetail{
			Status:  StatusDegraded,
			Message: "last execution failed: " + last.Err.Error(),
		}
	}

	// Allow 2x interval grace period
	sinceLastRun := c.now().Sub(last.FinishedAt)
	graceThreshold := c.interval * 2

	if sinceLastRun > graceThreshold {
		return CheckDetail{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("no execution in %s (expected every %s)", sinceLastRun.Round(time.Second), c.interval),
		}
	}

	return CheckDetail{
		Status:  StatusOK,
		Message: fmt.Sprintf("last executed %s ago", sinceLastRun.Round(time.Second)),
	}
}

// Handler returns an http.HandlerFunc for the health endpoint
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := c.Check(r.Context())

		statusCode := http.StatusOK
		if status.Status == StatusError {
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)

		if err := json.NewEncoder(w).Encode(status); err != nil {
			slog.Error("Failed to encode health response", "error", err)
		}
	}
}
