package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRunInProgress is returned when a run is requested while another one is active
var ErrRunInProgress = errors.New("poll already in progress")

// RunInfo describes a finished run
type RunInfo struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

// Succeeded reports whether the run finished without error
func (r RunInfo) Succeeded() bool {
	return r.Err == nil
}

// Guard owns the "poll in progress" state. Scheduled ticks and manual
// triggers both go through TryRun, so at most one run is active and a
// request arriving mid-run is skipped without touching the active run.
type Guard struct {
	mu      sync.Mutex
	running bool
	started time.Time
	last    RunInfo
	hasLast bool
	onSkip  func()
	now     func() time.Time
}

// NewGuard creates an idle guard
func NewGuard() *Guard {
	return &Guard{now: time.Now}
}

// TryRun executes fn unless a run is already active
func (g *Guard) TryRun(ctx context.Context, fn JobFunc) error {
	g.mu.Lock()
	if g.running {
		onSkip := g.onSkip
		g.mu.Unlock()
		if onSkip != nil {
			onSkip()
		}
		return ErrRunInProgress
	}
	g.running = true
	g.started = g.now()
	g.mu.Unlock()

	err := fn(ctx)

	g.mu.Lock()
	g.last = RunInfo{StartedAt: g.started, FinishedAt: g.now(), Err: err}
	g.hasLast = true
	g.running = false
	g.mu.Unlock()

	return err
}

// OnSkip registers fn to be called whenever a run is refused
func (g *Guard) OnSkip(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onSkip = fn
}

// Running reports whether a run is active
func (g *Guard) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// LastRun returns the most recent finished run, false if none finished yet
func (g *Guard) LastRun() (RunInfo, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last, g.hasLast
}
