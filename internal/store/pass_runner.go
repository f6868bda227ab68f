// Package store provides the PassRunner for executing durable pass runs.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// PassHandler executes one pass. slot is the scheduled minute and is used as the
// pass's notion of now.
type PassHandler func(ctx context.Context, slot time.Time) error

// PassRunner periodically claims due pass runs from the database and dispatches them
// to registered handlers. Failed runs are recorded and never retried.
type PassRunner struct {
	repo           PassRepo
	handlers       map[string]PassHandler
	mu             sync.RWMutex
	pollInterval   time.Duration
	staleThreshold time.Duration
	maxLateness    time.Duration
	claimLimit     int
	now            func() time.Time
}

// RunnerOption configures a PassRunner.
type RunnerOption func(*PassRunner)

// WithStaleThreshold sets how long a run may stay running before startup recovery requeues it.
func WithStaleThreshold(d time.Duration) RunnerOption {
	return func(r *PassRunner) {
		if d > 0 {
			r.staleThreshold = d
		}
	}
}

// WithMaxLateness sets how far behind its slot a queued run may be executed.
func WithMaxLateness(d time.Duration) RunnerOption {
	return func(r *PassRunner) {
		if d > 0 {
			r.maxLateness = d
		}
	}
}

// WithClaimLimit sets how many runs one poll claims.
func WithClaimLimit(n int) RunnerOption {
	return func(r *PassRunner) {
		if n > 0 {
			r.claimLimit = n
		}
	}
}

// WithClock overrides the runner's clock.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *PassRunner) {
		if now != nil {
			r.now = now
		}
	}
}

// NewPassRunner creates a new PassRunner.
func NewPassRunner(repo PassRepo, pollInterval time.Duration, opts ...RunnerOption) *PassRunner {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	r := &PassRunner{
		repo:           repo,
		handlers:       make(map[string]PassHandler),
		pollInterval:   pollInterval,
		staleThreshold: 5 * time.Minute,
		maxLateness:    10 * time.Minute,
		claimLimit:     10,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterHandler registers a handler for a given pass kind.
func (r *PassRunner) RegisterHandler(kind string, handler PassHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = handler
	slog.Debug("PassRunner.RegisterHandler", "kind", kind)
}

// RecoverStalePasses requeues runs that were running when the process crashed and
// cancels queued runs that are too far behind their slot. Should be called once at startup.
func (r *PassRunner) RecoverStalePasses(ctx context.Context) error {
	now := r.now()
	n, err := r.repo.RequeueStalePasses(ctx, now.Add(-r.staleThreshold))
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("PassRunner.RecoverStalePasses: requeued stale runs", "count", n)
	}
	if _, err := r.repo.CancelLatePasses(ctx, now.Add(-r.maxLateness)); err != nil {
		return err
	}
	return nil
}

// Run starts the polling loop. It blocks until the context is cancelled.
func (r *PassRunner) Run(ctx context.Context) {
	slog.Info("PassRunner.Run: starting pass runner", "pollInterval", r.pollInterval)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("PassRunner.Run: stopping")
			return
		case <-ticker.C:
			r.Poll(ctx)
		}
	}
}

// Poll claims and executes due runs once. It returns the number of runs executed.
func (r *PassRunner) Poll(ctx context.Context) int {
	now := r.now()
	if _, err := r.repo.CancelLatePasses(ctx, now.Add(-r.maxLateness)); err != nil {
		slog.Error("PassRunner.Poll: cancel late runs failed", "error", err)
	}
	runs, err := r.repo.ClaimDuePasses(ctx, now, r.claimLimit)
	if err != nil {
		slog.Error("PassRunner.Poll: claim failed", "error", err)
		return 0
	}

	executed := 0
	for _, run := range runs {
		r.mu.RLock()
		handler, ok := r.handlers[run.Kind]
		r.mu.RUnlock()

		if !ok {
			slog.Warn("PassRunner.Poll: no handler for pass kind", "kind", run.Kind, "id", run.ID)
			if err := r.repo.FailPass(ctx, run.ID, "no handler registered for kind: "+run.Kind); err != nil {
				slog.Error("PassRunner.Poll: fail run error", "id", run.ID, "error", err)
			}
			continue
		}

		slog.Debug("PassRunner.Poll: executing pass", "id", run.ID, "kind", run.Kind, "slot", run.SlotAt)
		executed++
		if err := r.execute(ctx, handler, run); err != nil {
			slog.Error("PassRunner.Poll: pass failed", "id", run.ID, "kind", run.Kind, "error", err)
			if err := r.repo.FailPass(ctx, run.ID, err.Error()); err != nil {
				slog.Error("PassRunner.Poll: fail run error", "id", run.ID, "error", err)
			}
			continue
		}
		if err := r.repo.CompletePass(ctx, run.ID); err != nil {
			slog.Error("PassRunner.Poll: complete run error", "id", run.ID, "error", err)
		}
		slog.Debug("PassRunner.Poll: pass completed", "id", run.ID, "kind", run.Kind)
	}
	return executed
}

// execute runs one handler, converting a panic into an error so the loop survives.
func (r *PassRunner) execute(ctx context.Context, handler PassHandler, run PassRun) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("pass %s panicked: %v", run.Kind, p)
		}
	}()
	return handler(ctx, run.SlotAt)
}
