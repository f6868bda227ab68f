// Package scheduler is the clock-driven trigger source for JogPipe.
//
// It enqueues one durable pass run per (kind, minute) on fixed cron cadences in the
// configured civil zone. Execution is left to the pass runner.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Enqueuer records a pass run for a slot. Enqueueing the same kind and slot twice
// must be a no-op.
type Enqueuer interface {
	EnqueuePass(ctx context.Context, kind string, slot time.Time) (id string, created bool, err error)
}

// Schedule binds a pass kind to a cron expression.
type Schedule struct {
	Kind string
	Spec string
}

// Scheduler provides cron-based pass scheduling.
type Scheduler struct {
	cron *cron.Cron
	loc  *time.Location
	now  func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the clock used to compute slots.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a cron scheduler evaluating expressions in loc. It is not
// started until Start is called.
func NewScheduler(loc *time.Location, opts ...Option) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	// Standard 5-field cron parser (min, hour, dom, month, dow) plus @descriptors, with recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cron.DefaultLogger)),
	)
	s := &Scheduler{cron: c, loc: loc, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// SchedulePasses registers one enqueue job per schedule.
func (s *Scheduler) SchedulePasses(ctx context.Context, q Enqueuer, schedules []Schedule) error {
	for _, sc := range schedules {
		sc := sc
		if err := s.AddJob(sc.Spec, func() { s.Enqueue(ctx, q, sc.Kind) }); err != nil {
			return fmt.Errorf("schedule %s pass %q: %w", sc.Kind, sc.Spec, err)
		}
		slog.Debug("Scheduler.SchedulePasses: scheduled", "kind", sc.Kind, "spec", sc.Spec)
	}
	return nil
}

// Slot returns the current minute in the scheduler's zone.
func (s *Scheduler) Slot() time.Time {
	return s.now().In(s.loc).Truncate(time.Minute)
}

// Enqueue records a run of kind for the current minute.
func (s *Scheduler) Enqueue(ctx context.Context, q Enqueuer, kind string) {
	slot := s.Slot()
	id, created, err := q.EnqueuePass(ctx, kind, slot)
	if err != nil {
		slog.Error("Scheduler.Enqueue: enqueue failed", "kind", kind, "slot", slot, "error", err)
		return
	}
	if !created {
		slog.Debug("Scheduler.Enqueue: slot already enqueued", "kind", kind, "slot", slot, "id", id)
		return
	}
	slog.Debug("Scheduler.Enqueue: enqueued", "kind", kind, "slot", slot, "id", id)
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Start starts the cron scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
