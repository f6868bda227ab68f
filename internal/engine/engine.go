// Package engine runs the reminder lifecycle passes against the store.
//
// Each pass loads the reminders it needs, evaluates them on private copies with the
// pure rules in the reminder package, commits every changed reminder in one batch and
// only then hands the resulting messages to the dispatcher. A commit failure aborts the
// pass and discards its messages; a version conflict drops only that reminder's messages.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/BTreeMap/JogPipe/internal/dispatch"
	"github.com/BTreeMap/JogPipe/internal/metrics"
	"github.com/BTreeMap/JogPipe/internal/models"
	"github.com/BTreeMap/JogPipe/internal/reminder"
	"github.com/BTreeMap/JogPipe/internal/store"
)

// Pass kinds, as enqueued by the scheduler.
const (
	KindNotify  = "notify"
	KindOverdue = "overdue"
	KindNightly = "nightly"
	KindStreak  = "streak"
	KindSymptom = "symptom"
)

// Kinds lists every pass kind.
func Kinds() []string {
	return []string{KindNotify, KindOverdue, KindNightly, KindStreak, KindSymptom}
}

// DefaultOverdueLag is how far past due a reminder must be before the sweep promotes it.
const DefaultOverdueLag = 60 * time.Second

// PassResult summarizes one pass.
type PassResult struct {
	Evaluated int             `json:"evaluated"`
	Committed int             `json:"committed"`
	Conflicts int             `json:"conflicts"`
	Skipped   int             `json:"skipped"`
	Dispatch  dispatch.Result `json:"dispatch"`
}

// Engine owns the pass implementations and the write event.
type Engine struct {
	store      store.Store
	dispatcher *dispatch.Dispatcher
	loc        *time.Location
	workers    int
	overdueLag time.Duration
	dedupTTL   time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocation sets the civil zone used for day boundaries and daily buckets.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithWorkers bounds per-reminder evaluation fan-out.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithOverdueLag sets the overdue sweep lag.
func WithOverdueLag(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.overdueLag = d
		}
	}
}

// WithDedupRetention sets how long due-now dedup records are kept. The nightly sweep
// prunes older ones.
func WithDedupRetention(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.dedupTTL = d
		}
	}
}

// New creates an Engine.
func New(st store.Store, d *dispatch.Dispatcher, opts ...Option) *Engine {
	e := &Engine{
		store:      st,
		dispatcher: d,
		loc:        time.Local,
		workers:    8,
		overdueLag: DefaultOverdueLag,
		dedupTTL:   72 * time.Hour,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Location returns the configured civil zone.
func (e *Engine) Location() *time.Location { return e.loc }

// RunPass runs the pass of the given kind with now as its clock.
func (e *Engine) RunPass(ctx context.Context, kind string, now time.Time) (PassResult, error) {
	start := time.Now()
	var (
		res PassResult
		err error
	)
	switch kind {
	case KindNotify:
		res, err = e.RunNotificationPass(ctx, now)
	case KindOverdue:
		res, err = e.RunOverdueSweep(ctx, now)
	case KindNightly:
		res, err = e.RunNightlySweep(ctx, now)
	case KindStreak:
		res, err = e.RunStreakPass(ctx, now)
	case KindSymptom:
		res, err = e.RunSymptomCheckPass(ctx, now)
	default:
		return res, fmt.Errorf("unknown pass kind %q", kind)
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.PassRunsTotal.WithLabelValues(kind, outcome).Inc()
	metrics.PassDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	return res, err
}

// RegisterPasses registers a handler for every pass kind on runner.
func (e *Engine) RegisterPasses(runner *store.PassRunner) {
	for _, kind := range Kinds() {
		kind := kind
		runner.RegisterHandler(kind, func(ctx context.Context, slot time.Time) error {
			_, err := e.RunPass(ctx, kind, slot)
			return err
		})
	}
}

// recipients returns the owners among ids that may receive notifications: known,
// not in focus mode and with a push token.
func (e *Engine) recipients(ctx context.Context, ids []string) (map[string]models.User, error) {
	users, err := e.store.GetUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	out := make(map[string]models.User, len(users))
	for _, id := range ids {
		u, ok := users[id]
		switch {
		case !ok || u.PushToken == "":
			slog.Warn("Engine.recipients: user has no push token, skipping", "userID", id)
		case u.FocusMode:
			slog.Debug("Engine.recipients: user in focus mode, skipping", "userID", id)
		default:
			out[id] = u
		}
	}
	return out, nil
}

// commit writes ts as one batch and returns the keys that lost a version race.
// from holds each reminder's status before the pass, for transition metrics.
func (e *Engine) commit(ctx context.Context, kind string, ts []store.Transition, from []models.CompleteStatus) (map[store.ReminderKey]bool, error) {
	conflicted := make(map[store.ReminderKey]bool)
	if len(ts) == 0 {
		return conflicted, nil
	}
	keys, err := e.store.CommitTransitions(ctx, ts)
	if err != nil {
		return nil, fmt.Errorf("commit %d reminders: %w", len(ts), err)
	}
	for _, k := range keys {
		conflicted[k] = true
		metrics.VersionConflictsTotal.WithLabelValues(kind).Inc()
		slog.Warn("Engine.commit: version conflict, dropping reminder", "pass", kind, "userID", k.UserID, "reminderID", k.ID)
	}
	for i, t := range ts {
		to := t.Reminder.CompleteStatus
		if conflicted[keyOf(t.Reminder)] || from[i] == to {
			continue
		}
		metrics.StatusTransitionsTotal.WithLabelValues(string(from[i]), string(to)).Inc()
	}
	return conflicted, nil
}

func keyOf(r *models.Reminder) store.ReminderKey {
	return store.ReminderKey{UserID: r.UserID, ID: r.ID}
}

// dayOf keys a reminder's daily bucket by its local due date.
func (e *Engine) dayOf(r *models.Reminder) string {
	if r == nil || r.DueDate == nil {
		return ""
	}
	return reminder.DayKey(*r.DueDate, e.loc)
}

// transition builds the store write for a reminder moving from before to after.
// before may be nil for a new reminder.
func (e *Engine) transition(before, after *models.Reminder) store.Transition {
	t := store.Transition{Reminder: after}
	inc := store.BucketDelta{UserID: after.UserID, Bucket: models.BucketFor(after.CompleteStatus), Day: e.dayOf(after)}
	if before == nil {
		t.Inc = inc
		return t
	}
	dec := store.BucketDelta{UserID: before.UserID, Bucket: models.BucketFor(before.CompleteStatus), Day: e.dayOf(before)}
	if inc == dec {
		return t
	}
	t.Inc = inc
	if before.UserID == after.UserID {
		t.Dec = dec
	}
	return t
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
