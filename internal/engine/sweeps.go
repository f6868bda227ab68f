package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/JogPipe/internal/models"
	"github.com/BTreeMap/JogPipe/internal/reminder"
	"github.com/BTreeMap/JogPipe/internal/store"
)

// RunOverdueSweep promotes open upcoming reminders to overdue once they are past due
// by more than the configured lag.
func (e *Engine) RunOverdueSweep(ctx context.Context, now time.Time) (PassResult, error) {
	var res PassResult
	cutoff := now.Add(-e.overdueLag)
	before := cutoff.Add(time.Second)
	rs, err := e.store.ListReminders(ctx, store.ReminderQuery{
		OpenOnly:  true,
		Statuses:  []models.CompleteStatus{models.StatusUpcoming},
		DueBefore: &before,
	})
	if err != nil {
		return res, fmt.Errorf("overdue sweep: list reminders: %w", err)
	}

	var (
		ts   []store.Transition
		from []models.CompleteStatus
	)
	for i := range rs {
		res.Evaluated++
		if !reminder.OverdueAfter(&rs[i], now, e.overdueLag) {
			continue
		}
		c := rs[i].Clone()
		prev, next := reminder.Resolve(c, now)
		if prev == next {
			continue
		}
		reminder.PropagateSteps(c, prev, next, now)
		reminder.ResolveSteps(c, now)
		c.UpdatedAt = now
		ts = append(ts, e.transition(&rs[i], c))
		from = append(from, prev)
		slog.Debug("Engine.RunOverdueSweep: promoting", "userID", c.UserID, "reminderID", c.ID, "from", prev, "to", next)
	}

	conflicted, err := e.commit(ctx, KindOverdue, ts, from)
	if err != nil {
		return res, fmt.Errorf("overdue sweep: %w", err)
	}
	res.Committed = len(ts) - len(conflicted)
	res.Conflicts = len(conflicted)
	if res.Committed > 0 {
		slog.Info("Engine.RunOverdueSweep: done", "now", now, "promoted", res.Committed, "conflicts", res.Conflicts)
	}
	return res, nil
}

// RunNightlySweep retires every reminder that was due in the civil day before now and
// is still open as incomplete, counting it as missed. Focus mode does not exempt anyone.
func (e *Engine) RunNightlySweep(ctx context.Context, now time.Time) (PassResult, error) {
	var res PassResult
	start, end := reminder.PreviousDayBounds(now, e.loc)
	rs, err := e.store.ListReminders(ctx, store.ReminderQuery{
		OpenOnly:  true,
		Statuses:  []models.CompleteStatus{models.StatusUpcoming, models.StatusOverdue},
		DueFrom:   &start,
		DueBefore: &end,
	})
	if err != nil {
		return res, fmt.Errorf("nightly sweep: list reminders: %w", err)
	}

	var (
		ts   []store.Transition
		from []models.CompleteStatus
	)
	for i := range rs {
		res.Evaluated++
		if !reminder.MissedOn(&rs[i], start, end) {
			continue
		}
		c := rs[i].Clone()
		prev := c.CompleteStatus
		c.CompleteStatus = models.StatusIncomplete
		reminder.PropagateSteps(c, prev, models.StatusIncomplete, now)
		c.UpdatedAt = now
		ts = append(ts, e.transition(&rs[i], c))
		from = append(from, prev)
	}

	conflicted, err := e.commit(ctx, KindNightly, ts, from)
	if err != nil {
		return res, fmt.Errorf("nightly sweep: %w", err)
	}
	res.Committed = len(ts) - len(conflicted)
	res.Conflicts = len(conflicted)
	if n, err := e.store.PruneDedup(ctx, now.Add(-e.dedupTTL)); err != nil {
		slog.Error("Engine.RunNightlySweep: prune dedup failed", "error", err)
	} else if n > 0 {
		slog.Debug("Engine.RunNightlySweep: pruned dedup records", "count", n)
	}
	slog.Info("Engine.RunNightlySweep: done", "day", reminder.DayKey(start, e.loc), "missed", res.Committed, "conflicts", res.Conflicts)
	return res, nil
}
