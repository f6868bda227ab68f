package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BTreeMap/JogPipe/internal/metrics"
	"github.com/BTreeMap/JogPipe/internal/models"
	"github.com/BTreeMap/JogPipe/internal/reminder"
	"github.com/BTreeMap/JogPipe/internal/store"
)

type evaluated struct {
	r    *models.Reminder
	ev   reminder.Evaluation
	hits []reminder.DueNowHit
}

// RunNotificationPass fires lead-time intervals and due-now notifications for the
// minute containing now.
func (e *Engine) RunNotificationPass(ctx context.Context, now time.Time) (PassResult, error) {
	var res PassResult
	rs, err := e.store.ListReminders(ctx, store.ReminderQuery{OpenOnly: true, EnabledOnly: true})
	if err != nil {
		return res, fmt.Errorf("notification pass: list reminders: %w", err)
	}

	owners := make(map[string]bool)
	for i := range rs {
		owners[rs[i].UserID] = true
	}
	users, err := e.recipients(ctx, sortedKeys(owners))
	if err != nil {
		return res, fmt.Errorf("notification pass: %w", err)
	}

	var eligible []*models.Reminder
	for i := range rs {
		if _, ok := users[rs[i].UserID]; !ok {
			res.Skipped++
			continue
		}
		eligible = append(eligible, &rs[i])
	}

	results := make([]evaluated, len(eligible))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, r := range eligible {
		i, r := i, r
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c := r.Clone()
			results[i] = evaluated{r: c, ev: reminder.EvaluateIntervals(c, now), hits: reminder.DueNow(c, now)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, fmt.Errorf("notification pass: evaluate: %w", err)
	}
	res.Evaluated = len(results)

	var (
		ts   []store.Transition
		from []models.CompleteStatus
	)
	for _, ev := range results {
		if ev.ev.Changed {
			ts = append(ts, store.Transition{Reminder: ev.r})
			from = append(from, ev.r.CompleteStatus)
		}
	}
	conflicted, err := e.commit(ctx, KindNotify, ts, from)
	if err != nil {
		return res, fmt.Errorf("notification pass: %w", err)
	}
	res.Committed = len(ts) - len(conflicted)
	res.Conflicts = len(conflicted)

	var msgs []models.Message
	for _, ev := range results {
		if conflicted[keyOf(ev.r)] {
			continue
		}
		to := users[ev.r.UserID].PushToken
		for _, f := range ev.ev.Firings {
			msgs = append(msgs, reminder.LeadMessage(to, ev.r, f))
			metrics.IntervalFiringsTotal.Inc()
		}
		for _, h := range ev.hits {
			first, err := e.store.RecordOnce(ctx, h.DedupeKey(ev.r.ID), ev.r.UserID)
			if err != nil {
				slog.Error("Engine.RunNotificationPass: due-now dedup failed, skipping", "userID", ev.r.UserID, "reminderID", ev.r.ID, "error", err)
				continue
			}
			if !first {
				slog.Debug("Engine.RunNotificationPass: due-now already sent", "userID", ev.r.UserID, "reminderID", ev.r.ID, "stepID", h.StepID)
				continue
			}
			msgs = append(msgs, reminder.DueMessage(to, ev.r, h))
		}
	}

	res.Dispatch = e.dispatcher.Dispatch(ctx, msgs)
	slog.Info("Engine.RunNotificationPass: done", "now", now, "evaluated", res.Evaluated, "committed", res.Committed,
		"conflicts", res.Conflicts, "skipped", res.Skipped, "sent", res.Dispatch.Sent, "failed", res.Dispatch.Failed)
	return res, nil
}
