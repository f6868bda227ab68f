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

// RunStreakPass rolls up the civil day containing now into each owner's streak and
// notifies owners whose streak was updated. Owners with nothing due that day keep
// their streak untouched. A rerun for the same day updates nothing and sends nothing.
func (e *Engine) RunStreakPass(ctx context.Context, now time.Time) (PassResult, error) {
	var res PassResult
	start, end := reminder.DayBounds(now, e.loc)
	day := reminder.DayKey(start, e.loc)
	rs, err := e.store.ListReminders(ctx, store.ReminderQuery{DueFrom: &start, DueBefore: &end})
	if err != nil {
		return res, fmt.Errorf("streak pass: list reminders: %w", err)
	}

	byOwner := reminder.CompletedAnyByOwner(rs)
	res.Evaluated = len(byOwner)
	var updated []models.StreakResult
	for _, userID := range sortedKeys(byOwner) {
		sr, applied, err := e.store.ApplyStreak(ctx, userID, day, byOwner[userID], now)
		if err != nil {
			return res, fmt.Errorf("streak pass: %w", err)
		}
		if !applied {
			slog.Debug("Engine.RunStreakPass: already applied", "userID", userID, "day", day)
			continue
		}
		res.Committed++
		updated = append(updated, sr)
	}

	if len(updated) > 0 {
		ids := make([]string, len(updated))
		for i, sr := range updated {
			ids[i] = sr.UserID
		}
		users, err := e.recipients(ctx, ids)
		if err != nil {
			return res, fmt.Errorf("streak pass: %w", err)
		}
		var msgs []models.Message
		for _, sr := range updated {
			u, ok := users[sr.UserID]
			if !ok {
				res.Skipped++
				continue
			}
			msgs = append(msgs, reminder.StreakMessage(u.PushToken, sr))
		}
		res.Dispatch = e.dispatcher.Dispatch(ctx, msgs)
	}

	slog.Info("Engine.RunStreakPass: done", "day", day, "owners", res.Evaluated, "updated", res.Committed, "sent", res.Dispatch.Sent)
	return res, nil
}
