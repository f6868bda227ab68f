package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/JogPipe/internal/models"
	"github.com/BTreeMap/JogPipe/internal/reminder"
)

// RunSymptomCheckPass sends one check-in to each owner whose questionnaire is due and
// moves the due time forward. The move is conditional on the old due time, so
// overlapping passes send at most once.
func (e *Engine) RunSymptomCheckPass(ctx context.Context, now time.Time) (PassResult, error) {
	var res PassResult
	due, err := e.store.ListQuestionnairesDue(ctx, now)
	if err != nil {
		return res, fmt.Errorf("symptom pass: list due: %w", err)
	}
	if len(due) == 0 {
		return res, nil
	}
	res.Evaluated = len(due)

	ids := make([]string, len(due))
	for i, q := range due {
		ids[i] = q.UserID
	}
	users, err := e.recipients(ctx, ids)
	if err != nil {
		return res, fmt.Errorf("symptom pass: %w", err)
	}

	var msgs []models.Message
	for _, q := range due {
		u, ok := users[q.UserID]
		if !ok || q.IntervalDays <= 0 {
			res.Skipped++
			continue
		}
		next := q.DueAt
		for !next.After(now) {
			next = next.AddDate(0, 0, q.IntervalDays)
		}
		advanced, err := e.store.AdvanceQuestionnaire(ctx, q.UserID, q.DueAt, now, next)
		if err != nil {
			return res, fmt.Errorf("symptom pass: %w", err)
		}
		if !advanced {
			res.Conflicts++
			continue
		}
		res.Committed++
		msgs = append(msgs, reminder.SymptomMessage(u.PushToken, q.UserID))
	}

	res.Dispatch = e.dispatcher.Dispatch(ctx, msgs)
	slog.Info("Engine.RunSymptomCheckPass: done", "due", res.Evaluated, "sent", res.Dispatch.Sent, "skipped", res.Skipped)
	return res, nil
}
