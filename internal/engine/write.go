package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/JogPipe/internal/models"
	"github.com/BTreeMap/JogPipe/internal/reminder"
	"github.com/BTreeMap/JogPipe/internal/store"
)

// ErrNegativeInterval rejects a negative check-in interval.
var ErrNegativeInterval = errors.New("questionnaire interval must not be negative")

// MergeWrite builds the document a client write produces on top of before, which is
// nil for a new reminder. Derived state is carried over: the status, and the fire
// counters of interval groups and steps whose schedule is unchanged.
func MergeWrite(before *models.Reminder, userID, id string, w models.ReminderWrite) *models.Reminder {
	after := &models.Reminder{
		UserID:          userID,
		ID:              id,
		Title:           w.Title,
		Description:     w.Description,
		Category:        w.Category,
		DueDate:         w.DueDate,
		Completed:       w.Completed,
		CompletedAt:     w.CompletedAt,
		ReminderEnabled: true,
		IsStepBased:     w.IsStepBased,
	}
	if after.Category == "" {
		after.Category = models.CategoryGeneral
	}
	if before != nil {
		after.CompleteStatus = before.CompleteStatus
		after.ReminderEnabled = before.ReminderEnabled
		after.Version = before.Version
	}
	if w.ReminderEnabled != nil {
		after.ReminderEnabled = *w.ReminderEnabled
	}
	if !after.Completed {
		after.CompletedAt = nil
	}

	var prevGroups []models.IntervalGroup
	if before != nil {
		prevGroups = before.ReminderIntervals
	}
	after.ReminderIntervals = mergeGroups(prevGroups, w.ReminderIntervals)

	prevSteps := map[string]models.Step{}
	if before != nil {
		for _, s := range before.Steps {
			prevSteps[s.ID] = s
		}
	}
	for _, sw := range w.Steps {
		s := models.Step{ID: sw.ID, Title: sw.Title, DueDate: sw.DueDate, Completed: sw.Completed}
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		if old, ok := prevSteps[s.ID]; ok {
			s.ReminderIntervals = old.ReminderIntervals
			if old.Completed == s.Completed {
				s.CompleteStatus = old.CompleteStatus
			}
		}
		after.Steps = append(after.Steps, s)
	}
	return after.Clone()
}

// mergeGroups takes the client's group schedules and keeps the counters of a group
// whose schedule matches the group at the same position before.
func mergeGroups(prev, next []models.IntervalGroup) []models.IntervalGroup {
	if len(next) == 0 {
		return nil
	}
	out := make([]models.IntervalGroup, len(next))
	for i, g := range next {
		t := g.Template()
		if t.CountOfIntervals == 0 {
			t.CountOfIntervals = len(t.Intervals)
		}
		if i < len(prev) && sameSchedule(prev[i], t) {
			t.CurrentInterval = prev[i].CurrentInterval
			t.HasTriggered = prev[i].HasTriggered
		}
		out[i] = t
	}
	return out
}

func sameSchedule(a, b models.IntervalGroup) bool {
	if a.CountOfIntervals != b.CountOfIntervals || len(a.Intervals) != len(b.Intervals) {
		return false
	}
	for i := range a.Intervals {
		if a.Intervals[i] != b.Intervals[i] {
			return false
		}
	}
	return true
}

// OnReminderWrite runs the write event: it re-arms intervals if the due date moved,
// resolves the status, applies the step edges and commits the reminder with its
// counter moves in one transaction. It returns store.ErrConflict if before is stale.
func (e *Engine) OnReminderWrite(ctx context.Context, before, after *models.Reminder, now time.Time) (*models.Reminder, error) {
	if err := after.Validate(); err != nil {
		return nil, err
	}
	after = after.Clone()
	if before != nil {
		after.Version = before.Version
	} else {
		after.Version = 0
	}

	reminder.ResetIntervals(before, after)
	prev, next := reminder.Resolve(after, now)
	reminder.PropagateSteps(after, prev, next, now)
	reminder.ResolveSteps(after, now)
	after.UpdatedAt = now

	from := models.CompleteStatus("")
	if before != nil {
		from = before.CompleteStatus
	}
	conflicted, err := e.commit(ctx, "write", []store.Transition{e.transition(before, after)}, []models.CompleteStatus{from})
	if err != nil {
		return nil, fmt.Errorf("write %s/%s: %w", after.UserID, after.ID, err)
	}
	if conflicted[keyOf(after)] {
		return nil, fmt.Errorf("write %s/%s: %w", after.UserID, after.ID, store.ErrConflict)
	}
	slog.Debug("Engine.OnReminderWrite: committed", "userID", after.UserID, "reminderID", after.ID,
		"from", from, "to", after.CompleteStatus, "version", after.Version)
	return after, nil
}

// loadForWrite returns the current document, or nil when it does not exist.
func (e *Engine) loadForWrite(ctx context.Context, userID, id string) (*models.Reminder, error) {
	before, err := e.store.GetReminder(ctx, userID, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return before, nil
}

// PutReminder creates or replaces a reminder from a client write.
func (e *Engine) PutReminder(ctx context.Context, userID, id string, w models.ReminderWrite, now time.Time) (*models.Reminder, error) {
	before, err := e.loadForWrite(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	after := MergeWrite(before, userID, id, w)
	stampCompletion(before, after, now)
	return e.OnReminderWrite(ctx, before, after, now)
}

// stampCompletion fills in a missing completedAt on a completed write: an earlier
// completion keeps its time, a new one is stamped with now.
func stampCompletion(before, after *models.Reminder, now time.Time) {
	if !after.Completed || after.CompletedAt != nil {
		return
	}
	if before != nil && before.Completed && before.CompletedAt != nil {
		at := *before.CompletedAt
		after.CompletedAt = &at
		return
	}
	at := now
	after.CompletedAt = &at
}

// CompleteReminder sets or clears completion. A completion without a timestamp is
// stamped with now.
func (e *Engine) CompleteReminder(ctx context.Context, userID, id string, w models.CompletionWrite, now time.Time) (*models.Reminder, error) {
	before, err := e.store.GetReminder(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if before.Deleted {
		return nil, store.ErrNotFound
	}
	after := before.Clone()
	after.Completed = w.Completed
	after.CompletedAt = nil
	if w.Completed {
		at := now
		if w.CompletedAt != nil {
			at = *w.CompletedAt
		}
		after.CompletedAt = &at
	}
	return e.OnReminderWrite(ctx, before, after, now)
}

// DeleteReminder soft-deletes a reminder. Its counters are kept.
func (e *Engine) DeleteReminder(ctx context.Context, userID, id string, now time.Time) error {
	before, err := e.store.GetReminder(ctx, userID, id)
	if err != nil {
		return err
	}
	if before.Deleted {
		return nil
	}
	after := before.Clone()
	after.Deleted = true
	_, err = e.OnReminderWrite(ctx, before, after, now)
	return err
}

// UpdateUser applies a preferences write and, when the check-in interval is set,
// schedules the next symptom check-in.
func (e *Engine) UpdateUser(ctx context.Context, userID string, w models.UserWrite, now time.Time) (*models.User, error) {
	if w.QuestionnaireIntervalDays != nil && *w.QuestionnaireIntervalDays < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeInterval, *w.QuestionnaireIntervalDays)
	}
	u := models.User{UserID: userID}
	current, err := e.store.GetUser(ctx, userID)
	switch {
	case err == nil:
		u = *current
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}
	if w.PushToken != nil {
		u.PushToken = *w.PushToken
	}
	if w.FocusMode != nil {
		u.FocusMode = *w.FocusMode
	}
	u.UpdatedAt = now
	if err := e.store.UpsertUser(ctx, u); err != nil {
		return nil, err
	}

	if w.QuestionnaireIntervalDays != nil {
		days := *w.QuestionnaireIntervalDays
		var next *time.Time
		if days > 0 {
			t := now.AddDate(0, 0, days)
			next = &t
		}
		if err := e.store.ScheduleQuestionnaire(ctx, userID, days, next); err != nil {
			return nil, err
		}
	}
	return &u, nil
}
