// Package reminder holds the pure lifecycle rules for reminders: status resolution,
// interval firing, step propagation, streaks and message phrasing.
//
// Nothing in this package performs I/O. Passes in the engine package load state, call
// into these functions on private copies, and persist what changed.
package reminder

import (
	"time"

	"github.com/BTreeMap/JogPipe/internal/models"
)

// ResolveStatus derives a reminder's status. It is the only producer of status values.
//
// Without a due date there is nothing to judge against, so prev is kept (upcoming when
// empty), whether or not the reminder is completed.
// Completed reminders compare completedAt to dueDate; a missing completedAt counts as now.
// Open reminders are overdue once now passes dueDate. The terminal incomplete state is
// sticky while the reminder stays open and past due, so the nightly amnesty survives
// later writes; moving the due date into the future reopens it as upcoming.
func ResolveStatus(prev models.CompleteStatus, completed bool, completedAt, dueDate *time.Time, now time.Time) models.CompleteStatus {
	if dueDate == nil {
		if prev == "" {
			return models.StatusUpcoming
		}
		return prev
	}

	if completed {
		at := now
		if completedAt != nil {
			at = *completedAt
		}
		if !at.After(*dueDate) {
			return models.StatusCompletedOnTime
		}
		return models.StatusCompletedLate
	}

	if now.After(*dueDate) {
		if prev == models.StatusIncomplete {
			return models.StatusIncomplete
		}
		return models.StatusOverdue
	}
	return models.StatusUpcoming
}

// Resolve applies ResolveStatus to r in place and returns the previous and new status.
func Resolve(r *models.Reminder, now time.Time) (prev, next models.CompleteStatus) {
	prev = r.CompleteStatus
	next = ResolveStatus(prev, r.Completed, r.CompletedAt, r.DueDate, now)
	r.CompleteStatus = next
	return prev, next
}

// OverdueAfter reports whether an open upcoming reminder should be promoted by the
// near-real-time sweep, allowing lag for clock skew between writers.
func OverdueAfter(r *models.Reminder, now time.Time, lag time.Duration) bool {
	if r.Completed || r.DueDate == nil || r.CompleteStatus != models.StatusUpcoming {
		return false
	}
	return !r.DueDate.After(now.Add(-lag))
}

// MissedOn reports whether the nightly sweep should retire r as incomplete for the
// day [start, end).
func MissedOn(r *models.Reminder, start, end time.Time) bool {
	if r.Deleted || r.Completed || r.DueDate == nil {
		return false
	}
	if r.CompleteStatus != models.StatusOverdue && r.CompleteStatus != models.StatusUpcoming {
		return false
	}
	return !r.DueDate.Before(start) && r.DueDate.Before(end)
}
