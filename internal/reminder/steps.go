package reminder

import (
	"time"

	"github.com/BTreeMap/JogPipe/internal/models"
)

// PropagateSteps keeps a step-based reminder's steps consistent with a parent
// transition from prev to next. It reports whether any step changed.
//
// Entering incomplete resets every step. Entering a completed state completes every
// step that has a due date, judging each step against the parent's completion instant.
func PropagateSteps(r *models.Reminder, prev, next models.CompleteStatus, now time.Time) bool {
	if len(r.Steps) == 0 || prev == next {
		return false
	}

	switch {
	case next == models.StatusIncomplete:
		for i := range r.Steps {
			r.Steps[i].Completed = false
			r.Steps[i].CompleteStatus = models.StatusIncomplete
		}
		return true

	case next.IsCompleted():
		at := now
		if r.CompletedAt != nil {
			at = *r.CompletedAt
		}
		changed := false
		for i := range r.Steps {
			s := &r.Steps[i]
			if s.DueDate == nil {
				continue
			}
			status := models.StatusCompletedOnTime
			if at.After(*s.DueDate) {
				status = models.StatusCompletedLate
			}
			s.Completed = true
			s.CompleteStatus = status
			changed = true
		}
		return changed
	}
	return false
}

// ResolveSteps derives each step's own status from its completion flag and due date,
// as the write path does for steps edited individually.
func ResolveSteps(r *models.Reminder, now time.Time) bool {
	changed := false
	for i := range r.Steps {
		s := &r.Steps[i]
		if s.DueDate == nil {
			continue
		}
		// Open steps of a missed reminder stay incomplete until the reminder reopens.
		if r.CompleteStatus == models.StatusIncomplete && !s.Completed {
			continue
		}
		var completedAt *time.Time
		if s.Completed {
			completedAt = &now
		}
		next := ResolveStatus(s.CompleteStatus, s.Completed, completedAt, s.DueDate, now)
		if s.Completed && s.CompleteStatus.IsCompleted() {
			// A step keeps the verdict it got when it was completed.
			next = s.CompleteStatus
		}
		if next != s.CompleteStatus {
			s.CompleteStatus = next
			changed = true
		}
	}
	return changed
}
