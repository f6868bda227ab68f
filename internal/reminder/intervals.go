package reminder

import (
	"fmt"
	"math"
	"time"

	"github.com/BTreeMap/JogPipe/internal/models"
)

// PollSlack is the extra lead subtracted for non-step reminders to absorb the
// minute-granularity polling cadence.
const PollSlack = time.Minute

// Firing is one lead-time interval that matched the current minute.
type Firing struct {
	// StepIndex is -1 for a top-level reminder firing.
	StepIndex int
	StepID    string
	Group     int
	Minutes   int
	NotifyAt  time.Time
}

// Evaluation is the result of running the interval tracker over one reminder.
type Evaluation struct {
	Firings []Firing
	// Changed is true when interval state must be written back, either because a
	// group fired or because step groups were seeded.
	Changed bool
}

// matchesMinute reports whether now is in the one-minute window starting at notifyAt.
// Elapsed time is floored, so instants before notifyAt never match.
func matchesMinute(notifyAt, now time.Time) bool {
	return math.Floor(now.Sub(notifyAt).Minutes()) == 0
}

// fire walks one group and spends budget for every interval matching now. Groups
// that already triggered are never touched.
func fire(g *models.IntervalGroup, due time.Time, slack time.Duration, now time.Time, out func(minutes int, notifyAt time.Time)) {
	if g.HasTriggered {
		return
	}
	for _, m := range g.Intervals {
		notifyAt := due.Add(-time.Duration(m)*time.Minute - slack)
		if !matchesMinute(notifyAt, now) {
			continue
		}
		if g.CurrentInterval >= g.CountOfIntervals {
			continue
		}
		g.CurrentInterval++
		if g.CurrentInterval == g.CountOfIntervals {
			g.HasTriggered = true
		}
		out(m, notifyAt)
	}
}

// EvaluateIntervals decides which lead-time intervals fire for r at now, mutating the
// interval counters on r. Callers pass a private copy and persist it when Changed.
//
// Step-based reminders only fire at step level, against each step's own due date and
// without slack; their top-level groups act as templates for the step groups.
func EvaluateIntervals(r *models.Reminder, now time.Time) Evaluation {
	var ev Evaluation
	if r.Deleted || !r.ReminderEnabled || r.Completed {
		return ev
	}

	if !r.IsStepBased {
		if r.DueDate == nil {
			return ev
		}
		for gi := range r.ReminderIntervals {
			fire(&r.ReminderIntervals[gi], *r.DueDate, PollSlack, now, func(m int, at time.Time) {
				ev.Firings = append(ev.Firings, Firing{StepIndex: -1, Group: gi, Minutes: m, NotifyAt: at})
			})
		}
		ev.Changed = len(ev.Firings) > 0
		return ev
	}

	for si := range r.Steps {
		step := &r.Steps[si]
		if step.Completed || step.DueDate == nil {
			continue
		}
		if len(step.ReminderIntervals) == 0 && len(r.ReminderIntervals) > 0 {
			step.ReminderIntervals = make([]models.IntervalGroup, len(r.ReminderIntervals))
			for gi, g := range r.ReminderIntervals {
				step.ReminderIntervals[gi] = g.Template()
			}
			ev.Changed = true
		}
		for gi := range step.ReminderIntervals {
			fire(&step.ReminderIntervals[gi], *step.DueDate, 0, now, func(m int, at time.Time) {
				ev.Firings = append(ev.Firings, Firing{StepIndex: si, StepID: step.ID, Group: gi, Minutes: m, NotifyAt: at})
			})
		}
	}
	if len(ev.Firings) > 0 {
		ev.Changed = true
	}
	return ev
}

// DueNowHit is a reminder or step whose due minute is the current minute.
type DueNowHit struct {
	StepIndex int
	StepID    string
	DueDate   time.Time
}

// DedupeKey identifies the one-shot due-now notification for this hit.
func (h DueNowHit) DedupeKey(reminderID string) string {
	return fmt.Sprintf("due:%s:%s:%d", reminderID, h.StepID, h.DueDate.Unix()/60)
}

// DueNow returns the units of r that fall due in the current minute. It never reads
// or spends interval budget.
func DueNow(r *models.Reminder, now time.Time) []DueNowHit {
	if r.Deleted || !r.ReminderEnabled || r.Completed {
		return nil
	}
	minute := now.Truncate(time.Minute)
	if !r.IsStepBased {
		if r.DueDate != nil && r.DueDate.Truncate(time.Minute).Equal(minute) {
			return []DueNowHit{{StepIndex: -1, DueDate: *r.DueDate}}
		}
		return nil
	}
	var hits []DueNowHit
	for si, s := range r.Steps {
		if s.Completed || s.DueDate == nil {
			continue
		}
		if s.DueDate.Truncate(time.Minute).Equal(minute) {
			hits = append(hits, DueNowHit{StepIndex: si, StepID: s.ID, DueDate: *s.DueDate})
		}
	}
	return hits
}

// ResetIntervals re-arms interval groups whose due date moved between before and after.
// A new or rescheduled step has its groups cleared so they are reseeded from the parent.
func ResetIntervals(before, after *models.Reminder) bool {
	changed := false
	if before == nil || !sameInstant(before.DueDate, after.DueDate) {
		for gi := range after.ReminderIntervals {
			g := &after.ReminderIntervals[gi]
			if g.CurrentInterval != 0 || g.HasTriggered {
				g.CurrentInterval = 0
				g.HasTriggered = false
				changed = true
			}
		}
	}

	prevSteps := map[string]*models.Step{}
	if before != nil {
		for i := range before.Steps {
			prevSteps[before.Steps[i].ID] = &before.Steps[i]
		}
	}
	for si := range after.Steps {
		s := &after.Steps[si]
		old, ok := prevSteps[s.ID]
		if ok && sameInstant(old.DueDate, s.DueDate) {
			continue
		}
		if len(s.ReminderIntervals) > 0 {
			s.ReminderIntervals = nil
			changed = true
		}
	}
	return changed
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
