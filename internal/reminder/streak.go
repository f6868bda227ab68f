package reminder

import (
	"time"

	"github.com/BTreeMap/JogPipe/internal/models"
)

// NextStreak applies the streak law for one day. previous is the streak before the
// update, kept for the user-facing delta.
func NextStreak(current, best int, completedAny bool) (next, previous, nextBest int) {
	previous = current
	if completedAny {
		next = current + 1
	}
	nextBest = best
	if next > nextBest {
		nextBest = next
	}
	return next, previous, nextBest
}

// CompletedAnyByOwner groups the day's non-deleted reminders by owner and reports
// whether each owner completed at least one reminder or step.
func CompletedAnyByOwner(rs []models.Reminder) map[string]bool {
	out := make(map[string]bool)
	for i := range rs {
		r := &rs[i]
		if r.Deleted {
			continue
		}
		if _, ok := out[r.UserID]; !ok {
			out[r.UserID] = false
		}
		if r.CompletedUnits() > 0 {
			out[r.UserID] = true
		}
	}
	return out
}

// DayBounds returns the civil day containing t in loc as [start, end).
func DayBounds(t time.Time, loc *time.Location) (start, end time.Time) {
	lt := t.In(loc)
	start = time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	end = start.AddDate(0, 0, 1)
	return start, end
}

// PreviousDayBounds returns the civil day before the one containing t.
func PreviousDayBounds(t time.Time, loc *time.Location) (start, end time.Time) {
	todayStart, _ := DayBounds(t, loc)
	return todayStart.AddDate(0, 0, -1), todayStart
}

// DayKey formats the civil date of t in loc for per-day buckets.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(models.DayLayout)
}
