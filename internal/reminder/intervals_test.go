package reminder

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/JogPipe/internal/models"
)

func leadReminder() *models.Reminder {
	return &models.Reminder{
		UserID:          "u1",
		ID:              "r1",
		Title:           "Morning run",
		DueDate:         ptr(at(14, 0)),
		ReminderEnabled: true,
		CompleteStatus:  models.StatusUpcoming,
		ReminderIntervals: []models.IntervalGroup{
			{Intervals: []int{15, 5}, CountOfIntervals: 2},
		},
	}
}

func TestEvaluateIntervals_LeadTimeScenario(t *testing.T) {
	r := leadReminder()

	ev := EvaluateIntervals(r, at(13, 44))
	require.Len(t, ev.Firings, 1)
	assert.Equal(t, 15, ev.Firings[0].Minutes)
	assert.Equal(t, -1, ev.Firings[0].StepIndex)
	assert.True(t, ev.Changed)
	assert.Equal(t, 1, r.ReminderIntervals[0].CurrentInterval)
	assert.False(t, r.ReminderIntervals[0].HasTriggered)

	ev = EvaluateIntervals(r, at(13, 54))
	require.Len(t, ev.Firings, 1)
	assert.Equal(t, 5, ev.Firings[0].Minutes)
	assert.Equal(t, 2, r.ReminderIntervals[0].CurrentInterval)
	assert.True(t, r.ReminderIntervals[0].HasTriggered)

	ev = EvaluateIntervals(r, at(13, 55))
	assert.Empty(t, ev.Firings)
	assert.False(t, ev.Changed)
	assert.Equal(t, 2, r.ReminderIntervals[0].CurrentInterval)
}

func TestEvaluateIntervals_SecondsWithinMinuteStillMatch(t *testing.T) {
	r := leadReminder()
	ev := EvaluateIntervals(r, at(13, 44).Add(59*time.Second))
	assert.Len(t, ev.Firings, 1)

	r = leadReminder()
	ev = EvaluateIntervals(r, at(13, 44).Add(-time.Second))
	assert.Empty(t, ev.Firings, "an instant before notifyAt never matches")
}

func TestEvaluateIntervals_RepeatedPassSameMinuteSpendsBudgetOnce(t *testing.T) {
	r := leadReminder()
	r.ReminderIntervals[0].CountOfIntervals = 1

	ev := EvaluateIntervals(r, at(13, 44))
	require.Len(t, ev.Firings, 1)
	assert.True(t, r.ReminderIntervals[0].HasTriggered)

	ev = EvaluateIntervals(r, at(13, 44))
	assert.Empty(t, ev.Firings)
	assert.Equal(t, 1, r.ReminderIntervals[0].CurrentInterval)
}

func TestEvaluateIntervals_MonotonicAcrossDay(t *testing.T) {
	r := leadReminder()
	r.ReminderIntervals = append(r.ReminderIntervals, models.IntervalGroup{Intervals: []int{60, 30, 10}, CountOfIntervals: 2})

	prev := make([]int, len(r.ReminderIntervals))
	for now := at(12, 0); now.Before(at(15, 0)); now = now.Add(time.Minute) {
		EvaluateIntervals(r, now)
		for gi, g := range r.ReminderIntervals {
			require.GreaterOrEqual(t, g.CurrentInterval, prev[gi])
			require.LessOrEqual(t, g.CurrentInterval, g.CountOfIntervals)
			prev[gi] = g.CurrentInterval
		}
	}
	assert.True(t, r.ReminderIntervals[1].HasTriggered)
	assert.Equal(t, 2, r.ReminderIntervals[1].CurrentInterval)
}

func TestEvaluateIntervals_Skips(t *testing.T) {
	for name, mutate := range map[string]func(r *models.Reminder){
		"deleted":   func(r *models.Reminder) { r.Deleted = true },
		"disabled":  func(r *models.Reminder) { r.ReminderEnabled = false },
		"completed": func(r *models.Reminder) { r.Completed = true },
		"no due":    func(r *models.Reminder) { r.DueDate = nil },
		"triggered": func(r *models.Reminder) { r.ReminderIntervals[0].HasTriggered = true },
	} {
		t.Run(name, func(t *testing.T) {
			r := leadReminder()
			mutate(r)
			ev := EvaluateIntervals(r, at(13, 44))
			assert.Empty(t, ev.Firings)
			assert.False(t, ev.Changed)
		})
	}
}

func stepReminder() *models.Reminder {
	return &models.Reminder{
		UserID:          "u1",
		ID:              "r2",
		Title:           "Vitamins",
		Category:        models.CategoryMedication,
		DueDate:         ptr(at(20, 0)),
		ReminderEnabled: true,
		IsStepBased:     true,
		CompleteStatus:  models.StatusUpcoming,
		ReminderIntervals: []models.IntervalGroup{
			{Intervals: []int{10}, CountOfIntervals: 1},
		},
		Steps: []models.Step{
			{ID: "s1", Title: "morning", DueDate: ptr(at(8, 0))},
			{ID: "s2", Title: "noon", DueDate: ptr(at(12, 0))},
			{ID: "s3", Title: "whenever"},
		},
	}
}

func TestEvaluateIntervals_StepBased(t *testing.T) {
	r := stepReminder()

	// No slack at step level: 8:00 - 10m.
	ev := EvaluateIntervals(r, at(7, 50))
	require.Len(t, ev.Firings, 1)
	f := ev.Firings[0]
	assert.Equal(t, 0, f.StepIndex)
	assert.Equal(t, "s1", f.StepID)
	assert.Equal(t, 10, f.Minutes)
	assert.True(t, ev.Changed)

	// Step groups were seeded from the parent; the parent template is untouched.
	require.Len(t, r.Steps[0].ReminderIntervals, 1)
	assert.True(t, r.Steps[0].ReminderIntervals[0].HasTriggered)
	require.Len(t, r.Steps[1].ReminderIntervals, 1)
	assert.Equal(t, 0, r.Steps[1].ReminderIntervals[0].CurrentInterval)
	assert.Empty(t, r.Steps[2].ReminderIntervals, "undated steps are skipped")
	assert.Equal(t, 0, r.ReminderIntervals[0].CurrentInterval)
	assert.False(t, r.ReminderIntervals[0].HasTriggered)

	ev = EvaluateIntervals(r, at(11, 50))
	require.Len(t, ev.Firings, 1)
	assert.Equal(t, "s2", ev.Firings[0].StepID)
}

func TestEvaluateIntervals_StepBasedNeverFiresTopLevel(t *testing.T) {
	r := stepReminder()
	// Parent due 20:00, interval 10 with slack would be 19:49; without, 19:50.
	for _, now := range []time.Time{at(19, 49), at(19, 50)} {
		ev := EvaluateIntervals(r, now)
		assert.Empty(t, ev.Firings)
	}
	assert.Equal(t, 0, r.ReminderIntervals[0].CurrentInterval)
}

func TestEvaluateIntervals_CompletedStepSkipped(t *testing.T) {
	r := stepReminder()
	r.Steps[0].Completed = true
	ev := EvaluateIntervals(r, at(7, 50))
	assert.Empty(t, ev.Firings)
	assert.Empty(t, r.Steps[0].ReminderIntervals)
}

func TestDueNow(t *testing.T) {
	r := leadReminder()
	hits := DueNow(r, at(14, 0).Add(30*time.Second))
	require.Len(t, hits, 1)
	assert.Equal(t, -1, hits[0].StepIndex)
	assert.Empty(t, DueNow(r, at(14, 1)))
	assert.Equal(t, 0, r.ReminderIntervals[0].CurrentInterval, "due-now spends no budget")

	sr := stepReminder()
	hits = DueNow(sr, at(12, 0))
	require.Len(t, hits, 1)
	assert.Equal(t, "s2", hits[0].StepID)
	assert.Equal(t, fmt.Sprintf("due:r2:s2:%d", at(12, 0).Unix()/60), hits[0].DedupeKey(sr.ID))
}

func TestResetIntervals(t *testing.T) {
	before := stepReminder()
	EvaluateIntervals(before, at(7, 50))
	before.ReminderIntervals[0].CurrentInterval = 1
	before.ReminderIntervals[0].HasTriggered = true

	after := before.Clone()
	assert.False(t, ResetIntervals(before, after), "nothing moved")

	after.Steps[0].DueDate = ptr(at(9, 0))
	assert.True(t, ResetIntervals(before, after))
	assert.Nil(t, after.Steps[0].ReminderIntervals)
	assert.NotEmpty(t, after.Steps[1].ReminderIntervals)
	assert.True(t, after.ReminderIntervals[0].HasTriggered, "parent due date unchanged")

	after.DueDate = ptr(at(21, 0))
	assert.True(t, ResetIntervals(before, after))
	assert.Equal(t, 0, after.ReminderIntervals[0].CurrentInterval)
	assert.False(t, after.ReminderIntervals[0].HasTriggered)
}
