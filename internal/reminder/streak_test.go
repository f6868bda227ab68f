package reminder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BTreeMap/JogPipe/internal/models"
)

func TestNextStreak(t *testing.T) {
	cases := []struct {
		name                         string
		current, best                int
		completedAny                 bool
		wantNext, wantPrev, wantBest int
	}{
		{"reset after three", 3, 5, false, 0, 3, 5},
		{"continue", 3, 5, true, 4, 3, 5},
		{"new best", 5, 5, true, 6, 5, 6},
		{"from zero", 0, 0, true, 1, 0, 1},
		{"stays zero", 0, 2, false, 0, 0, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, prev, best := NextStreak(tc.current, tc.best, tc.completedAny)
			assert.Equal(t, tc.wantNext, next)
			assert.Equal(t, tc.wantPrev, prev)
			assert.Equal(t, tc.wantBest, best)
			assert.GreaterOrEqual(t, best, tc.best)
		})
	}
}

func TestCompletedAnyByOwner(t *testing.T) {
	rs := []models.Reminder{
		{UserID: "a", CompleteStatus: models.StatusOverdue},
		{UserID: "a", CompleteStatus: models.StatusCompletedLate},
		{UserID: "b", CompleteStatus: models.StatusIncomplete},
		{UserID: "c", IsStepBased: true, CompleteStatus: models.StatusOverdue, Steps: []models.Step{
			{ID: "s1", CompleteStatus: models.StatusCompletedOnTime},
			{ID: "s2", CompleteStatus: models.StatusOverdue},
		}},
		{UserID: "d", Deleted: true, CompleteStatus: models.StatusCompletedOnTime},
	}
	got := CompletedAnyByOwner(rs)
	assert.Equal(t, map[string]bool{"a": true, "b": false, "c": true}, got)
}

func TestDayBounds(t *testing.T) {
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 03:30 UTC on the 15th is the evening of the 14th in Chicago.
	now := time.Date(2025, 3, 15, 3, 30, 0, 0, time.UTC)
	start, end := DayBounds(now, loc)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, loc), start)
	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, loc), end)
	assert.Equal(t, "2025-03-14", DayKey(now, loc))

	pStart, pEnd := PreviousDayBounds(now, loc)
	assert.Equal(t, time.Date(2025, 3, 13, 0, 0, 0, 0, loc), pStart)
	assert.Equal(t, start, pEnd)
}

func TestDayBounds_DSTDayIs23Hours(t *testing.T) {
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	start, end := DayBounds(time.Date(2025, 3, 9, 12, 0, 0, 0, loc), loc)
	assert.Equal(t, 23*time.Hour, end.Sub(start))
}
