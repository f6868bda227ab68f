package engine

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/JogPipe/internal/dispatch"
	"github.com/BTreeMap/JogPipe/internal/models"
	"github.com/BTreeMap/JogPipe/internal/store"
	"github.com/BTreeMap/JogPipe/internal/testutil"
)

func TestOverdueSweep_RespectsLag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.SeedReminder(t, f.store, testutil.NewReminder("u1", "r1", at(14, 14, 0)))

	res, err := f.engine.RunOverdueSweep(ctx, at(14, 14, 0).Add(30*time.Second))
	require.NoError(t, err)
	assert.Zero(t, res.Committed)
	assert.Equal(t, models.StatusUpcoming, testutil.MustGetReminder(t, f.store, "u1", "r1").CompleteStatus)

	res, err = f.engine.RunOverdueSweep(ctx, at(14, 14, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Committed)
	assert.Equal(t, models.StatusOverdue, testutil.MustGetReminder(t, f.store, "u1", "r1").CompleteStatus)

	// Overdue has no bucket.
	stats, err := f.store.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.CompletionRate{}, stats.JogStats.JogCompletionRate)
}

func TestOverdueSweep_SkipsCompletedAndDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	done := testutil.NewReminder("u1", "done", at(14, 9, 0))
	done.Completed = true
	done.CompletedAt = testutil.TimePtr(at(14, 8, 0))
	done.CompleteStatus = models.StatusCompletedOnTime
	gone := testutil.NewReminder("u1", "gone", at(14, 9, 0))
	gone.Deleted = true
	testutil.SeedReminder(t, f.store, done)
	testutil.SeedReminder(t, f.store, gone)

	res, err := f.engine.RunOverdueSweep(ctx, at(14, 12, 0))
	require.NoError(t, err)
	assert.Zero(t, res.Evaluated)
	assert.Equal(t, models.StatusUpcoming, testutil.MustGetReminder(t, f.store, "u1", "gone").CompleteStatus)
}

func TestNightlySweep_MarksYesterdayMissed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	overdue := testutil.NewReminder("u1", "late", at(14, 14, 0))
	overdue.CompleteStatus = models.StatusOverdue
	testutil.SeedReminder(t, f.store, overdue)

	steps := testutil.NewStepReminder("u1", "steps", models.CategoryExercise, []time.Time{at(14, 8, 0), at(14, 20, 0)})
	steps.Steps[0].Completed = true
	steps.Steps[0].CompleteStatus = models.StatusCompletedOnTime
	testutil.SeedReminder(t, f.store, steps)

	done := testutil.NewReminder("u1", "done", at(14, 10, 0))
	done.Completed = true
	done.CompletedAt = testutil.TimePtr(at(14, 9, 0))
	done.CompleteStatus = models.StatusCompletedOnTime
	testutil.SeedReminder(t, f.store, done)

	testutil.SeedReminder(t, f.store, testutil.NewReminder("u1", "today", at(15, 9, 0)))

	// Focus mode does not exempt anyone from the sweep.
	testutil.SeedUser(t, f.store, "u2", "tok", true)
	testutil.SeedReminder(t, f.store, testutil.NewReminder("u2", "r1", at(14, 23, 59)))

	res, err := f.engine.RunNightlySweep(ctx, at(15, 0, 5))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Committed)

	assert.Equal(t, models.StatusIncomplete, testutil.MustGetReminder(t, f.store, "u1", "late").CompleteStatus)
	assert.Equal(t, models.StatusCompletedOnTime, testutil.MustGetReminder(t, f.store, "u1", "done").CompleteStatus)
	assert.Equal(t, models.StatusUpcoming, testutil.MustGetReminder(t, f.store, "u1", "today").CompleteStatus)
	assert.Equal(t, models.StatusIncomplete, testutil.MustGetReminder(t, f.store, "u2", "r1").CompleteStatus)

	got := testutil.MustGetReminder(t, f.store, "u1", "steps")
	assert.Equal(t, models.StatusIncomplete, got.CompleteStatus)
	for _, s := range got.Steps {
		assert.False(t, s.Completed)
		assert.Equal(t, models.StatusIncomplete, s.CompleteStatus)
	}

	stats, err := f.store.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.JogStats.JogCompletionRate.MissedJogsTotal)
	assert.Equal(t, int64(2), stats.JogStats.DailyJogStats["2025-03-14"].MissedJogsTotal)

	// A second run finds nothing left to retire.
	res, err = f.engine.RunNightlySweep(ctx, at(15, 0, 6))
	require.NoError(t, err)
	assert.Zero(t, res.Committed)
	stats, err = f.store.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.JogStats.JogCompletionRate.MissedJogsTotal)
}

func TestNightlySweep_UsesCivilZone(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	st := store.NewInMemoryStore()
	e := New(st, dispatch.New(testutil.NewRecordingSender(), st), WithLocation(chicago))

	// 2025-03-15 03:00 UTC is still the evening of March 14 in Chicago.
	testutil.SeedReminder(t, st, testutil.NewReminder("u1", "r1", time.Date(2025, 3, 15, 3, 0, 0, 0, time.UTC)))

	res, err := e.RunNightlySweep(context.Background(), time.Date(2025, 3, 15, 0, 5, 0, 0, chicago))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Committed)

	stats, err := st.GetUserStats(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.JogStats.DailyJogStats["2025-03-14"].MissedJogsTotal)
}
