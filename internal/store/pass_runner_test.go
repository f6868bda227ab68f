package store

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassRepo_EnqueueDedupe(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		slot := time.Date(2025, 3, 14, 13, 44, 0, 0, time.UTC)

		id1, created, err := s.EnqueuePass(ctx, "notify", slot)
		require.NoError(t, err)
		assert.True(t, created)

		// Same minute, different second: same run.
		id2, created, err := s.EnqueuePass(ctx, "notify", slot.Add(30*time.Second))
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, id1, id2)

		id3, created, err := s.EnqueuePass(ctx, "overdue", slot)
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEqual(t, id1, id3)

		run, err := s.GetPass(ctx, id1)
		require.NoError(t, err)
		assert.Equal(t, PassStatusQueued, run.Status)
		assert.True(t, run.SlotAt.Equal(slot))

		_, err = s.GetPass(ctx, "pass_missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestPassRepo_ClaimIsExclusive(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		slot := time.Date(2025, 3, 14, 13, 44, 0, 0, time.UTC)
		_, _, err := s.EnqueuePass(ctx, "notify", slot)
		require.NoError(t, err)
		_, _, err = s.EnqueuePass(ctx, "notify", slot.Add(time.Hour))
		require.NoError(t, err)

		runs, err := s.ClaimDuePasses(ctx, slot.Add(time.Minute), 10)
		require.NoError(t, err)
		require.Len(t, runs, 1, "future slots are not claimed")
		assert.Equal(t, PassStatusRunning, runs[0].Status)
		assert.Equal(t, 1, runs[0].Attempt)

		again, err := s.ClaimDuePasses(ctx, slot.Add(time.Minute), 10)
		require.NoError(t, err)
		assert.Empty(t, again)

		require.NoError(t, s.FailPass(ctx, runs[0].ID, "boom"))
		failed, err := s.GetPass(ctx, runs[0].ID)
		require.NoError(t, err)
		assert.Equal(t, PassStatusFailed, failed.Status)
		assert.Equal(t, "boom", failed.LastError)

		// Failed runs are terminal.
		again, err = s.ClaimDuePasses(ctx, slot.Add(2*time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, again, 1)
		assert.NotEqual(t, runs[0].ID, again[0].ID)
	})
}

func TestPassRepo_RecoveryAndLateness(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		slot := time.Date(2025, 3, 14, 13, 0, 0, 0, time.UTC)
		id, _, err := s.EnqueuePass(ctx, "nightly", slot)
		require.NoError(t, err)
		_, err = s.ClaimDuePasses(ctx, slot, 10)
		require.NoError(t, err)

		n, err := s.RequeueStalePasses(ctx, slot.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		run, err := s.GetPass(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, PassStatusQueued, run.Status)
		assert.Nil(t, run.LockedAt)

		n, err = s.CancelLatePasses(ctx, slot.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		run, err = s.GetPass(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, PassStatusCanceled, run.Status)
	})
}

func TestPassRunner_PollExecutesWithSlotTime(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	slot := time.Date(2025, 3, 14, 13, 44, 0, 0, time.UTC)
	now := slot.Add(5 * time.Second)

	runner := NewPassRunner(s, time.Second, WithClock(func() time.Time { return now }))
	var got time.Time
	var calls int32
	runner.RegisterHandler("notify", func(ctx context.Context, at time.Time) error {
		atomic.AddInt32(&calls, 1)
		got = at
		return nil
	})

	id, _, err := s.EnqueuePass(ctx, "notify", slot)
	require.NoError(t, err)

	assert.Equal(t, 1, runner.Poll(ctx))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.True(t, got.Equal(slot))

	run, err := s.GetPass(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, PassStatusDone, run.Status)

	assert.Equal(t, 0, runner.Poll(ctx), "nothing left to run")
}

func TestPassRunner_FailuresAreNotRetried(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	slot := time.Date(2025, 3, 14, 23, 55, 0, 0, time.UTC)
	runner := NewPassRunner(s, time.Second, WithClock(func() time.Time { return slot }))

	var calls int32
	runner.RegisterHandler("streak", func(context.Context, time.Time) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("storage down")
	})
	runner.RegisterHandler("nightly", func(context.Context, time.Time) error {
		panic("bad pass")
	})

	streakID, _, err := s.EnqueuePass(ctx, "streak", slot)
	require.NoError(t, err)
	nightlyID, _, err := s.EnqueuePass(ctx, "nightly", slot)
	require.NoError(t, err)
	unknownID, _, err := s.EnqueuePass(ctx, "bogus", slot)
	require.NoError(t, err)

	runner.Poll(ctx)
	runner.Poll(ctx)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	for id, want := range map[string]string{streakID: "storage down", nightlyID: "panicked", unknownID: "no handler"} {
		run, err := s.GetPass(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, PassStatusFailed, run.Status)
		assert.Contains(t, run.LastError, want)
	}
}

func TestPassRunner_CancelsLateRuns(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	slot := time.Date(2025, 3, 14, 13, 0, 0, 0, time.UTC)
	now := slot.Add(time.Hour)
	runner := NewPassRunner(s, time.Second, WithClock(func() time.Time { return now }), WithMaxLateness(10*time.Minute))

	var calls int32
	runner.RegisterHandler("notify", func(context.Context, time.Time) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	id, _, err := s.EnqueuePass(ctx, "notify", slot)
	require.NoError(t, err)

	require.NoError(t, runner.RecoverStalePasses(ctx))
	assert.Equal(t, 0, runner.Poll(ctx))
	assert.Zero(t, atomic.LoadInt32(&calls))

	run, err := s.GetPass(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, PassStatusCanceled, run.Status)
}
