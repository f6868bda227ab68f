package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/JogPipe/internal/store"
)

type recordingEnqueuer struct {
	mu    sync.Mutex
	kinds []string
	slots []time.Time
	err   error
}

func (r *recordingEnqueuer) EnqueuePass(_ context.Context, kind string, slot time.Time) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", false, r.err
	}
	r.kinds = append(r.kinds, kind)
	r.slots = append(r.slots, slot)
	return "id", true, nil
}

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler(time.UTC)
	assert.NoError(t, s.AddJob("* * * * *", func() {}))
	assert.Error(t, s.AddJob("not a cron", func() {}))
	assert.Equal(t, 1, s.Len())
}

func TestSchedulePasses_RejectsBadSpec(t *testing.T) {
	s := NewScheduler(time.UTC)
	err := s.SchedulePasses(context.Background(), &recordingEnqueuer{}, []Schedule{{Kind: "notify", Spec: "61 * * * *"}})
	assert.ErrorContains(t, err, "notify")
}

func TestSchedulePasses_EnqueuesTruncatedSlot(t *testing.T) {
	now := time.Date(2025, 3, 14, 13, 44, 37, 0, time.UTC)
	s := NewScheduler(time.UTC, WithClock(func() time.Time { return now }))
	q := &recordingEnqueuer{}
	require.NoError(t, s.SchedulePasses(context.Background(), q, []Schedule{
		{Kind: "notify", Spec: "* * * * *"},
		{Kind: "overdue", Spec: "* * * * *"},
	}))

	for _, e := range s.cron.Entries() {
		e.Job.Run()
	}
	assert.ElementsMatch(t, []string{"notify", "overdue"}, q.kinds)
	for _, slot := range q.slots {
		assert.True(t, slot.Equal(time.Date(2025, 3, 14, 13, 44, 0, 0, time.UTC)))
	}
}

func TestSchedulePasses_CivilZone(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	s := NewScheduler(chicago)
	require.NoError(t, s.SchedulePasses(context.Background(), &recordingEnqueuer{}, []Schedule{
		{Kind: "nightly", Spec: "5 0 * * *"},
	}))

	entries := s.cron.Entries()
	require.Len(t, entries, 1)
	from := time.Date(2025, 3, 14, 12, 0, 0, 0, chicago)
	next := entries[0].Schedule.Next(from)
	assert.True(t, next.Equal(time.Date(2025, 3, 15, 0, 5, 0, 0, chicago)), "next run %s", next)
}

func TestEnqueue_DeduplicatesThroughStore(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Date(2025, 3, 14, 23, 55, 10, 0, time.UTC)
	s := NewScheduler(time.UTC, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	s.Enqueue(ctx, st, "streak")
	now = now.Add(20 * time.Second)
	s.Enqueue(ctx, st, "streak")

	runs, err := st.ClaimDuePasses(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "streak", runs[0].Kind)
}

func TestEnqueue_ErrorIsLogged(t *testing.T) {
	s := NewScheduler(time.UTC)
	q := &recordingEnqueuer{err: errors.New("db down")}
	s.Enqueue(context.Background(), q, "notify")
	assert.Empty(t, q.kinds)
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(time.UTC)
	s.Start()
	s.Stop()
}
