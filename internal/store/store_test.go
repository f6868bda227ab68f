package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/JogPipe/internal/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "sqlite_store_test_")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	s, err := NewSQLiteStore(WithSQLiteDSN(filepath.Join(tempDir, "test.db")))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// eachStore runs fn against every backend available in this environment.
func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewInMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newTestSQLiteStore(t)) })
	t.Run("postgres", func(t *testing.T) {
		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			t.Skip("env DATABASE_URL not set")
		}
		pg, err := NewPostgresStore(WithPostgresDSN(dsn))
		if err != nil {
			t.Skipf("Postgres not available: %v", err)
		}
		for _, table := range []string{"reminders", "users", "user_stats", "daily_jog_stats", "notification_interactions", "notification_log", "notification_dedup", "pass_runs"} {
			_, err := pg.db.Exec("DELETE FROM " + table)
			require.NoError(t, err)
		}
		t.Cleanup(func() { pg.Close() })
		fn(t, pg)
	})
}

func testReminder(userID, id string, due time.Time) *models.Reminder {
	return &models.Reminder{
		UserID:          userID,
		ID:              id,
		Title:           "Run " + id,
		Category:        models.CategoryExercise,
		DueDate:         &due,
		CompleteStatus:  models.StatusUpcoming,
		ReminderEnabled: true,
		ReminderIntervals: []models.IntervalGroup{
			{Intervals: []int{15, 5}, CountOfIntervals: 2},
		},
	}
}

func TestDetectDSNType(t *testing.T) {
	assert.Equal(t, "postgres", DetectDSNType("postgres://u:p@localhost/db"))
	assert.Equal(t, "postgres", DetectDSNType("host=localhost dbname=jog"))
	assert.Equal(t, "sqlite3", DetectDSNType("/var/lib/jogpipe/state.db"))
	assert.Equal(t, "sqlite3", DetectDSNType("file:state.db?_busy_timeout=1000"))
}

func TestSQLiteFilePath(t *testing.T) {
	assert.Equal(t, "/var/lib/jogpipe/state.db", SQLiteFilePath("/var/lib/jogpipe/state.db"))
	assert.Equal(t, "state.db", SQLiteFilePath("file:state.db?_busy_timeout=1000"))
}

func TestDialectRebind(t *testing.T) {
	assert.Equal(t, "a = ? AND b = ?", sqliteDialect.rebind("a = ? AND b = ?"))
	assert.Equal(t, "a = $1 AND b IN ($2, $3)", postgresDialect.rebind("a = ? AND b IN ("+placeholders(2)+")"))
}

func TestReminder_CreateGetAndConditionalUpdate(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		due := time.Date(2025, 3, 14, 14, 0, 0, 0, time.UTC)
		r := testReminder("u1", "r1", due)

		conflicts, err := s.CommitTransitions(ctx, []Transition{{Reminder: r}})
		require.NoError(t, err)
		assert.Empty(t, conflicts)
		assert.Equal(t, int64(1), r.Version)

		got, err := s.GetReminder(ctx, "u1", "r1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Version)
		assert.Equal(t, "Run r1", got.Title)
		assert.True(t, got.DueDate.Equal(due))
		assert.Equal(t, []int{15, 5}, got.ReminderIntervals[0].Intervals)

		// A second create of the same key conflicts.
		dup := testReminder("u1", "r1", due)
		conflicts, err = s.CommitTransitions(ctx, []Transition{{Reminder: dup}})
		require.NoError(t, err)
		assert.Equal(t, []ReminderKey{{UserID: "u1", ID: "r1"}}, conflicts)

		// A stale writer loses; the current one wins.
		stale := got.Clone()
		got.ReminderIntervals[0].CurrentInterval = 1
		conflicts, err = s.CommitTransitions(ctx, []Transition{{Reminder: got}})
		require.NoError(t, err)
		assert.Empty(t, conflicts)
		assert.Equal(t, int64(2), got.Version)

		stale.ReminderIntervals[0].CurrentInterval = 2
		conflicts, err = s.CommitTransitions(ctx, []Transition{{Reminder: stale}})
		require.NoError(t, err)
		assert.Len(t, conflicts, 1)
		assert.Equal(t, int64(1), stale.Version, "conflicting writer is not bumped")

		final, err := s.GetReminder(ctx, "u1", "r1")
		require.NoError(t, err)
		assert.Equal(t, 1, final.ReminderIntervals[0].CurrentInterval)

		_, err = s.GetReminder(ctx, "u1", "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestListReminders_Filters(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		day := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

		open := testReminder("u1", "a", day.Add(9*time.Hour))
		done := testReminder("u1", "b", day.Add(10*time.Hour))
		done.Completed = true
		done.CompleteStatus = models.StatusCompletedOnTime
		other := testReminder("u2", "c", day.Add(30*time.Hour))
		other.ReminderEnabled = false
		gone := testReminder("u2", "d", day.Add(11*time.Hour))
		gone.Deleted = true
		undated := testReminder("u3", "e", day)
		undated.DueDate = nil

		_, err := s.CommitTransitions(ctx, []Transition{{Reminder: open}, {Reminder: done}, {Reminder: other}, {Reminder: gone}, {Reminder: undated}})
		require.NoError(t, err)

		ids := func(rs []models.Reminder) []string {
			var out []string
			for _, r := range rs {
				out = append(out, r.ID)
			}
			return out
		}

		all, err := s.ListReminders(ctx, ReminderQuery{})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c", "e"}, ids(all), "deleted reminders are never listed")

		openEnabled, err := s.ListReminders(ctx, ReminderQuery{OpenOnly: true, EnabledOnly: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "e"}, ids(openEnabled))

		end := day.AddDate(0, 0, 1)
		today, err := s.ListReminders(ctx, ReminderQuery{DueFrom: &day, DueBefore: &end})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ids(today))

		upcoming, err := s.ListReminders(ctx, ReminderQuery{UserID: "u1", Statuses: []models.CompleteStatus{models.StatusUpcoming}})
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, ids(upcoming))
	})
}

func TestCommitTransitions_BucketsClampAndDaily(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		due := time.Date(2025, 3, 14, 14, 0, 0, 0, time.UTC)
		r := testReminder("u1", "r1", due)
		r.Completed = true
		r.CompleteStatus = models.StatusCompletedOnTime

		_, err := s.CommitTransitions(ctx, []Transition{{
			Reminder: r,
			Inc:      BucketDelta{UserID: "u1", Bucket: models.BucketCompletedOnTime, Day: "2025-03-14"},
		}})
		require.NoError(t, err)

		// Un-complete: decrement on-time twice to check the floor.
		r.Completed = false
		r.CompleteStatus = models.StatusOverdue
		_, err = s.CommitTransitions(ctx, []Transition{{
			Reminder: r,
			Dec:      BucketDelta{UserID: "u1", Bucket: models.BucketCompletedOnTime, Day: "2025-03-14"},
		}})
		require.NoError(t, err)
		_, err = s.CommitTransitions(ctx, []Transition{{
			Reminder: r,
			Dec:      BucketDelta{UserID: "u1", Bucket: models.BucketCompletedOnTime, Day: "2025-03-14"},
			Inc:      BucketDelta{UserID: "u1", Bucket: models.BucketMissed, Day: "2025-03-14"},
		}})
		require.NoError(t, err)

		st, err := s.GetUserStats(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(0), st.JogStats.JogCompletionRate.CompletedOnTimeTotal)
		assert.Equal(t, int64(1), st.JogStats.JogCompletionRate.MissedJogsTotal)
		assert.Equal(t, models.CompletionRate{MissedJogsTotal: 1}, st.JogStats.DailyJogStats["2025-03-14"])
	})
}

func TestCommitTransitions_ConflictSkipsCounters(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		r := testReminder("u1", "r1", time.Date(2025, 3, 14, 14, 0, 0, 0, time.UTC))
		_, err := s.CommitTransitions(ctx, []Transition{{Reminder: r}})
		require.NoError(t, err)

		stale := r.Clone()
		stale.Version = 7
		conflicts, err := s.CommitTransitions(ctx, []Transition{{
			Reminder: stale,
			Inc:      BucketDelta{UserID: "u1", Bucket: models.BucketMissed, Day: "2025-03-14"},
		}})
		require.NoError(t, err)
		require.Len(t, conflicts, 1)

		st, err := s.GetUserStats(ctx, "u1")
		require.NoError(t, err)
		assert.Zero(t, st.JogStats.JogCompletionRate.MissedJogsTotal)
	})
}

func TestUsers(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.UpsertUser(ctx, models.User{UserID: "u1", PushToken: "tok1"}))
		require.NoError(t, s.UpsertUser(ctx, models.User{UserID: "u2", PushToken: "tok2", FocusMode: true}))
		require.NoError(t, s.UpsertUser(ctx, models.User{UserID: "u1", PushToken: "tok1b"}))

		u, err := s.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "tok1b", u.PushToken)

		users, err := s.GetUsers(ctx, []string{"u1", "u2", "nobody"})
		require.NoError(t, err)
		assert.Len(t, users, 2)
		assert.True(t, users["u2"].FocusMode)

		_, err = s.GetUser(ctx, "nobody")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.UpsertUser(ctx, models.User{}), models.ErrEmptyUserID)
	})
}

func TestApplyStreak(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		now := time.Now()

		res, applied, err := s.ApplyStreak(ctx, "u1", "2025-03-11", true, now)
		require.NoError(t, err)
		require.True(t, applied)
		assert.Equal(t, 1, res.CurrentStreak)

		for _, day := range []string{"2025-03-12", "2025-03-13"} {
			_, applied, err = s.ApplyStreak(ctx, "u1", day, true, now)
			require.NoError(t, err)
			require.True(t, applied)
		}

		// Rerun of the same day is a no-op.
		_, applied, err = s.ApplyStreak(ctx, "u1", "2025-03-13", false, now)
		require.NoError(t, err)
		assert.False(t, applied)

		res, applied, err = s.ApplyStreak(ctx, "u1", "2025-03-14", false, now)
		require.NoError(t, err)
		require.True(t, applied)
		assert.Equal(t, models.StreakResult{UserID: "u1", CurrentStreak: 0, PreviousStreak: 3, BestStreak: 3}, res)

		st, err := s.GetUserStats(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 0, st.JogStats.CurrentStreak)
		assert.Equal(t, 3, st.JogStats.PreviousStreak)
		assert.Equal(t, 3, st.JogStats.BestStreak)
		assert.Equal(t, "2025-03-14", st.JogStats.LastStreakDate)
	})
}

func TestQuestionnaireScheduling(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		due := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
		require.NoError(t, s.ScheduleQuestionnaire(ctx, "u1", 7, &due))
		later := due.Add(48 * time.Hour)
		require.NoError(t, s.ScheduleQuestionnaire(ctx, "u2", 3, &later))

		list, err := s.ListQuestionnairesDue(ctx, due.Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "u1", list[0].UserID)
		assert.Equal(t, 7, list[0].IntervalDays)
		assert.True(t, list[0].DueAt.Equal(due))

		next := due.AddDate(0, 0, 7)
		ok, err := s.AdvanceQuestionnaire(ctx, "u1", due, due.Add(time.Hour), next)
		require.NoError(t, err)
		assert.True(t, ok)

		// An overlapping pass that read the old due time loses.
		ok, err = s.AdvanceQuestionnaire(ctx, "u1", due, due.Add(time.Hour), next)
		require.NoError(t, err)
		assert.False(t, ok)

		st, err := s.GetUserStats(ctx, "u1")
		require.NoError(t, err)
		require.NotNil(t, st.SymptomStats.NextQuestionnaireDue)
		assert.True(t, st.SymptomStats.NextQuestionnaireDue.Equal(next))
		require.NotNil(t, st.SymptomStats.LastQuestionnaireAt)
	})
}

func TestRecordAttempt_Counters(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for i := 0; i < 2; i++ {
			require.NoError(t, s.RecordAttempt(ctx, models.NotificationAttempt{
				UserID: "u1", Type: models.NotificationReminder, Title: "t", Body: "b", Status: models.AttemptSent,
			}, true))
		}
		require.NoError(t, s.RecordAttempt(ctx, models.NotificationAttempt{
			UserID: "u1", Type: models.NotificationStreak, Title: "t", Body: "b", Status: models.AttemptFailed, Error: "boom",
		}, true))
		require.NoError(t, s.RecordAttempt(ctx, models.NotificationAttempt{
			UserID: "u1", Type: models.NotificationReminder, Title: "t", Body: "b", Status: models.AttemptDropped,
		}, false))

		st, err := s.GetUserStats(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), st.AppUsageStats.TotalNotificationsSent)
		assert.Equal(t, int64(2), st.AppUsageStats.NotificationInteractionRate[models.NotificationReminder].Total)
		assert.Equal(t, int64(1), st.AppUsageStats.NotificationInteractionRate[models.NotificationStreak].Total)

		attempts, err := s.ListAttempts(ctx, "u1", 10)
		require.NoError(t, err)
		assert.Len(t, attempts, 4)
	})
}

func TestDedup(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		dup, err := s.IsDuplicate(ctx, "due:r1::1")
		require.NoError(t, err)
		assert.False(t, dup)

		first, err := s.RecordOnce(ctx, "due:r1::1", "u1")
		require.NoError(t, err)
		assert.True(t, first)

		again, err := s.RecordOnce(ctx, "due:r1::1", "u1")
		require.NoError(t, err)
		assert.False(t, again)

		dup, err = s.IsDuplicate(ctx, "due:r1::1")
		require.NoError(t, err)
		assert.True(t, dup)

		n, err := s.PruneDedup(ctx, time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}
