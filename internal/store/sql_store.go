package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/JogPipe/internal/models"
)

// sqlStore is the database/sql implementation shared by SQLiteStore and PostgresStore.
type sqlStore struct {
	db *sql.DB
	d  dialect
}

func (s *sqlStore) q(query string) string { return s.d.rebind(query) }

// Close closes the database connection.
func (s *sqlStore) Close() error {
	slog.Debug("sqlStore.Close: closing database connection", "driver", s.d.name)
	err := s.db.Close()
	if err != nil {
		slog.Error("sqlStore.Close: failed to close database", "driver", s.d.name, "error", err)
	}
	return err
}

// withTx runs fn in a transaction, committing on success and rolling back otherwise.
func (s *sqlStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction failed: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("sqlStore.withTx: rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction failed: %w", err)
	}
	return nil
}

// --- reminders ---

func (s *sqlStore) GetReminder(ctx context.Context, userID, id string) (*models.Reminder, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT doc, version FROM reminders WHERE user_id = ? AND id = ?`), userID, id)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder %s/%s failed: %w", userID, id, err)
	}
	return &r, nil
}

func (s *sqlStore) ListReminders(ctx context.Context, q ReminderQuery) ([]models.Reminder, error) {
	where := []string{"deleted = FALSE"}
	var args []interface{}
	if q.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, q.UserID)
	}
	if q.OpenOnly {
		where = append(where, "completed = FALSE")
	}
	if q.EnabledOnly {
		where = append(where, "reminder_enabled = TRUE")
	}
	if len(q.Statuses) > 0 {
		where = append(where, "complete_status IN ("+placeholders(len(q.Statuses))+")")
		for _, st := range q.Statuses {
			args = append(args, string(st))
		}
	}
	if q.DueFrom != nil {
		where = append(where, "due_unix >= ?")
		args = append(args, q.DueFrom.Unix())
	}
	if q.DueBefore != nil {
		where = append(where, "due_unix < ?")
		args = append(args, q.DueBefore.Unix())
	}
	query := "SELECT doc, version FROM reminders WHERE " + strings.Join(where, " AND ") + " ORDER BY user_id, id"

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list reminders query failed: %w", err)
	}
	defer rows.Close()

	var out []models.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list reminders iteration failed: %w", err)
	}
	return out, nil
}

func (s *sqlStore) CommitTransitions(ctx context.Context, ts []Transition) ([]ReminderKey, error) {
	if len(ts) == 0 {
		return nil, nil
	}
	var conflicts []ReminderKey
	committed := make([]int, 0, len(ts))
	now := time.Now().UTC()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		conflicts = conflicts[:0]
		committed = committed[:0]
		for i, t := range ts {
			ok, err := s.putReminder(ctx, tx, t.Reminder, now)
			if err != nil {
				return err
			}
			if !ok {
				conflicts = append(conflicts, ReminderKey{UserID: t.Reminder.UserID, ID: t.Reminder.ID})
				continue
			}
			if !t.Inc.IsZero() {
				if err := s.addToBucket(ctx, tx, t.Inc, 1, now); err != nil {
					return err
				}
			}
			if !t.Dec.IsZero() {
				if err := s.addToBucket(ctx, tx, t.Dec, -1, now); err != nil {
					return err
				}
			}
			committed = append(committed, i)
		}
		return nil
	})
	if err != nil {
		slog.Error("sqlStore.CommitTransitions: batch rolled back", "count", len(ts), "error", err)
		return nil, err
	}
	for _, i := range committed {
		ts[i].Reminder.Version++
		ts[i].Reminder.UpdatedAt = now
	}
	slog.Debug("sqlStore.CommitTransitions", "committed", len(committed), "conflicts", len(conflicts))
	return conflicts, nil
}

// putReminder inserts (Version == 0) or conditionally updates a reminder. It returns
// false when the stored version did not match.
func (s *sqlStore) putReminder(ctx context.Context, tx *sql.Tx, r *models.Reminder, now time.Time) (bool, error) {
	next := *r
	next.Version = r.Version + 1
	next.UpdatedAt = now
	doc, err := json.Marshal(&next)
	if err != nil {
		return false, fmt.Errorf("encode reminder %s failed: %w", r.ID, err)
	}

	var res sql.Result
	if r.Version == 0 {
		res, err = tx.ExecContext(ctx, s.q(
			`INSERT INTO reminders (user_id, id, due_unix, complete_status, completed, deleted, reminder_enabled, doc, version, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (user_id, id) DO NOTHING`),
			r.UserID, r.ID, unixOrNil(r.DueDate), string(r.CompleteStatus), r.Completed, r.Deleted, r.ReminderEnabled,
			string(doc), next.Version, now,
		)
	} else {
		res, err = tx.ExecContext(ctx, s.q(
			`UPDATE reminders SET due_unix = ?, complete_status = ?, completed = ?, deleted = ?, reminder_enabled = ?,
			        doc = ?, version = ?, updated_at = ?
			 WHERE user_id = ? AND id = ? AND version = ?`),
			unixOrNil(r.DueDate), string(r.CompleteStatus), r.Completed, r.Deleted, r.ReminderEnabled,
			string(doc), next.Version, now, r.UserID, r.ID, r.Version,
		)
	}
	if err != nil {
		return false, fmt.Errorf("write reminder %s/%s failed: %w", r.UserID, r.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write reminder rows affected failed: %w", err)
	}
	return n == 1, nil
}

// addToBucket moves the lifetime counter and the daily bucket by delta, never below zero.
func (s *sqlStore) addToBucket(ctx context.Context, tx *sql.Tx, b BucketDelta, delta int64, now time.Time) error {
	col, err := bucketColumn(b.Bucket)
	if err != nil {
		return err
	}
	initial := delta
	if initial < 0 {
		initial = 0
	}
	_, err = tx.ExecContext(ctx, s.q(fmt.Sprintf(
		`INSERT INTO user_stats (user_id, %[1]s, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET %[1]s = %[2]s(user_stats.%[1]s + ?, 0), updated_at = excluded.updated_at`,
		col, s.d.greatest)),
		b.UserID, initial, now, delta,
	)
	if err != nil {
		return fmt.Errorf("update %s for %s failed: %w", col, b.UserID, err)
	}
	if b.Day == "" {
		return nil
	}
	_, err = tx.ExecContext(ctx, s.q(fmt.Sprintf(
		`INSERT INTO daily_jog_stats (user_id, day, %[1]s) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, day) DO UPDATE SET %[1]s = %[2]s(daily_jog_stats.%[1]s + ?, 0)`,
		col, s.d.greatest)),
		b.UserID, b.Day, initial, delta,
	)
	if err != nil {
		return fmt.Errorf("update daily %s for %s/%s failed: %w", col, b.UserID, b.Day, err)
	}
	return nil
}

// --- users ---

func (s *sqlStore) UpsertUser(ctx context.Context, u models.User) error {
	if u.UserID == "" {
		return models.ErrEmptyUserID
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO users (user_id, push_token, focus_mode, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET push_token = excluded.push_token, focus_mode = excluded.focus_mode, updated_at = excluded.updated_at`),
		u.UserID, u.PushToken, u.FocusMode, u.UpdatedAt,
	)
	if err != nil {
		slog.Error("sqlStore.UpsertUser failed", "userID", u.UserID, "error", err)
		return fmt.Errorf("upsert user %s failed: %w", u.UserID, err)
	}
	return nil
}

func (s *sqlStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, s.q(`SELECT user_id, push_token, focus_mode, updated_at FROM users WHERE user_id = ?`), userID).
		Scan(&u.UserID, &u.PushToken, &u.FocusMode, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s failed: %w", userID, err)
	}
	return &u, nil
}

func (s *sqlStore) GetUsers(ctx context.Context, ids []string) (map[string]models.User, error) {
	out := make(map[string]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT user_id, push_token, focus_mode, updated_at FROM users WHERE user_id IN (`+placeholders(len(ids))+`)`), args...)
	if err != nil {
		return nil, fmt.Errorf("get users query failed: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.UserID, &u.PushToken, &u.FocusMode, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user failed: %w", err)
		}
		out[u.UserID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get users iteration failed: %w", err)
	}
	return out, nil
}

// --- stats ---

func (s *sqlStore) GetUserStats(ctx context.Context, userID string) (*models.UserStats, error) {
	st := &models.UserStats{UserID: userID}
	js := &st.JogStats

	var lastStreak sql.NullString
	var lastQ, nextQ sql.NullInt64
	err := s.db.QueryRowContext(ctx, s.q(
		`SELECT current_streak, previous_streak, best_streak, last_streak_date,
		        completed_on_time_total, completed_late_total, missed_total, total_notifications_sent,
		        last_questionnaire_unix, next_questionnaire_unix, questionnaire_interval_days
		 FROM user_stats WHERE user_id = ?`), userID).Scan(
		&js.CurrentStreak, &js.PreviousStreak, &js.BestStreak, &lastStreak,
		&js.JogCompletionRate.CompletedOnTimeTotal, &js.JogCompletionRate.CompletedLateTotal, &js.JogCompletionRate.MissedJogsTotal,
		&st.AppUsageStats.TotalNotificationsSent,
		&lastQ, &nextQ, &st.SymptomStats.QuestionnaireIntervalDays,
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get user stats %s failed: %w", userID, err)
	}
	js.LastStreakDate = lastStreak.String
	st.SymptomStats.LastQuestionnaireAt = timeFromUnix(lastQ)
	st.SymptomStats.NextQuestionnaireDue = timeFromUnix(nextQ)

	if js.DailyJogStats, err = s.dailyStats(ctx, userID); err != nil {
		return nil, err
	}
	if st.AppUsageStats.NotificationInteractionRate, err = s.interactionStats(ctx, userID); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *sqlStore) dailyStats(ctx context.Context, userID string) (map[string]models.CompletionRate, error) {
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT day, completed_on_time_total, completed_late_total, missed_total FROM daily_jog_stats WHERE user_id = ?`), userID)
	if err != nil {
		return nil, fmt.Errorf("get daily stats %s failed: %w", userID, err)
	}
	defer rows.Close()
	var out map[string]models.CompletionRate
	for rows.Next() {
		var day string
		var c models.CompletionRate
		if err := rows.Scan(&day, &c.CompletedOnTimeTotal, &c.CompletedLateTotal, &c.MissedJogsTotal); err != nil {
			return nil, fmt.Errorf("scan daily stats failed: %w", err)
		}
		if out == nil {
			out = make(map[string]models.CompletionRate)
		}
		out[day] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("daily stats iteration failed: %w", err)
	}
	return out, nil
}

func (s *sqlStore) interactionStats(ctx context.Context, userID string) (map[models.NotificationType]models.InteractionCounter, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT type, total FROM notification_interactions WHERE user_id = ?`), userID)
	if err != nil {
		return nil, fmt.Errorf("get interaction stats %s failed: %w", userID, err)
	}
	defer rows.Close()
	var out map[models.NotificationType]models.InteractionCounter
	for rows.Next() {
		var typ string
		var total int64
		if err := rows.Scan(&typ, &total); err != nil {
			return nil, fmt.Errorf("scan interaction stats failed: %w", err)
		}
		if out == nil {
			out = make(map[models.NotificationType]models.InteractionCounter)
		}
		out[models.NotificationType(typ)] = models.InteractionCounter{Total: total}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("interaction stats iteration failed: %w", err)
	}
	return out, nil
}

func (s *sqlStore) ApplyStreak(ctx context.Context, userID, day string, completedAny bool, now time.Time) (models.StreakResult, bool, error) {
	res := models.StreakResult{UserID: userID, Continued: completedAny}
	flag := 0
	if completedAny {
		flag = 1
	}
	query := fmt.Sprintf(
		`INSERT INTO user_stats (user_id, current_streak, previous_streak, best_streak, last_streak_date, updated_at)
		 VALUES (?, ?, 0, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		     previous_streak = user_stats.current_streak,
		     current_streak = CASE WHEN ? = 1 THEN user_stats.current_streak + 1 ELSE 0 END,
		     best_streak = %s(user_stats.best_streak, CASE WHEN ? = 1 THEN user_stats.current_streak + 1 ELSE 0 END),
		     last_streak_date = excluded.last_streak_date,
		     updated_at = excluded.updated_at
		 WHERE user_stats.last_streak_date IS NULL OR user_stats.last_streak_date < excluded.last_streak_date
		 RETURNING current_streak, previous_streak, best_streak`, s.d.greatest)

	err := s.db.QueryRowContext(ctx, s.q(query), userID, flag, flag, day, now.UTC(), flag, flag).
		Scan(&res.CurrentStreak, &res.PreviousStreak, &res.BestStreak)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug("sqlStore.ApplyStreak: already applied", "userID", userID, "day", day)
		return res, false, nil
	}
	if err != nil {
		return res, false, fmt.Errorf("apply streak for %s failed: %w", userID, err)
	}
	return res, true, nil
}

func (s *sqlStore) ScheduleQuestionnaire(ctx context.Context, userID string, intervalDays int, nextDue *time.Time) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO user_stats (user_id, questionnaire_interval_days, next_questionnaire_unix, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET questionnaire_interval_days = excluded.questionnaire_interval_days,
		     next_questionnaire_unix = excluded.next_questionnaire_unix, updated_at = excluded.updated_at`),
		userID, intervalDays, unixOrNil(nextDue), now,
	)
	if err != nil {
		return fmt.Errorf("schedule questionnaire for %s failed: %w", userID, err)
	}
	return nil
}

func (s *sqlStore) ListQuestionnairesDue(ctx context.Context, now time.Time) ([]QuestionnaireDue, error) {
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT user_id, next_questionnaire_unix, questionnaire_interval_days FROM user_stats
		 WHERE next_questionnaire_unix IS NOT NULL AND next_questionnaire_unix <= ? AND questionnaire_interval_days > 0
		 ORDER BY user_id`), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("list questionnaires due failed: %w", err)
	}
	defer rows.Close()
	var out []QuestionnaireDue
	for rows.Next() {
		var q QuestionnaireDue
		var due int64
		if err := rows.Scan(&q.UserID, &due, &q.IntervalDays); err != nil {
			return nil, fmt.Errorf("scan questionnaire due failed: %w", err)
		}
		q.DueAt = time.Unix(due, 0).UTC()
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list questionnaires due iteration failed: %w", err)
	}
	return out, nil
}

func (s *sqlStore) AdvanceQuestionnaire(ctx context.Context, userID string, expectedDue, sentAt, nextDue time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(
		`UPDATE user_stats SET next_questionnaire_unix = ?, last_questionnaire_unix = ?, updated_at = ?
		 WHERE user_id = ? AND next_questionnaire_unix = ?`),
		nextDue.Unix(), sentAt.Unix(), time.Now().UTC(), userID, expectedDue.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("advance questionnaire for %s failed: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("advance questionnaire rows affected failed: %w", err)
	}
	return n == 1, nil
}
