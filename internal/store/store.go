// Package store provides storage backends for JogPipe.
//
// The Store interface is the document store the engine works against: reminders with
// version-conditional writes, per-owner aggregate statistics updated by atomic increments,
// the notification attempt log, one-shot dedup records and durable pass runs. It is
// implemented by SQLiteStore, PostgresStore and InMemoryStore.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/BTreeMap/JogPipe/internal/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional write observed a different version.
	ErrConflict = errors.New("version conflict")
)

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN string
}

// Option defines a function that configures Opts.
type Option func(*Opts)

// WithSQLiteDSN sets the file path of the SQLite database.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the connection string of the Postgres database.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns the database/sql driver name for a DSN.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") ||
		strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// ReminderQuery selects reminders. Deleted reminders are never returned.
type ReminderQuery struct {
	UserID      string
	OpenOnly    bool // completed = false
	EnabledOnly bool // reminderEnabled = true
	Statuses    []models.CompleteStatus
	DueFrom     *time.Time // inclusive, on the parent due date
	DueBefore   *time.Time // exclusive
}

// BucketDelta addresses one completion counter and its daily bucket.
type BucketDelta struct {
	UserID string
	Bucket models.StatusBucket
	Day    string
}

// IsZero reports whether the delta addresses no counter.
func (d BucketDelta) IsZero() bool {
	return d.Bucket == models.BucketNone || d.UserID == ""
}

// Transition is one reminder write plus the counter moves it causes.
//
// Reminder.Version is the version the caller read; zero means the reminder must not
// exist yet. On commit the stored version becomes Version+1 and the struct is updated.
type Transition struct {
	Reminder *models.Reminder
	Inc      BucketDelta
	Dec      BucketDelta
}

// ReminderKey identifies a reminder.
type ReminderKey struct {
	UserID string
	ID     string
}

// QuestionnaireDue is an owner whose symptom check-in is due.
type QuestionnaireDue struct {
	UserID       string
	DueAt        time.Time
	IntervalDays int
}

// ReminderRepo persists reminder documents.
type ReminderRepo interface {
	GetReminder(ctx context.Context, userID, id string) (*models.Reminder, error)
	ListReminders(ctx context.Context, q ReminderQuery) ([]models.Reminder, error)

	// CommitTransitions writes every transition conditionally on its version and applies
	// the bucket deltas of those that committed, all in one transaction. Transitions whose
	// version no longer matches are skipped and returned in conflicts. Any other error
	// rolls the whole batch back.
	CommitTransitions(ctx context.Context, ts []Transition) (conflicts []ReminderKey, err error)
}

// UserRepo persists delivery preferences.
type UserRepo interface {
	UpsertUser(ctx context.Context, u models.User) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	// GetUsers returns the known users among ids, keyed by user id.
	GetUsers(ctx context.Context, ids []string) (map[string]models.User, error)
}

// StatsRepo maintains the per-owner aggregate statistics record.
type StatsRepo interface {
	GetUserStats(ctx context.Context, userID string) (*models.UserStats, error)

	// ApplyStreak runs the end-of-day streak update for day. It is a no-op returning
	// applied=false when the streak was already updated for day or a later one.
	ApplyStreak(ctx context.Context, userID, day string, completedAny bool, now time.Time) (res models.StreakResult, applied bool, err error)

	ScheduleQuestionnaire(ctx context.Context, userID string, intervalDays int, nextDue *time.Time) error
	ListQuestionnairesDue(ctx context.Context, now time.Time) ([]QuestionnaireDue, error)
	// AdvanceQuestionnaire moves the next due time from expectedDue to nextDue. It
	// returns false if another pass already moved it.
	AdvanceQuestionnaire(ctx context.Context, userID string, expectedDue, sentAt, nextDue time.Time) (bool, error)
}

// NotificationLog records send attempts.
type NotificationLog interface {
	// RecordAttempt appends a to the attempt log. When counted is true the owner's
	// interaction counter for a.Type and the global total are incremented in the same
	// transaction.
	RecordAttempt(ctx context.Context, a models.NotificationAttempt, counted bool) error
	ListAttempts(ctx context.Context, userID string, limit int) ([]models.NotificationAttempt, error)
}

// Store is the full storage surface used by the engine and the API.
type Store interface {
	ReminderRepo
	UserRepo
	StatsRepo
	NotificationLog
	DedupRepo
	PassRepo
	Close() error
}
