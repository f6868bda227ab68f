package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/JogPipe/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// unixOrNil converts an optional instant to a nullable unix-seconds column.
func unixOrNil(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func timeFromUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

// newID returns a prefixed random identifier.
func newID(prefix string) string {
	return prefix + uuid.NewString()
}

// bucketColumn maps a status bucket to its counter column in user_stats and
// daily_jog_stats.
func bucketColumn(b models.StatusBucket) (string, error) {
	switch b {
	case models.BucketCompletedOnTime:
		return "completed_on_time_total", nil
	case models.BucketCompletedLate:
		return "completed_late_total", nil
	case models.BucketMissed:
		return "missed_total", nil
	}
	return "", fmt.Errorf("no counter for bucket %q", b)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanReminder decodes the reminder document and overlays the authoritative version.
func scanReminder(row rowScanner) (models.Reminder, error) {
	var r models.Reminder
	var doc []byte
	var version int64
	if err := row.Scan(&doc, &version); err != nil {
		return r, err
	}
	if err := json.Unmarshal(doc, &r); err != nil {
		return r, fmt.Errorf("decode reminder document failed: %w", err)
	}
	r.Version = version
	return r, nil
}

// scanPassRun scans a PassRun from a single row.
func scanPassRun(row rowScanner) (PassRun, error) {
	var p PassRun
	var slotUnix int64
	var lastError sql.NullString
	var lockedUnix sql.NullInt64
	err := row.Scan(
		&p.ID, &p.Kind, &slotUnix, &p.Status, &p.Attempt,
		&lastError, &lockedUnix, &p.DedupeKey, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}
	p.SlotAt = time.Unix(slotUnix, 0).UTC()
	p.LastError = lastError.String
	p.LockedAt = timeFromUnix(lockedUnix)
	return p, nil
}

// scanAttempt scans a NotificationAttempt from a single row.
func scanAttempt(row rowScanner) (models.NotificationAttempt, error) {
	var a models.NotificationAttempt
	var errText sql.NullString
	err := row.Scan(&a.ID, &a.UserID, &a.Type, &a.Title, &a.Body, &a.Status, &errText, &a.CreatedAt)
	if err != nil {
		return a, fmt.Errorf("scan notification attempt failed: %w", err)
	}
	a.Error = errText.String
	return a, nil
}
