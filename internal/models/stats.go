package models

import "time"

// DayLayout is the key format for per-day buckets, in the configured civil zone.
const DayLayout = "2006-01-02"

// User holds the delivery preferences the engine needs for an owner.
type User struct {
	UserID    string    `json:"userId"`
	PushToken string    `json:"pushToken,omitempty"`
	FocusMode bool      `json:"focusMode"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CompletionRate holds lifetime or per-day outcome counters.
type CompletionRate struct {
	CompletedOnTimeTotal int64 `json:"completedOnTimeTotal"`
	CompletedLateTotal   int64 `json:"completedLateTotal"`
	MissedJogsTotal      int64 `json:"missedJogsTotal"`
}

// JogStats is the streak and completion part of UserStats.
type JogStats struct {
	CurrentStreak     int                       `json:"currentStreak"`
	PreviousStreak    int                       `json:"previousStreak"`
	BestStreak        int                       `json:"bestStreak"`
	LastStreakDate    string                    `json:"lastStreakDate,omitempty"`
	JogCompletionRate CompletionRate            `json:"jogCompletionRate"`
	DailyJogStats     map[string]CompletionRate `json:"dailyJogStats,omitempty"`
}

// SymptomStats holds questionnaire scheduling fields.
type SymptomStats struct {
	LastQuestionnaireAt       *time.Time `json:"lastQuestionnaireAt,omitempty"`
	NextQuestionnaireDue      *time.Time `json:"nextQuestionnaireDue,omitempty"`
	QuestionnaireIntervalDays int        `json:"questionnaireIntervalDays"`
}

// InteractionCounter counts send attempts for one notification type.
type InteractionCounter struct {
	Total int64 `json:"total"`
}

// AppUsageStats tracks notification send attempts.
type AppUsageStats struct {
	NotificationInteractionRate map[NotificationType]InteractionCounter `json:"notificationInteractionRate,omitempty"`
	TotalNotificationsSent      int64                                   `json:"totalNotificationsSent"`
}

// UserStats is the per-owner aggregate statistics record.
type UserStats struct {
	UserID        string        `json:"userId"`
	JogStats      JogStats      `json:"jogStats"`
	SymptomStats  SymptomStats  `json:"symptomStats"`
	AppUsageStats AppUsageStats `json:"appUsageStats"`
}

// StatusBucket names the completion counter a status feeds, if any.
type StatusBucket string

const (
	BucketNone            StatusBucket = ""
	BucketCompletedOnTime StatusBucket = "completedOnTime"
	BucketCompletedLate   StatusBucket = "completedLate"
	BucketMissed          StatusBucket = "missed"
)

// BucketFor maps a status to its counter. upcoming and overdue have none.
func BucketFor(s CompleteStatus) StatusBucket {
	switch s {
	case StatusCompletedOnTime:
		return BucketCompletedOnTime
	case StatusCompletedLate:
		return BucketCompletedLate
	case StatusIncomplete:
		return BucketMissed
	}
	return BucketNone
}

// StreakResult is the outcome of one end-of-day streak update.
type StreakResult struct {
	UserID         string `json:"userId"`
	CurrentStreak  int    `json:"currentStreak"`
	PreviousStreak int    `json:"previousStreak"`
	BestStreak     int    `json:"bestStreak"`
	Continued      bool   `json:"continued"`
}
