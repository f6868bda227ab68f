package models

import "time"

// NotificationType tags an outbound message and keys the interaction counters.
type NotificationType string

const (
	NotificationReminder       NotificationType = "reminder"
	NotificationReminderDue    NotificationType = "reminder_due"
	NotificationStreak         NotificationType = "streak"
	NotificationSymptomCheckin NotificationType = "symptom_checkin"
)

// Keys in Message.Data.
const (
	DataKeyUserID     = "userId"
	DataKeyType       = "type"
	DataKeyReminderID = "reminderId"
	DataKeyStepID     = "stepId"
	DataKeyInterval   = "interval"
)

// DefaultSound is attached to every push.
const DefaultSound = "default"

// Message is one outbound push.
type Message struct {
	To    string            `json:"to"`
	Sound string            `json:"sound,omitempty"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
}

// UserID returns the owner id carried in the data payload.
func (m Message) UserID() string {
	return m.Data[DataKeyUserID]
}

// Type returns the notification type carried in the data payload.
func (m Message) Type() NotificationType {
	return NotificationType(m.Data[DataKeyType])
}

// AttemptStatus is the recorded outcome of a dispatch attempt.
type AttemptStatus string

const (
	AttemptSent    AttemptStatus = "sent"
	AttemptFailed  AttemptStatus = "failed"
	AttemptDropped AttemptStatus = "dropped"
)

// NotificationAttempt is one row of the send-attempt log.
type NotificationAttempt struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	Status    AttemptStatus    `json:"status"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}
