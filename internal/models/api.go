package models

import "time"

// APIStatus is the status field of the response envelope.
type APIStatus string

const (
	APIStatusOK    APIStatus = "ok"
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

// ReminderWrite is the client-writable subset of a reminder. completeStatus is derived
// and never accepted from clients.
type ReminderWrite struct {
	Title             string          `json:"title"`
	Description       string          `json:"description,omitempty"`
	Category          Category        `json:"category"`
	DueDate           *time.Time      `json:"dueDate,omitempty"`
	Completed         bool            `json:"completed"`
	CompletedAt       *time.Time      `json:"completedAt,omitempty"`
	ReminderEnabled   *bool           `json:"reminderEnabled,omitempty"`
	IsStepBased       bool            `json:"isStepBased"`
	ReminderIntervals []IntervalGroup `json:"reminderIntervals"`
	Steps             []StepWrite     `json:"steps,omitempty"`
}

// StepWrite is the client-writable subset of a step.
type StepWrite struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	DueDate   *time.Time `json:"dueDate,omitempty"`
	Completed bool       `json:"completed"`
}

// CompletionWrite marks a reminder completed or not.
type CompletionWrite struct {
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// UserWrite updates delivery preferences. Setting QuestionnaireIntervalDays schedules
// the next symptom check-in that many days from now; zero disables it.
type UserWrite struct {
	PushToken                 *string `json:"pushToken,omitempty"`
	FocusMode                 *bool   `json:"focusMode,omitempty"`
	QuestionnaireIntervalDays *int    `json:"questionnaireIntervalDays,omitempty"`
}
