// Package models defines the core data structures for JogPipe.
//
// It includes reminders, their steps and interval groups, per-owner statistics, and the
// outbound notification shapes shared across modules.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CompleteStatus is the derived lifecycle state of a reminder or step.
type CompleteStatus string

const (
	StatusUpcoming        CompleteStatus = "upcoming"
	StatusOverdue         CompleteStatus = "overdue"
	StatusCompletedOnTime CompleteStatus = "completedOnTime"
	StatusCompletedLate   CompleteStatus = "completedLate"
	// StatusIncomplete is the terminal "missed" state set by the nightly sweep.
	StatusIncomplete CompleteStatus = "incomplete"
)

// Category classifies a reminder; Medication switches message phrasing to doses.
type Category string

const (
	CategoryGeneral     Category = "General"
	CategoryMedication  Category = "Medication"
	CategoryExercise    Category = "Exercise"
	CategoryAppointment Category = "Appointment"
	CategoryChore       Category = "Chore"
)

var (
	ErrInvalidStatus   = errors.New("invalid complete status")
	ErrInvalidCategory = errors.New("invalid category")
	ErrEmptyUserID     = errors.New("user id cannot be empty")
	ErrEmptyReminderID = errors.New("reminder id cannot be empty")
	ErrEmptyTitle      = errors.New("title cannot be empty")
	ErrInvalidInterval = errors.New("interval minutes must be positive")
	ErrInvalidBudget   = errors.New("interval group fire budget is out of range")
)

// Valid reports whether s is one of the five lifecycle states.
func (s CompleteStatus) Valid() bool {
	switch s {
	case StatusUpcoming, StatusOverdue, StatusCompletedOnTime, StatusCompletedLate, StatusIncomplete:
		return true
	}
	return false
}

// IsCompleted reports whether s is one of the two completed states.
func (s CompleteStatus) IsCompleted() bool {
	return s == StatusCompletedOnTime || s == StatusCompletedLate
}

// UnmarshalJSON rejects unknown states. An empty string is accepted and means "not yet derived".
func (s *CompleteStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	st := CompleteStatus(raw)
	if raw != "" && !st.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	*s = st
	return nil
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryGeneral, CategoryMedication, CategoryExercise, CategoryAppointment, CategoryChore:
		return true
	}
	return false
}

// IntervalGroup is a lead-time notification schedule with a fire budget.
type IntervalGroup struct {
	Intervals        []int `json:"intervals"` // minutes before the due time
	CurrentInterval  int   `json:"currentInterval"`
	CountOfIntervals int   `json:"countOfIntervals"`
	HasTriggered     bool  `json:"hasTriggered"`
}

// Exhausted reports whether the group has spent its budget.
func (g IntervalGroup) Exhausted() bool {
	return g.HasTriggered || g.CurrentInterval >= g.CountOfIntervals
}

// Template returns a copy of g with zeroed counters.
func (g IntervalGroup) Template() IntervalGroup {
	return IntervalGroup{
		Intervals:        append([]int(nil), g.Intervals...),
		CountOfIntervals: g.CountOfIntervals,
	}
}

// Validate checks interval values and the budget.
func (g IntervalGroup) Validate() error {
	for _, m := range g.Intervals {
		if m <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidInterval, m)
		}
	}
	if g.CountOfIntervals < 0 || g.CurrentInterval < 0 || g.CurrentInterval > g.CountOfIntervals {
		return fmt.Errorf("%w: current=%d count=%d", ErrInvalidBudget, g.CurrentInterval, g.CountOfIntervals)
	}
	return nil
}

// Step is an ordered sub-unit of a step-based reminder.
type Step struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	DueDate        *time.Time     `json:"dueDate,omitempty"`
	Completed      bool           `json:"completed"`
	CompleteStatus CompleteStatus `json:"completeStatus,omitempty"`
	// ReminderIntervals is seeded from the parent's groups the first time the step is evaluated.
	ReminderIntervals []IntervalGroup `json:"reminderIntervals,omitempty"`
}

// Reminder is a user task with a due instant and a derived lifecycle status.
type Reminder struct {
	UserID            string          `json:"userId"`
	ID                string          `json:"id"`
	Title             string          `json:"title"`
	Description       string          `json:"description,omitempty"`
	Category          Category        `json:"category"`
	DueDate           *time.Time      `json:"dueDate,omitempty"`
	Completed         bool            `json:"completed"`
	CompletedAt       *time.Time      `json:"completedAt,omitempty"`
	CompleteStatus    CompleteStatus  `json:"completeStatus"`
	Deleted           bool            `json:"deleted"`
	ReminderEnabled   bool            `json:"reminderEnabled"`
	IsStepBased       bool            `json:"isStepBased"`
	ReminderIntervals []IntervalGroup `json:"reminderIntervals"`
	Steps             []Step          `json:"steps,omitempty"`
	Version           int64           `json:"version"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// Validate checks the fields a client is allowed to write.
func (r *Reminder) Validate() error {
	if r.UserID == "" {
		return ErrEmptyUserID
	}
	if r.ID == "" {
		return ErrEmptyReminderID
	}
	if r.Title == "" {
		return ErrEmptyTitle
	}
	if r.Category != "" && !r.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, r.Category)
	}
	for i, g := range r.ReminderIntervals {
		if err := g.Validate(); err != nil {
			return fmt.Errorf("reminderIntervals[%d]: %w", i, err)
		}
	}
	return nil
}

// Clone returns a deep copy so passes can mutate state without aliasing the caller's slices.
func (r *Reminder) Clone() *Reminder {
	if r == nil {
		return nil
	}
	c := *r
	c.DueDate = cloneTime(r.DueDate)
	c.CompletedAt = cloneTime(r.CompletedAt)
	c.ReminderIntervals = cloneGroups(r.ReminderIntervals)
	if r.Steps != nil {
		c.Steps = make([]Step, len(r.Steps))
		for i, s := range r.Steps {
			s.DueDate = cloneTime(s.DueDate)
			s.ReminderIntervals = cloneGroups(s.ReminderIntervals)
			c.Steps[i] = s
		}
	}
	return &c
}

// IncompleteSteps counts steps that are not completed.
func (r *Reminder) IncompleteSteps() int {
	n := 0
	for _, s := range r.Steps {
		if !s.Completed {
			n++
		}
	}
	return n
}

// CompletedUnits counts a reminder's completed outcomes for streak purposes:
// completed steps for step-based reminders (plus the parent itself), or the reminder alone.
func (r *Reminder) CompletedUnits() int {
	n := 0
	if r.CompleteStatus.IsCompleted() {
		n++
	}
	if r.IsStepBased {
		for _, s := range r.Steps {
			if s.CompleteStatus.IsCompleted() {
				n++
			}
		}
	}
	return n
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneGroups(gs []IntervalGroup) []IntervalGroup {
	if gs == nil {
		return nil
	}
	out := make([]IntervalGroup, len(gs))
	for i, g := range gs {
		g.Intervals = append([]int(nil), g.Intervals...)
		out[i] = g
	}
	return out
}
