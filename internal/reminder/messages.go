package reminder

import (
	"fmt"
	"strconv"

	"github.com/BTreeMap/JogPipe/internal/models"
)

// phrasing selects a body template.
type phrasing struct {
	medication bool
	stepBased  bool
}

type leadFormatter func(r *models.Reminder, step *models.Step, lead string) (title, body string)

// leadPhrasing is the body dispatch table for lead-time notifications.
var leadPhrasing = map[phrasing]leadFormatter{
	{medication: false, stepBased: false}: func(r *models.Reminder, _ *models.Step, lead string) (string, string) {
		return r.Title, fmt.Sprintf("%q is due in %s.", r.Title, lead)
	},
	{medication: true, stepBased: false}: func(r *models.Reminder, _ *models.Step, lead string) (string, string) {
		return r.Title, fmt.Sprintf("Your dose of %s is due in %s.", r.Title, lead)
	},
	{medication: false, stepBased: true}: func(r *models.Reminder, s *models.Step, lead string) (string, string) {
		return r.Title, fmt.Sprintf("Step %q is due in %s. %s left.", s.Title, lead, stepsLeft(r.IncompleteSteps()))
	},
	{medication: true, stepBased: true}: func(r *models.Reminder, s *models.Step, lead string) (string, string) {
		return r.Title, fmt.Sprintf("Your %s dose of %s is due in %s.", s.Title, r.Title, lead)
	},
}

var duePhrasing = map[phrasing]leadFormatter{
	{medication: false, stepBased: false}: func(r *models.Reminder, _ *models.Step, _ string) (string, string) {
		return r.Title, fmt.Sprintf("%q is due now.", r.Title)
	},
	{medication: true, stepBased: false}: func(r *models.Reminder, _ *models.Step, _ string) (string, string) {
		return r.Title, fmt.Sprintf("Time to take %s.", r.Title)
	},
	{medication: false, stepBased: true}: func(r *models.Reminder, s *models.Step, _ string) (string, string) {
		return r.Title, fmt.Sprintf("Step %q is due now. %s left.", s.Title, stepsLeft(r.IncompleteSteps()))
	},
	{medication: true, stepBased: true}: func(r *models.Reminder, s *models.Step, _ string) (string, string) {
		return r.Title, fmt.Sprintf("Time for your %s dose of %s.", s.Title, r.Title)
	},
}

func stepsLeft(n int) string {
	if n == 1 {
		return "1 step"
	}
	return strconv.Itoa(n) + " steps"
}

// formatLead renders a lead time in minutes as text.
func formatLead(minutes int) string {
	switch {
	case minutes <= 0:
		return "now"
	case minutes == 1:
		return "1 minute"
	case minutes < 60:
		return fmt.Sprintf("%d minutes", minutes)
	case minutes%1440 == 0:
		d := minutes / 1440
		if d == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", d)
	case minutes%60 == 0:
		h := minutes / 60
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	default:
		return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
	}
}

func keyFor(r *models.Reminder) phrasing {
	return phrasing{medication: r.Category == models.CategoryMedication, stepBased: r.IsStepBased}
}

func stepAt(r *models.Reminder, idx int) *models.Step {
	if idx < 0 || idx >= len(r.Steps) {
		return nil
	}
	return &r.Steps[idx]
}

func reminderData(t models.NotificationType, r *models.Reminder, stepID string) map[string]string {
	data := map[string]string{
		models.DataKeyUserID:     r.UserID,
		models.DataKeyType:       string(t),
		models.DataKeyReminderID: r.ID,
	}
	if stepID != "" {
		data[models.DataKeyStepID] = stepID
	}
	return data
}

// LeadMessage builds the lead-time notification for one firing.
func LeadMessage(to string, r *models.Reminder, f Firing) models.Message {
	key := keyFor(r)
	step := stepAt(r, f.StepIndex)
	if step == nil {
		key.stepBased = false
	}
	title, body := leadPhrasing[key](r, step, formatLead(f.Minutes))
	data := reminderData(models.NotificationReminder, r, f.StepID)
	data[models.DataKeyInterval] = strconv.Itoa(f.Minutes)
	return models.Message{To: to, Sound: models.DefaultSound, Title: title, Body: body, Data: data}
}

// DueMessage builds the one-shot notification sent in a unit's due minute.
func DueMessage(to string, r *models.Reminder, h DueNowHit) models.Message {
	key := keyFor(r)
	step := stepAt(r, h.StepIndex)
	if step == nil {
		key.stepBased = false
	}
	title, body := duePhrasing[key](r, step, "")
	return models.Message{
		To:    to,
		Sound: models.DefaultSound,
		Title: title,
		Body:  body,
		Data:  reminderData(models.NotificationReminderDue, r, h.StepID),
	}
}

// StreakMessage builds the end-of-day streak update.
func StreakMessage(to string, res models.StreakResult) models.Message {
	var title, body string
	if res.Continued {
		title = "Streak continued"
		body = fmt.Sprintf("Nice work! You're on a %d-day streak.", res.CurrentStreak)
		if res.CurrentStreak == res.BestStreak && res.CurrentStreak > 1 {
			body += " That's your best yet."
		}
	} else {
		title = "Streak reset"
		if res.PreviousStreak > 0 {
			body = fmt.Sprintf("Your %d-day streak ended. Complete a reminder tomorrow to start a new one.", res.PreviousStreak)
		} else {
			body = "Complete a reminder tomorrow to start a streak."
		}
	}
	return models.Message{
		To:    to,
		Sound: models.DefaultSound,
		Title: title,
		Body:  body,
		Data: map[string]string{
			models.DataKeyUserID: res.UserID,
			models.DataKeyType:   string(models.NotificationStreak),
		},
	}
}

// SymptomMessage builds the periodic symptom questionnaire prompt.
func SymptomMessage(to, userID string) models.Message {
	return models.Message{
		To:    to,
		Sound: models.DefaultSound,
		Title: "How are you feeling?",
		Body:  "It's time for your symptom check-in.",
		Data: map[string]string{
			models.DataKeyUserID: userID,
			models.DataKeyType:   string(models.NotificationSymptomCheckin),
		},
	}
}
