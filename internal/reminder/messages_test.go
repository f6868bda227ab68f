package reminder

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BTreeMap/JogPipe/internal/models"
)

func TestFormatLead(t *testing.T) {
	cases := map[int]string{
		0:    "now",
		1:    "1 minute",
		15:   "15 minutes",
		60:   "1 hour",
		120:  "2 hours",
		90:   "1h 30m",
		1440: "1 day",
		2880: "2 days",
	}
	for in, want := range cases {
		assert.Equal(t, want, formatLead(in), "minutes=%d", in)
	}
}

func TestLeadPhrasingTableIsComplete(t *testing.T) {
	for _, med := range []bool{false, true} {
		for _, step := range []bool{false, true} {
			k := phrasing{medication: med, stepBased: step}
			assert.NotNil(t, leadPhrasing[k], "lead %+v", k)
			assert.NotNil(t, duePhrasing[k], "due %+v", k)
		}
	}
}

func TestLeadMessage_Plain(t *testing.T) {
	r := leadReminder()
	m := LeadMessage("tok", r, Firing{StepIndex: -1, Minutes: 15})
	assert.Equal(t, "tok", m.To)
	assert.Equal(t, models.DefaultSound, m.Sound)
	assert.Equal(t, "Morning run", m.Title)
	assert.Equal(t, `"Morning run" is due in 15 minutes.`, m.Body)
	assert.Equal(t, "u1", m.UserID())
	assert.Equal(t, models.NotificationReminder, m.Type())
	assert.Equal(t, "r1", m.Data[models.DataKeyReminderID])
	assert.Equal(t, "15", m.Data[models.DataKeyInterval])
	assert.NotContains(t, m.Data, models.DataKeyStepID)
}

func TestLeadMessage_MedicationDose(t *testing.T) {
	r := leadReminder()
	r.Category = models.CategoryMedication
	r.Title = "Ibuprofen"
	m := LeadMessage("tok", r, Firing{StepIndex: -1, Minutes: 60})
	assert.Equal(t, "Your dose of Ibuprofen is due in 1 hour.", m.Body)
}

func TestLeadMessage_StepPhrasingCountsRemaining(t *testing.T) {
	r := stepReminder()
	r.Category = models.CategoryExercise
	r.Title = "Training"
	r.Steps[0].Completed = true
	m := LeadMessage("tok", r, Firing{StepIndex: 1, StepID: "s2", Minutes: 10})
	assert.Equal(t, `Step "noon" is due in 10 minutes. 2 steps left.`, m.Body)
	assert.Equal(t, "s2", m.Data[models.DataKeyStepID])
}

func TestLeadMessage_StepDose(t *testing.T) {
	r := stepReminder()
	m := LeadMessage("tok", r, Firing{StepIndex: 0, StepID: "s1", Minutes: 10})
	assert.Equal(t, "Your morning dose of Vitamins is due in 10 minutes.", m.Body)
}

func TestDueMessage(t *testing.T) {
	r := leadReminder()
	m := DueMessage("tok", r, DueNowHit{StepIndex: -1})
	assert.Equal(t, models.NotificationReminderDue, m.Type())
	assert.Equal(t, `"Morning run" is due now.`, m.Body)

	sr := stepReminder()
	m = DueMessage("tok", sr, DueNowHit{StepIndex: 1, StepID: "s2"})
	assert.Equal(t, "Time for your noon dose of Vitamins.", m.Body)
	assert.Equal(t, "s2", m.Data[models.DataKeyStepID])
}

func TestStreakMessage(t *testing.T) {
	m := StreakMessage("tok", models.StreakResult{UserID: "u1", CurrentStreak: 4, PreviousStreak: 3, BestStreak: 4, Continued: true})
	assert.Equal(t, "Streak continued", m.Title)
	assert.Contains(t, m.Body, "4-day streak")
	assert.Contains(t, m.Body, "best yet")
	assert.Equal(t, models.NotificationStreak, m.Type())

	m = StreakMessage("tok", models.StreakResult{UserID: "u1", CurrentStreak: 0, PreviousStreak: 3, BestStreak: 5})
	assert.Equal(t, "Streak reset", m.Title)
	assert.Contains(t, m.Body, "3-day streak ended")
}

func TestSymptomMessage(t *testing.T) {
	m := SymptomMessage("tok", "u9")
	assert.Equal(t, "u9", m.UserID())
	assert.Equal(t, models.NotificationSymptomCheckin, m.Type())
}
