// Package testutil provides common test utilities and helpers for JogPipe tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/JogPipe/internal/models"
	"github.com/BTreeMap/JogPipe/internal/store"
)

// ErrSendFailed is returned by RecordingSender for destinations marked as failing.
var ErrSendFailed = errors.New("send failed")

// RecordingSender is a push.Sender that records every message it is asked to send.
type RecordingSender struct {
	mu      sync.Mutex
	Sent    []models.Message
	failing map[string]bool
}

// NewRecordingSender creates a RecordingSender.
func NewRecordingSender() *RecordingSender {
	return &RecordingSender{failing: make(map[string]bool)}
}

// FailFor makes sends to destination fail.
func (s *RecordingSender) FailFor(destination string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[destination] = true
}

func (s *RecordingSender) Send(_ context.Context, msg models.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sent = append(s.Sent, msg)
	if s.failing[msg.To] {
		return "", ErrSendFailed
	}
	return "rcpt-" + msg.To, nil
}

// Messages returns a copy of everything sent so far.
func (s *RecordingSender) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.Sent...)
}

// OfType returns the sent messages tagged with typ.
func (s *RecordingSender) OfType(typ models.NotificationType) []models.Message {
	var out []models.Message
	for _, m := range s.Messages() {
		if m.Type() == typ {
			out = append(out, m)
		}
	}
	return out
}

// Reset forgets recorded messages.
func (s *RecordingSender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sent = nil
}

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time { return &t }

// NewReminder builds an enabled, upcoming, non-step reminder due at due with one
// interval group.
func NewReminder(userID, id string, due time.Time, intervals ...int) *models.Reminder {
	r := &models.Reminder{
		UserID:          userID,
		ID:              id,
		Title:           "Reminder " + id,
		Category:        models.CategoryGeneral,
		DueDate:         TimePtr(due),
		CompleteStatus:  models.StatusUpcoming,
		ReminderEnabled: true,
	}
	if len(intervals) > 0 {
		r.ReminderIntervals = []models.IntervalGroup{{Intervals: intervals, CountOfIntervals: len(intervals)}}
	}
	return r
}

// NewStepReminder builds a step-based reminder with one step per due time.
func NewStepReminder(userID, id string, category models.Category, stepDues []time.Time, intervals ...int) *models.Reminder {
	last := stepDues[len(stepDues)-1]
	r := NewReminder(userID, id, last, intervals...)
	r.Category = category
	r.IsStepBased = true
	for i, due := range stepDues {
		r.Steps = append(r.Steps, models.Step{
			ID:      "step" + string(rune('1'+i)),
			Title:   "Step " + string(rune('1'+i)),
			DueDate: TimePtr(due),
		})
	}
	return r
}

// SeedReminder inserts r into s, failing the test on error or conflict.
func SeedReminder(t testing.TB, s store.ReminderRepo, r *models.Reminder) {
	t.Helper()
	conflicts, err := s.CommitTransitions(context.Background(), []store.Transition{{Reminder: r}})
	if err != nil {
		t.Fatalf("seed reminder %s: %v", r.ID, err)
	}
	if len(conflicts) > 0 {
		t.Fatalf("seed reminder %s: already exists", r.ID)
	}
}

// SeedUser inserts a user with a push token.
func SeedUser(t testing.TB, s store.UserRepo, userID, token string, focus bool) {
	t.Helper()
	if err := s.UpsertUser(context.Background(), models.User{UserID: userID, PushToken: token, FocusMode: focus}); err != nil {
		t.Fatalf("seed user %s: %v", userID, err)
	}
}

// MustGetReminder loads a reminder or fails the test.
func MustGetReminder(t testing.TB, s store.ReminderRepo, userID, id string) *models.Reminder {
	t.Helper()
	r, err := s.GetReminder(context.Background(), userID, id)
	if err != nil {
		t.Fatalf("get reminder %s/%s: %v", userID, id, err)
	}
	return r
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t testing.TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes the response envelope and validates the status field.
func AssertJSONResponse(t testing.TB, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t testing.TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// MustMarshalJSON marshals v or fails the test.
func MustMarshalJSON(t testing.TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals data into target or fails the test.
func MustUnmarshalJSON(t testing.TB, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
