package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/JogPipe/internal/models"
	"github.com/BTreeMap/JogPipe/internal/reminder"
)

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// InMemoryStore is a process-local Store for development and tests. All operations
// run under one mutex, which gives them the same atomicity as the SQL transactions.
type InMemoryStore struct {
	mu        sync.Mutex
	reminders map[ReminderKey]models.Reminder
	users     map[string]models.User
	stats     map[string]*models.UserStats
	attempts  []models.NotificationAttempt
	dedup     map[string]DedupRecord
	passes    map[string]*PassRun
	passKeys  map[string]string
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		reminders: make(map[ReminderKey]models.Reminder),
		users:     make(map[string]models.User),
		stats:     make(map[string]*models.UserStats),
		dedup:     make(map[string]DedupRecord),
		passes:    make(map[string]*PassRun),
		passKeys:  make(map[string]string),
	}
}

// Close is a no-op.
func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) GetReminder(_ context.Context, userID, id string) (*models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[ReminderKey{UserID: userID, ID: id}]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (s *InMemoryStore) ListReminders(_ context.Context, q ReminderQuery) ([]models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reminder
	for _, r := range s.reminders {
		if !matches(&r, q) {
			continue
		}
		out = append(out, *r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func matches(r *models.Reminder, q ReminderQuery) bool {
	if r.Deleted {
		return false
	}
	if q.UserID != "" && r.UserID != q.UserID {
		return false
	}
	if q.OpenOnly && r.Completed {
		return false
	}
	if q.EnabledOnly && !r.ReminderEnabled {
		return false
	}
	if len(q.Statuses) > 0 {
		found := false
		for _, st := range q.Statuses {
			if r.CompleteStatus == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.DueFrom != nil || q.DueBefore != nil {
		if r.DueDate == nil {
			return false
		}
		due := r.DueDate.Unix()
		if q.DueFrom != nil && due < q.DueFrom.Unix() {
			return false
		}
		if q.DueBefore != nil && due >= q.DueBefore.Unix() {
			return false
		}
	}
	return true
}

func (s *InMemoryStore) CommitTransitions(_ context.Context, ts []Transition) ([]ReminderKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	var conflicts []ReminderKey
	for _, t := range ts {
		r := t.Reminder
		key := ReminderKey{UserID: r.UserID, ID: r.ID}
		cur, exists := s.reminders[key]
		if (r.Version == 0 && exists) || (r.Version != 0 && (!exists || cur.Version != r.Version)) {
			conflicts = append(conflicts, key)
			continue
		}
		r.Version++
		r.UpdatedAt = now
		s.reminders[key] = *r.Clone()
		if !t.Inc.IsZero() {
			s.addToBucket(t.Inc, 1)
		}
		if !t.Dec.IsZero() {
			s.addToBucket(t.Dec, -1)
		}
	}
	return conflicts, nil
}

func (s *InMemoryStore) statsFor(userID string) *models.UserStats {
	st, ok := s.stats[userID]
	if !ok {
		st = &models.UserStats{UserID: userID}
		s.stats[userID] = st
	}
	return st
}

func clampAdd(v *int64, delta int64) {
	*v += delta
	if *v < 0 {
		*v = 0
	}
}

func bump(c *models.CompletionRate, b models.StatusBucket, delta int64) {
	switch b {
	case models.BucketCompletedOnTime:
		clampAdd(&c.CompletedOnTimeTotal, delta)
	case models.BucketCompletedLate:
		clampAdd(&c.CompletedLateTotal, delta)
	case models.BucketMissed:
		clampAdd(&c.MissedJogsTotal, delta)
	}
}

func (s *InMemoryStore) addToBucket(b BucketDelta, delta int64) {
	st := s.statsFor(b.UserID)
	bump(&st.JogStats.JogCompletionRate, b.Bucket, delta)
	if b.Day == "" {
		return
	}
	if st.JogStats.DailyJogStats == nil {
		st.JogStats.DailyJogStats = make(map[string]models.CompletionRate)
	}
	day := st.JogStats.DailyJogStats[b.Day]
	bump(&day, b.Bucket, delta)
	st.JogStats.DailyJogStats[b.Day] = day
}

func (s *InMemoryStore) UpsertUser(_ context.Context, u models.User) error {
	if u.UserID == "" {
		return models.ErrEmptyUserID
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.UserID] = u
	return nil
}

func (s *InMemoryStore) GetUser(_ context.Context, userID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *InMemoryStore) GetUsers(_ context.Context, ids []string) (map[string]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]models.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (s *InMemoryStore) GetUserStats(_ context.Context, userID string) (*models.UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[userID]
	if !ok {
		return &models.UserStats{UserID: userID}, nil
	}
	c := *st
	if st.JogStats.DailyJogStats != nil {
		c.JogStats.DailyJogStats = make(map[string]models.CompletionRate, len(st.JogStats.DailyJogStats))
		for k, v := range st.JogStats.DailyJogStats {
			c.JogStats.DailyJogStats[k] = v
		}
	}
	if st.AppUsageStats.NotificationInteractionRate != nil {
		c.AppUsageStats.NotificationInteractionRate = make(map[models.NotificationType]models.InteractionCounter, len(st.AppUsageStats.NotificationInteractionRate))
		for k, v := range st.AppUsageStats.NotificationInteractionRate {
			c.AppUsageStats.NotificationInteractionRate[k] = v
		}
	}
	return &c, nil
}

func (s *InMemoryStore) ApplyStreak(_ context.Context, userID, day string, completedAny bool, _ time.Time) (models.StreakResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := models.StreakResult{UserID: userID, Continued: completedAny}
	st := s.statsFor(userID)
	js := &st.JogStats
	if js.LastStreakDate != "" && js.LastStreakDate >= day {
		return res, false, nil
	}
	js.CurrentStreak, js.PreviousStreak, js.BestStreak = reminder.NextStreak(js.CurrentStreak, js.BestStreak, completedAny)
	js.LastStreakDate = day
	res.CurrentStreak, res.PreviousStreak, res.BestStreak = js.CurrentStreak, js.PreviousStreak, js.BestStreak
	return res, true, nil
}

func (s *InMemoryStore) ScheduleQuestionnaire(_ context.Context, userID string, intervalDays int, nextDue *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.statsFor(userID)
	st.SymptomStats.QuestionnaireIntervalDays = intervalDays
	if nextDue == nil {
		st.SymptomStats.NextQuestionnaireDue = nil
		return nil
	}
	due := time.Unix(nextDue.Unix(), 0).UTC()
	st.SymptomStats.NextQuestionnaireDue = &due
	return nil
}

func (s *InMemoryStore) ListQuestionnairesDue(_ context.Context, now time.Time) ([]QuestionnaireDue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []QuestionnaireDue
	for id, st := range s.stats {
		ss := st.SymptomStats
		if ss.NextQuestionnaireDue == nil || ss.QuestionnaireIntervalDays <= 0 || ss.NextQuestionnaireDue.Unix() > now.Unix() {
			continue
		}
		out = append(out, QuestionnaireDue{UserID: id, DueAt: *ss.NextQuestionnaireDue, IntervalDays: ss.QuestionnaireIntervalDays})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *InMemoryStore) AdvanceQuestionnaire(_ context.Context, userID string, expectedDue, sentAt, nextDue time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[userID]
	if !ok || st.SymptomStats.NextQuestionnaireDue == nil || st.SymptomStats.NextQuestionnaireDue.Unix() != expectedDue.Unix() {
		return false, nil
	}
	next := time.Unix(nextDue.Unix(), 0).UTC()
	sent := time.Unix(sentAt.Unix(), 0).UTC()
	st.SymptomStats.NextQuestionnaireDue = &next
	st.SymptomStats.LastQuestionnaireAt = &sent
	return true, nil
}

func (s *InMemoryStore) RecordAttempt(_ context.Context, a models.NotificationAttempt, counted bool) error {
	if a.ID == "" {
		a.ID = newID("ntf_")
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, a)
	if !counted {
		return nil
	}
	st := s.statsFor(a.UserID)
	if st.AppUsageStats.NotificationInteractionRate == nil {
		st.AppUsageStats.NotificationInteractionRate = make(map[models.NotificationType]models.InteractionCounter)
	}
	c := st.AppUsageStats.NotificationInteractionRate[a.Type]
	c.Total++
	st.AppUsageStats.NotificationInteractionRate[a.Type] = c
	st.AppUsageStats.TotalNotificationsSent++
	return nil
}

func (s *InMemoryStore) ListAttempts(_ context.Context, userID string, limit int) ([]models.NotificationAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.NotificationAttempt
	for i := len(s.attempts) - 1; i >= 0 && len(out) < limit; i-- {
		if s.attempts[i].UserID == userID {
			out = append(out, s.attempts[i])
		}
	}
	return out, nil
}

func (s *InMemoryStore) IsDuplicate(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dedup[key]
	return ok, nil
}

func (s *InMemoryStore) RecordOnce(_ context.Context, key, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedup[key]; ok {
		return false, nil
	}
	s.dedup[key] = DedupRecord{DedupeKey: key, UserID: userID, CreatedAt: time.Now().UTC()}
	return true, nil
}

func (s *InMemoryStore) PruneDedup(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, rec := range s.dedup {
		if rec.CreatedAt.Before(cutoff) {
			delete(s.dedup, k)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) EnqueuePass(_ context.Context, kind string, slot time.Time) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := PassDedupeKey(kind, slot)
	if id, ok := s.passKeys[key]; ok {
		return id, false, nil
	}
	now := time.Now().UTC()
	p := &PassRun{
		ID:        newID("pass_"),
		Kind:      kind,
		SlotAt:    time.Unix(slot.Unix(), 0).UTC(),
		Status:    PassStatusQueued,
		DedupeKey: key,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.passes[p.ID] = p
	s.passKeys[key] = p.ID
	return p.ID, true, nil
}

func (s *InMemoryStore) ClaimDuePasses(_ context.Context, now time.Time, limit int) ([]PassRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*PassRun
	for _, p := range s.passes {
		if p.Status == PassStatusQueued && p.SlotAt.Unix() <= now.Unix() {
			due = append(due, p)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].SlotAt.Before(due[j].SlotAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]PassRun, 0, len(due))
	locked := time.Unix(now.Unix(), 0).UTC()
	for _, p := range due {
		p.Status = PassStatusRunning
		p.Attempt++
		p.LockedAt = &locked
		p.UpdatedAt = time.Now().UTC()
		out = append(out, *p)
	}
	return out, nil
}

func (s *InMemoryStore) setPassStatus(id string, status PassStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.passes[id]
	if !ok {
		return nil
	}
	p.Status = status
	p.LastError = errMsg
	p.LockedAt = nil
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) CompletePass(_ context.Context, id string) error {
	return s.setPassStatus(id, PassStatusDone, "")
}

func (s *InMemoryStore) FailPass(_ context.Context, id string, errMsg string) error {
	return s.setPassStatus(id, PassStatusFailed, errMsg)
}

func (s *InMemoryStore) CancelPass(_ context.Context, id string) error {
	return s.setPassStatus(id, PassStatusCanceled, "")
}

func (s *InMemoryStore) RequeueStalePasses(_ context.Context, staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.passes {
		if p.Status == PassStatusRunning && p.LockedAt != nil && p.LockedAt.Unix() < staleBefore.Unix() {
			p.Status = PassStatusQueued
			p.LockedAt = nil
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) CancelLatePasses(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.passes {
		if p.Status == PassStatusQueued && p.SlotAt.Unix() < cutoff.Unix() {
			p.Status = PassStatusCanceled
			p.LastError = "missed slot"
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) GetPass(_ context.Context, id string) (*PassRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.passes[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *p
	return &c, nil
}
