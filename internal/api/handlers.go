package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/BTreeMap/JogPipe/internal/engine"
	"github.com/BTreeMap/JogPipe/internal/models"
	"github.com/BTreeMap/JogPipe/internal/store"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{
		"service": "jogpipe",
		"time":    s.now().UTC().Format(time.RFC3339),
	}))
}

func decodeBody(w http.ResponseWriter, r *http.Request, op string, v interface{}) bool {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		slog.Warn("Server."+op+": failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return false
	}
	return true
}

func (s *Server) putUserHandler(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	var body models.UserWrite
	if !decodeBody(w, r, "putUserHandler", &body) {
		return
	}
	u, err := s.engine.UpdateUser(r.Context(), userID, body, s.now())
	if err != nil {
		writeError(w, "putUserHandler", err)
		return
	}
	slog.Debug("Server.putUserHandler: user updated", "userID", userID, "focusMode", u.FocusMode)
	writeJSONResponse(w, http.StatusOK, models.Success(u))
}

func (s *Server) putReminderHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, reminderID := vars["userId"], vars["reminderId"]
	var body models.ReminderWrite
	if !decodeBody(w, r, "putReminderHandler", &body) {
		return
	}
	rem, err := s.engine.PutReminder(r.Context(), userID, reminderID, body, s.now())
	if err != nil {
		writeError(w, "putReminderHandler", err)
		return
	}
	code := http.StatusOK
	if rem.Version == 1 {
		code = http.StatusCreated
	}
	slog.Info("Server.putReminderHandler: reminder saved", "userID", userID, "reminderID", reminderID, "status", rem.CompleteStatus)
	writeJSONResponse(w, code, models.Success(rem))
}

func (s *Server) completeReminderHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, reminderID := vars["userId"], vars["reminderId"]
	var body models.CompletionWrite
	if !decodeBody(w, r, "completeReminderHandler", &body) {
		return
	}
	rem, err := s.engine.CompleteReminder(r.Context(), userID, reminderID, body, s.now())
	if err != nil {
		writeError(w, "completeReminderHandler", err)
		return
	}
	slog.Info("Server.completeReminderHandler: completion saved", "userID", userID, "reminderID", reminderID, "status", rem.CompleteStatus)
	writeJSONResponse(w, http.StatusOK, models.Success(rem))
}

func (s *Server) deleteReminderHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, reminderID := vars["userId"], vars["reminderId"]
	if err := s.engine.DeleteReminder(r.Context(), userID, reminderID, s.now()); err != nil {
		writeError(w, "deleteReminderHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Reminder deleted", nil))
}

func (s *Server) getReminderHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	rem, err := s.store.GetReminder(r.Context(), vars["userId"], vars["reminderId"])
	if err == nil && rem.Deleted {
		err = store.ErrNotFound
	}
	if err != nil {
		writeError(w, "getReminderHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(rem))
}

func (s *Server) listRemindersHandler(w http.ResponseWriter, r *http.Request) {
	q := store.ReminderQuery{UserID: mux.Vars(r)["userId"]}
	if status := r.URL.Query().Get("status"); status != "" {
		st := models.CompleteStatus(status)
		if !st.Valid() {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(fmt.Sprintf("unknown status %q", status)))
			return
		}
		q.Statuses = []models.CompleteStatus{st}
	}
	rems, err := s.store.ListReminders(r.Context(), q)
	if err != nil {
		writeError(w, "listRemindersHandler", err)
		return
	}
	if rems == nil {
		rems = []models.Reminder{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(rems))
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetUserStats(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		writeError(w, "statsHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(stats))
}

func (s *Server) notificationsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("limit must be a positive integer"))
			return
		}
		limit = n
	}
	attempts, err := s.store.ListAttempts(r.Context(), mux.Vars(r)["userId"], limit)
	if err != nil {
		writeError(w, "notificationsHandler", err)
		return
	}
	if attempts == nil {
		attempts = []models.NotificationAttempt{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(attempts))
}

// runPassHandler runs one pass synchronously. The slot defaults to the current minute.
func (s *Server) runPassHandler(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]
	if !slices.Contains(engine.Kinds(), kind) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(fmt.Sprintf("unknown pass kind %q", kind)))
		return
	}
	slot := s.now().Truncate(time.Minute)
	if v := r.URL.Query().Get("at"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("at must be an RFC3339 timestamp"))
			return
		}
		slot = t
	}
	res, err := s.engine.RunPass(r.Context(), kind, slot)
	if err != nil {
		writeError(w, "runPassHandler", err)
		return
	}
	slog.Info("Server.runPassHandler: pass run", "kind", kind, "slot", slot)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage(fmt.Sprintf("%s pass completed", kind), res))
}
