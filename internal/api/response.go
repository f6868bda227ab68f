package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/JogPipe/internal/engine"
	"github.com/BTreeMap/JogPipe/internal/models"
	"github.com/BTreeMap/JogPipe/internal/store"
)

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
)

// init validates that our fallback responses can be marshaled
func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal the response to JSON first to catch encoding errors before writing headers
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

var validationErrors = []error{
	models.ErrEmptyUserID,
	models.ErrEmptyReminderID,
	models.ErrEmptyTitle,
	models.ErrInvalidCategory,
	models.ErrInvalidInterval,
	models.ErrInvalidBudget,
	models.ErrInvalidStatus,
	engine.ErrNegativeInterval,
}

// statusFor maps a domain error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	}
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// writeError writes err with the status it maps to. Internal errors are logged and
// never echoed to the client.
func writeError(w http.ResponseWriter, op string, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		slog.Error("Server."+op+": internal error", "error", err)
		writeJSONResponse(w, code, models.Error("Internal server error"))
		return
	}
	slog.Warn("Server."+op+": request rejected", "status", code, "error", err)
	writeJSONResponse(w, code, models.Error(err.Error()))
}
