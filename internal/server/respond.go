package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ArionMiles/autoexpense/pkg/api"
)

// envelope is the body of every JSON response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondData(w http.ResponseWriter, data any, message string) {
	respondJSON(w, http.StatusOK, envelope{Success: true, Data: data, Message: message})
}

// respondError sends an error envelope.
func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, envelope{Error: message})
}

func respondErrorDetails(w http.ResponseWriter, statusCode int, message, details string) {
	respondJSON(w, statusCode, envelope{Error: message, Details: details})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, api.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, api.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, api.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// validationMessage strips the sentinel prefix from a validation error.
func validationMessage(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, api.ErrValidation.Error()+": "); i >= 0 {
		return msg[i+len(api.ErrValidation.Error())+2:]
	}
	return msg
}

// decodeJSON parses the request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(v)
}

// userIDFrom reads the userId query parameter.
func userIDFrom(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("userId"))
}
