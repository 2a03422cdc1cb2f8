package handlers

import (
	"encoding/json"
	"net/http"
)

// errorEnvelope is the error body returned by every endpoint. The error
// field carries a stable machine-readable code ("invalid_id",
// "plan_not_approved", "discover_failed", ...) and message carries the
// human-readable detail.
type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ErrorResponse writes the error envelope and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	return WriteJSON(w, statusCode, errorEnvelope{
		Error:   errorCode,
		Message: message,
	})
}

// WriteJSON writes data as a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}
