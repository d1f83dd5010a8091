// Package common provides shared request and response helpers for the
// delivery date API handlers.
package common

import (
	"encoding/json"
	"net/http"
)

// errorResponse is the error envelope every API error uses.
type errorResponse struct {
	Error string `json:"error"`
}

// WriteJSONResponse writes data as a JSON response with the given status.
func WriteJSONResponse(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// WriteErrorResponse writes message in the API error envelope.
func WriteErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	WriteJSONResponse(w, errorResponse{Error: message}, statusCode)
}
