package api

import (
	"encoding/json"
	"net/http"
)

// JSONResponse writes data as a JSON response with the given status.
func JSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}
}

// RespondJSON is an alias kept for call sites that don't need the error
// envelope shape.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	JSONResponse(w, status, data)
}

// ErrorResponse is the JSON shape of every error response this service
// returns.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// JSONError writes a JSON error response.
func JSONError(w http.ResponseWriter, status int, message string, code string) {
	JSONResponse(w, status, ErrorResponse{Error: message, Code: code})
}

// JSONErrorWithDetails writes a JSON error response carrying field-level
// detail, used for validation failures.
func JSONErrorWithDetails(w http.ResponseWriter, status int, message string, code string, details map[string]string) {
	JSONResponse(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}

// Error codes used across the task/reminder HTTP surface.
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// BadRequest sends a 400 response.
func BadRequest(w http.ResponseWriter, message string) {
	JSONError(w, http.StatusBadRequest, message, ErrCodeBadRequest)
}

// Unauthorized sends a 401 response.
func Unauthorized(w http.ResponseWriter, message string) {
	JSONError(w, http.StatusUnauthorized, message, ErrCodeUnauthorized)
}

// NotFound sends a 404 response.
func NotFound(w http.ResponseWriter, message string) {
	JSONError(w, http.StatusNotFound, message, ErrCodeNotFound)
}

// Conflict sends a 409 response.
func Conflict(w http.ResponseWriter, message string) {
	JSONError(w, http.StatusConflict, message, ErrCodeConflict)
}

// InternalError sends a 500 response.
func InternalError(w http.ResponseWriter) {
	JSONError(w, http.StatusInternalServerError, "internal server error", ErrCodeInternalError)
}

// ValidationError sends a 400 response carrying per-field detail.
func ValidationError(w http.ResponseWriter, details map[string]string) {
	JSONErrorWithDetails(w, http.StatusBadRequest, "validation failed", ErrCodeValidation, details)
}
