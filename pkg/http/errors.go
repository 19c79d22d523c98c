package http

import (
	"encoding/json"
	"net/http"
)

// Machine-readable error codes. Clients switch on these, never on messages.
const (
	CodeUnauthenticated  = "unauthenticated"
	CodeUnauthorized     = "unauthorized"
	CodeEmailNotVerified = "email_not_verified"
	CodeNotFound         = "not_found"
	CodeConflict         = "conflict"
	CodeValidation       = "validation_error"
	CodeRateLimited      = "rate_limit_exceeded"
	CodeServerError      = "server_error"
)

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error   string `json:"error"`             // Machine-readable error code
	Message string `json:"message"`           // Human-readable message
	Details string `json:"details,omitempty"` // Optional additional context
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	WriteErrorWithDetails(w, statusCode, errorCode, message, "")
}

// WriteErrorWithDetails writes a JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, errorCode, message, details string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
		Details: details,
	})
}

// WriteJSON encodes body as the response with the given status.
func WriteJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if body == nil {
		return
	}
	// Headers are already sent; an encoding failure cannot be reported to the client.
	_ = json.NewEncoder(w).Encode(body)
}

func WriteValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidation, message)
}

func WriteUnauthenticated(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthenticated, message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeUnauthorized, message)
}

func WriteEmailNotVerified(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeEmailNotVerified, message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, CodeRateLimited, message)
}

func WriteServerError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeServerError, message)
}
