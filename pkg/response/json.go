package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prekclip/server/internal/apperr"
)

// APIResponse is the standard response wrapper
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// APIError represents an error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta contains pagination and other metadata
type Meta struct {
	Page       int `json:"page,omitempty"`
	PerPage    int `json:"per_page,omitempty"`
	Total      int `json:"total,omitempty"`
	TotalPages int `json:"total_pages,omitempty"`
}

// JSON sends a JSON response with the given status code
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := APIResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	json.NewEncoder(w).Encode(response)
}

// JSONWithMeta sends a JSON response with pagination metadata
func JSONWithMeta(w http.ResponseWriter, status int, data interface{}, meta *Meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := APIResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
		Meta:    meta,
	}

	json.NewEncoder(w).Encode(response)
}

// Error sends an error JSON response
func Error(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// Common error responses
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, "BAD_REQUEST", message)
}

func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, "NOT_FOUND", message)
}

func InternalError(w http.ResponseWriter, message string) {
	Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}

func Unauthorized(w http.ResponseWriter, message string) {
	Error(w, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

func Forbidden(w http.ResponseWriter, message string) {
	Error(w, http.StatusForbidden, "FORBIDDEN", message)
}

func Conflict(w http.ResponseWriter, message string) {
	Error(w, http.StatusConflict, "CONFLICT", message)
}

// FromError maps a feature error onto its HTTP status by kind.
// Unclassified errors are reported as internal errors with the fallback message.
func FromError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, apperr.ErrBadRequest):
		BadRequest(w, err.Error())
	case errors.Is(err, apperr.ErrUnauthorized):
		Unauthorized(w, err.Error())
	case errors.Is(err, apperr.ErrForbidden):
		Forbidden(w, err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		NotFound(w, err.Error())
	case errors.Is(err, apperr.ErrConflict):
		Conflict(w, err.Error())
	default:
		InternalError(w, fallback)
	}
}

// PageBounds returns the [start, end) slice bounds of page within total items.
// Pages past the end yield an empty range.
func PageBounds(total, page, perPage int) (int, int) {
	if total <= 0 || perPage <= 0 || page < 1 || page-1 >= (total+perPage-1)/perPage {
		return total, total
	}
	start := (page - 1) * perPage
	return start, min(start+perPage, total)
}
