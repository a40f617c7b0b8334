package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON and writeError, so all endpoints
// share one content type and one error shape:
//
//	{"error": "not_found", "message": "Tweet not found"}
//
// "error" is machine-readable and stable. "message" is the label the service
// attached to the error and is shown to users as-is.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/minitwit/internal/apperror"
	"github.com/sakif/minitwit/internal/pagination"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
}

// IDResponse is the body of mutations that return an edge or row id.
// ID is null when the mutation had nothing to remove.
type IDResponse struct {
	ID *string `json:"id"`
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set before the body. Once Encode writes,
// later header changes are silently ignored.
//
// A nil data still writes the JSON literal null, which is how "no such
// user" and "no such tweet" reach clients.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent, so all we can do is log.
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// ERROR MAPPING:
//
//	apperror.ErrValidation      → 400 validation_error
//	apperror.ErrUnauthenticated → 401 unauthenticated
//	apperror.ErrForbidden       → 403 forbidden
//	apperror.ErrNotFound        → 404 not_found
//	apperror.ErrConflict        → 409 conflict
//	anything else               → 500 internal_error
//
// errors.As walks the wrap chain, so a service may add context with
// fmt.Errorf("...: %w", appErr) and the label still comes through.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError

	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrUnauthenticated):
			status = http.StatusUnauthorized
			errorType = "unauthenticated"
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden
			errorType = "forbidden"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "not_found"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
			errorType = "conflict"
		}

		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
		})
		return
	}

	// Never expose internal error details: they may carry SQL or file paths.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON reads a JSON request body into dst. A malformed body becomes a
// validation error so writeError answers 400.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "Invalid JSON body")
	}
	return nil
}

// =========================================================================
// QUERY PARAMETERS
// =========================================================================

// intParam reads a non-negative integer query parameter. Missing means 0,
// which every service treats as "use the default".
func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.ValidationFailed(name, "Invalid "+name+" parameter")
	}
	return n, nil
}

// pageRequest reads ?numItems=&cursor= into a pagination.Request.
func pageRequest(r *http.Request) (pagination.Request, error) {
	n, err := intParam(r, "numItems")
	if err != nil {
		return pagination.Request{}, err
	}
	return pagination.Request{
		NumItems: n,
		Cursor:   r.URL.Query().Get("cursor"),
	}, nil
}
