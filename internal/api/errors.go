package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-devset/internal/deviceset"
	"github.com/nerrad567/gray-logic-devset/internal/reactor"
	"github.com/nerrad567/gray-logic-devset/internal/runlog"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeUnavailable  = "unavailable"
	ErrCodeNotSupported = "not_supported"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeUnavailable writes a 503 error response.
func writeUnavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

// writeSetError maps an error from the device set or the loop to a response.
func writeSetError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, deviceset.ErrUnknownSlot),
		errors.Is(err, deviceset.ErrUnknownDevice):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, deviceset.ErrDuplicateDevice),
		errors.Is(err, deviceset.ErrGoverningDone):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case isValidationError(err):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, reactor.ErrStopped):
		writeUnavailable(w, "actor is shutting down")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeUnavailable(w, "actor did not respond")
	default:
		writeInternalError(w, err.Error())
	}
}

// isValidationError reports whether err describes a bad request to the device set.
func isValidationError(err error) bool {
	return errors.Is(err, deviceset.ErrEmptySlot) ||
		errors.Is(err, deviceset.ErrNoCommand) ||
		errors.Is(err, deviceset.ErrDuplicateSlot) ||
		errors.Is(err, deviceset.ErrInvalidSlot) ||
		errors.Is(err, deviceset.ErrLengthMismatch) ||
		errors.Is(err, deviceset.ErrSlotIndex)
}

// writeRunError maps a run history error to a response.
func writeRunError(w http.ResponseWriter, err error) {
	if errors.Is(err, runlog.ErrRunNotFound) {
		writeNotFound(w, "run not found")
		return
	}
	writeInternalError(w, "failed to read run history")
}
