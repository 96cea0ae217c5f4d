package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-locales/internal/protocol"
	"github.com/nerrad567/gray-logic-locales/internal/transport"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeNotFound           = "not_found"
	ErrCodeConflict           = "conflict"
	ErrCodeInternal           = "internal_error"
	ErrCodeValidation         = "validation_error"
	ErrCodeServiceUnavailable = "service_unavailable"
	ErrCodeBadGateway         = "bad_gateway"
	ErrCodeGatewayTimeout     = "gateway_timeout"
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
	writeError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, message)
}

// writeControllerError maps a command protocol failure to a response.
//
//	transport.ErrTimeout           -> 504
//	transport/protocol ErrDecode   -> 502
//	transport.ErrTransport         -> 502
//	protocol.ErrInvalidRequest     -> 400
func writeControllerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, transport.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, ErrCodeGatewayTimeout, "controller unreachable")
	case errors.Is(err, transport.ErrDecode), errors.Is(err, protocol.ErrDecode):
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, "malformed controller response")
	case errors.Is(err, transport.ErrTransport), errors.Is(err, transport.ErrClosed):
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, "controller connection failed")
	case errors.Is(err, protocol.ErrInvalidRequest):
		writeBadRequest(w, err.Error())
	default:
		writeInternalError(w, "controller request failed")
	}
}
