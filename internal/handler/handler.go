package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"attacknav/internal/compose"
	"attacknav/internal/expr"
	"attacknav/internal/layer"
	"attacknav/internal/repository"
	"attacknav/internal/service"
	"attacknav/internal/transport"
)

// maxBodyBytes bounds request bodies, including imported layer documents
const maxBodyBytes = 16 << 20

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON", "error", err)
	}
}

func writeError(w http.ResponseWriter, error, details string, statusCode int) {
	writeJSON(w, ErrorResponse{Error: error, Details: details}, statusCode)
}

// writeServiceError maps a service error onto a status code. Unexpected
// errors are logged.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, action string, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusNotFound:
		writeError(w, "Not found", err.Error(), status)
	case http.StatusBadRequest:
		writeError(w, "Invalid request", err.Error(), status)
	case http.StatusBadGateway:
		logger.Warn("upstream fetch failed", "action", action, "error", err)
		writeError(w, "Failed to fetch ATT&CK data", err.Error(), status)
	default:
		logger.Error("request failed", "action", action, "error", err)
		writeError(w, "Failed to "+action, err.Error(), status)
	}
}

func statusFor(err error) int {
	var (
		validation *service.ValidationError
		syntax     *expr.SyntaxError
		unbound    *expr.UnboundVariableError
		typeErr    *expr.TypeError
		missing    *layer.MissingContextError
		fetch      *transport.TransportError
	)
	switch {
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, service.ErrUnknownDomain),
		errors.Is(err, service.ErrUnknownTechnique):
		return http.StatusNotFound
	case errors.As(err, &validation),
		errors.As(err, &syntax),
		errors.As(err, &unbound),
		errors.As(err, &typeErr),
		errors.As(err, &missing),
		errors.Is(err, expr.ErrDivisionByZero),
		errors.Is(err, compose.ErrDomainMismatch),
		errors.Is(err, compose.ErrStaticVariables),
		errors.Is(err, compose.ErrDomainRequired),
		errors.Is(err, compose.ErrUnknownMode),
		errors.Is(err, layer.ErrTooFewStops):
		return http.StatusBadRequest
	case errors.As(err, &fetch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}
