// Package httpserver contains the HTTP API of the orchestrator: chat,
// task ledger and diagnostics endpoints plus the middleware they share.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

// statusClientClosedRequest is the nginx convention for a caller that went away.
const statusClientClosedRequest = 499

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error, details interface{}) {
	code, codeStr := classify(err)
	if code >= http.StatusInternalServerError && r != nil {
		LoggerFrom(r).Error("request failed", "error", err, "status", code)
	}
	writeJSON(w, code, errorEnvelope{Error: apiError{Code: codeStr, Message: err.Error(), Details: details}})
}

// classify maps the error taxonomy onto an HTTP status. Order matters: a
// transport error caused by a deadline is a timeout first, and an unavailable
// provider also matches ErrProvider.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, "CANCELLED"
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, domain.ErrProviderUnavailable):
		return http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE"
	case errors.Is(err, domain.ErrUpstreamTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT"
	case errors.Is(err, domain.ErrProvider):
		return http.StatusBadGateway, "PROVIDER_ERROR"
	case errors.Is(err, domain.ErrTransport):
		return http.StatusBadGateway, "TRANSPORT_ERROR"
	}
	return http.StatusInternalServerError, "INTERNAL"
}
