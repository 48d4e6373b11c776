package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/autopeer-io/amrfleet/internal/fleet/core"
	"github.com/autopeer-io/amrfleet/pkg/log"
)

// envelope is the body of every error response and of responses without
// a payload.
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn("Failed to write response", "error", err.Error())
	}
}

func writeFailure(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, envelope{Success: false, Error: msg})
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	code := StatusCode(err)
	logger := log.FromContext(ctx)
	if code >= http.StatusInternalServerError {
		logger.Error(err, "Request failed", "code", code)
	} else {
		logger.Info("Request rejected", "code", code, "error", err.Error())
	}
	writeFailure(w, code, err.Error())
}

// StatusCode maps a fleet error to its HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrInvalidState), errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
