package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/heartbeathq/heartbeat/internal/analysis"
	"github.com/heartbeathq/heartbeat/internal/services"
	"github.com/heartbeathq/heartbeat/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

// statusFor maps service errors to HTTP statuses. Anything unrecognized is a
// 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrPulseNotFound),
		errors.Is(err, store.ErrAnalysisNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrNoRecipients),
		errors.Is(err, services.ErrInvalidEmail),
		errors.Is(err, services.ErrPulseIDRequired),
		errors.Is(err, services.ErrEmptyResponse),
		errors.Is(err, services.ErrNoResponses),
		errors.Is(err, services.ErrNotAllResponses),
		errors.Is(err, services.ErrNoPending),
		errors.Is(err, services.ErrAnalysisNotReady):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrPulseClosed):
		return http.StatusConflict
	case errors.Is(err, analysis.ErrTimeout):
		return http.StatusRequestTimeout
	}

	var rl *analysis.RateLimitError
	if errors.As(err, &rl) {
		return http.StatusTooManyRequests
	}
	// Terminal provider failures keep the status the provider returned.
	var up *analysis.UpstreamError
	if errors.As(err, &up) {
		if up.Status >= 400 {
			return up.Status
		}
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}
