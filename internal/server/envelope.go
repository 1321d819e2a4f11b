package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"dexdash-backend/internal/apperr"
)

// response is the envelope every endpoint answers with.
type response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeData(w http.ResponseWriter, data any) {
	writeEnvelope(w, http.StatusOK, response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		Logger.Error().Err(err).Msg("request failed")
	}
	writeEnvelope(w, status, response{Success: false, Error: err.Error()})
}

func writeEnvelope(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		Logger.Error().Err(err).Msg("failed to encode response")
	}
}

// queryInt64 parses a required integer query parameter.
func queryInt64(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, apperr.Validation("%s is required", name)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperr.Validation("%s must be an integer", name)
	}
	return n, nil
}

// querySlippage parses the optional slippage parameter, enforcing 0..50.
func querySlippage(r *http.Request, fallback float64) (float64, error) {
	raw := r.URL.Query().Get("slippage")
	if raw == "" {
		return fallback, nil
	}
	s, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperr.Validation("slippage must be a number")
	}
	if s < 0 || s > 50 {
		return 0, apperr.Validation("slippage must be within 0..50")
	}
	return s, nil
}
