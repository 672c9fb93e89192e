package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"mspro-labs/coffee-finder/internal/directory"
	"mspro-labs/coffee-finder/internal/shops"
)

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	ID      string `json:"id,omitempty"`
}

type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP statuses. fallback is the
// message used for unexpected failures.
func writeError(w http.ResponseWriter, logger zerolog.Logger, err error, fallback string) {
	var (
		ve *shops.ValidationError
		se *shops.StorageError
		ue *directory.UpstreamError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Message: ve.Message})
	case errors.Is(err, shops.ErrNotFound):
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "Coffee store id does not exist", Error: err.Error()})
	case errors.As(err, &se):
		logger.Error().Err(err).Str("op", se.Op).Msg("storage failure")
		writeJSON(w, http.StatusInternalServerError, errorBody{Message: fallback, Error: err.Error()})
	case errors.As(err, &ue):
		logger.Error().Err(err).Str("api", ue.API).Msg("upstream failure")
		writeJSON(w, http.StatusInternalServerError, errorBody{Message: fallback, Error: err.Error()})
	default:
		logger.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Message: fallback, Error: err.Error()})
	}
}

func badRequest(w http.ResponseWriter, msg string, err error) {
	body := errorBody{Message: msg}
	if err != nil {
		body.Error = err.Error()
	}
	writeJSON(w, http.StatusBadRequest, body)
}
