package utils

import (
	"encoding/json"
	"errors"
	"net/http"

	"anniversary_server/apperrors"
	"anniversary_server/logger"
)

// WriteJSONResponse writes v as JSON with the given status.
func WriteJSONResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Get().Error().Err(err).Msg("❌ failed to encode response")
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrValidationFailed):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrAlreadyRedeemed):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func kindOf(err error) string {
	for _, kind := range []error{
		apperrors.ErrValidationFailed,
		apperrors.ErrNotFound,
		apperrors.ErrAlreadyRedeemed,
		apperrors.ErrStoreUnavailable,
	} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return ""
}

// WriteError writes err with the status its kind maps to. Unknown errors
// are logged and hidden behind a generic message.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Get().Error().Err(err).Msg("❌ request failed")
		msg = "internal server error"
	}
	WriteJSONResponse(w, status, ErrorResponse{Error: msg, Kind: kindOf(err)})
}

// DecodeJSON decodes the request body into v, reporting a validation error
// for malformed input.
func DecodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.Validation("decode request", "invalid request body: %v", err)
	}
	return nil
}
