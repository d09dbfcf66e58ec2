package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
	apperrors "github.com/zatekoja/bedflow/pkg/errors"
)

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 1 << 20

// Helper functions
func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// respondWithAppError maps domain errors onto HTTP statuses. NoCapacity carries the ward
// that ran short so clients can tell "pending because full" from a denial.
func respondWithAppError(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		log.Error().Err(err).Msg("unhandled error")
		respondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	body := map[string]string{
		"error": appErr.Message,
		"code":  string(appErr.Type),
	}
	for k, v := range appErr.Details {
		body[k] = v
	}

	status := http.StatusInternalServerError
	switch appErr.Type {
	case apperrors.ErrorTypeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrorTypeValidation:
		status = http.StatusBadRequest
	case apperrors.ErrorTypeNoCapacity, apperrors.ErrorTypeInvalidStateTransition, apperrors.ErrorTypeConflict:
		status = http.StatusConflict
	case apperrors.ErrorTypeCapacityInvariant:
		status = http.StatusUnprocessableEntity
	case apperrors.ErrorTypeInsufficientData:
		status = http.StatusUnprocessableEntity
	case apperrors.ErrorTypeExternal:
		status = http.StatusBadGateway
	default:
		log.Error().Err(err).Msg("internal error")
		body["error"] = "internal server error"
	}

	respondWithJSON(w, status, body)
}

// decodeJSON decodes a bounded JSON body, rejecting unknown fields
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return false
	}
	return true
}
