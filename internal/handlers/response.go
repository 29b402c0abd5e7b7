package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prudhvinik1/episync/internal/repositories"
	"github.com/prudhvinik1/episync/internal/schedule"
	"github.com/prudhvinik1/episync/internal/services"
)

// ErrorResponse is the JSON envelope of every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message,omitempty"`
	Field         string `json:"field,omitempty"`
	Kind          string `json:"kind,omitempty"`
	RequiredWeeks int    `json:"required_weeks,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func respondBadRequest(w http.ResponseWriter, err error) {
	respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: err.Error()})
}

// respondError translates service errors into HTTP responses. Validation
// failures are expected and never logged as faults.
func respondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var verr *schedule.ValidationError
	if errors.As(err, &verr) {
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:         "validation_failed",
			Message:       verr.Error(),
			Kind:          verr.Rule(),
			RequiredWeeks: verr.RequiredWeeks,
		})
		return
	}

	var ferr *services.FieldError
	if errors.As(err, &ferr) {
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "invalid_input",
			Message: ferr.Message,
			Field:   ferr.Field,
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrNoVaccinesSelected),
		errors.Is(err, services.ErrUnknownVaccine),
		errors.Is(err, services.ErrVaccinatorRequired),
		errors.Is(err, services.ErrInvalidCorrectionReason):
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "invalid_input", Message: err.Error()})
	case errors.Is(err, repositories.ErrNotFound):
		respondJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found"})
	case errors.Is(err, services.ErrOffline):
		respondJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "offline", Message: err.Error()})
	case errors.Is(err, services.ErrSyncInProgress):
		respondJSON(w, http.StatusConflict, ErrorResponse{Error: "sync_in_progress", Message: err.Error()})
	case errors.Is(err, services.ErrSyncCanceled):
		respondJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "sync_canceled", Message: err.Error()})
	case errors.Is(err, services.ErrEmailExists):
		respondJSON(w, http.StatusConflict, ErrorResponse{Error: "email_exists", Message: err.Error()})
	case errors.Is(err, services.ErrInvalidCredentials), errors.Is(err, services.ErrInvalidToken):
		respondJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: err.Error()})
	case errors.Is(err, services.ErrNotApproved), errors.Is(err, services.ErrForbidden):
		respondJSON(w, http.StatusForbidden, ErrorResponse{Error: "forbidden", Message: err.Error()})
	case errors.Is(err, repositories.ErrStoreUnavailable):
		logger.Error("store unavailable", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "store_unavailable"})
	default:
		logger.Error("request failed", "error", err)
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
	}
}
