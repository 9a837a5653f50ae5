package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"battmon/internal/service"
	"battmon/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
// Configuration errors surface as client errors; everything else is a 500.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrNoActiveSession):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrNotDischarging):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrSessionImmutable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrChemistryLocked):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrInvalidCapacity):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrAdvisorDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
