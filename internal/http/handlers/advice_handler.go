package handlers

import (
	"net/http"

	"battmon/internal/service"
)

// NewAdviceHandler returns POST /ports/{port}/advice handler.
func NewAdviceHandler(svc *service.PortsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		suggestion, err := svc.Advice(r.Context(), r.PathValue("port"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, suggestion)
	}
}
