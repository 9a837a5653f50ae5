package handlers

import (
	"net/http"

	"battmon/internal/service"
)

// NewPortsHandler returns GET /ports handler.
func NewPortsHandler(svc *service.PortsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ports, err := svc.Ports(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ports": ports,
		})
	}
}

// NewPortHandler returns GET /ports/{port} handler.
func NewPortHandler(svc *service.PortsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		port, err := svc.Port(r.Context(), r.PathValue("port"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, port)
	}
}

// NewSessionHandler returns GET /ports/{port}/sessions/{session} handler.
func NewSessionHandler(svc *service.PortsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.Session(r.Context(), r.PathValue("port"), r.PathValue("session"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}
