package handlers

import (
	"encoding/json"
	"net/http"

	"battmon/internal/service"
)

type setCapacityRequest struct {
	RatedCapacity float64 `json:"ratedCapacity"`
}

// NewSetCapacityHandler returns PUT /ports/{port}/capacity handler.
func NewSetCapacityHandler(svc *service.PortsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setCapacityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := svc.SetRatedCapacity(r.Context(), r.PathValue("port"), req.RatedCapacity); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

type setBatteryTypeRequest struct {
	BatteryType string `json:"batteryType"`
}

// NewSetBatteryTypeHandler returns PUT /ports/{port}/battery-type handler.
func NewSetBatteryTypeHandler(svc *service.PortsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setBatteryTypeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.BatteryType == "" {
			writeError(w, http.StatusBadRequest, "batteryType is required")
			return
		}
		if err := svc.SetBatteryType(r.Context(), r.PathValue("port"), req.BatteryType); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// NewCapacityBackupHandler returns GET /capacity-backup handler.
func NewCapacityBackupHandler(svc *service.PortsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		backups, err := svc.CapacityBackups(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"batteryCapacityBackup": backups,
		})
	}
}
