package httpserver

import "net/http"

// Routes groups handlers.
type Routes struct {
	Health         http.HandlerFunc
	Ports          http.HandlerFunc
	Port           http.HandlerFunc
	Session        http.HandlerFunc
	SetCapacity    http.HandlerFunc
	SetBatteryType http.HandlerFunc
	CapacityBackup http.HandlerFunc
	Advice         http.HandlerFunc
	Ingest         http.Handler
}

// NewRouter registers endpoints.
func NewRouter(routes Routes) http.Handler {
	mux := http.NewServeMux()
	if routes.Health != nil {
		mux.Handle("GET /health", routes.Health)
	}
	if routes.Ports != nil {
		mux.Handle("GET /ports", routes.Ports)
	}
	if routes.Port != nil {
		mux.Handle("GET /ports/{port}", routes.Port)
	}
	if routes.Session != nil {
		mux.Handle("GET /ports/{port}/sessions/{session}", routes.Session)
	}
	if routes.SetCapacity != nil {
		mux.Handle("PUT /ports/{port}/capacity", routes.SetCapacity)
	}
	if routes.SetBatteryType != nil {
		mux.Handle("PUT /ports/{port}/battery-type", routes.SetBatteryType)
	}
	if routes.CapacityBackup != nil {
		mux.Handle("GET /capacity-backup", routes.CapacityBackup)
	}
	if routes.Advice != nil {
		mux.Handle("POST /ports/{port}/advice", routes.Advice)
	}
	if routes.Ingest != nil {
		mux.Handle("GET /ingest/{port}", routes.Ingest)
	}
	return mux
}
