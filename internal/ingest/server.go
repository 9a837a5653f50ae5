package ingest

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"battmon/internal/store"
)

// Server accepts device WebSocket connections that stream session telemetry
// into the store. One connection serves one port.
type Server struct {
	store    store.Store
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewServer returns the ingest server.
func NewServer(st store.Store, logger *zap.Logger) *Server {
	return &Server{
		store:  st,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Devices and simulators connect without an Origin header.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP handles GET /ingest/{port}.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	portID := r.PathValue("port")
	if portID == "" {
		http.Error(w, "port is required", http.StatusBadRequest)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.String("port_id", portID), zap.Error(err))
		return
	}

	conn := newConnection(portID, ws, s.store, s.logger)
	conn.run(r.Context())
}

const (
	readLimit    = 1024 * 1024
	readTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)
