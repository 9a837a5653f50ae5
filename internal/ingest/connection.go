package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"battmon/internal/models"
	"battmon/internal/store"
)

// frame is one ingest message. Devices send session-start once, then a stream
// of log frames, then session-stop on disconnect.
type frame struct {
	Type          string       `json:"type"`
	SessionID     string       `json:"sessionId,omitempty"`
	Status        string       `json:"status,omitempty"`
	SessionType   string       `json:"sessionType,omitempty"`
	BatteryType   string       `json:"batteryType,omitempty"`
	RatedCapacity models.Float `json:"ratedCapacity,omitempty"`
	Timestamp     int64        `json:"timestamp,omitempty"`
	Voltage       models.Float `json:"voltage"`
	Current       models.Float `json:"current"`
	Cycle         string       `json:"cycle,omitempty"`
}

// connection owns one device stream for one port.
type connection struct {
	portID    string
	ws        *websocket.Conn
	store     store.Store
	logger    *zap.Logger
	now       func() time.Time
	sessionID string
}

func newConnection(portID string, ws *websocket.Conn, st store.Store, logger *zap.Logger) *connection {
	return &connection{
		portID: portID,
		ws:     ws,
		store:  st,
		logger: logger.With(zap.String("port_id", portID)),
		now:    time.Now,
	}
}

func (c *connection) run(ctx context.Context) {
	defer c.ws.Close()

	c.ws.SetReadLimit(readLimit)
	c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})
	go c.pingLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, message, err := c.ws.ReadMessage()
		if err != nil {
			c.logger.Info("ingest connection closed", zap.Error(err))
			return
		}
		// Malformed frames are logged and skipped; the stream survives.
		if err := c.handleFrame(ctx, message); err != nil {
			c.logger.Warn("dropping ingest frame", zap.Error(err))
		}
	}
}

func (c *connection) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) handleFrame(ctx context.Context, raw []byte) error {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}

	switch f.Type {
	case "session-start":
		return c.startSession(ctx, f)
	case "log":
		return c.appendLog(ctx, f)
	case "session-stop":
		return c.stopSession(ctx, f)
	default:
		return fmt.Errorf("unknown frame type %q", f.Type)
	}
}

func (c *connection) startSession(ctx context.Context, f frame) error {
	if f.SessionID == "" {
		return fmt.Errorf("session-start requires sessionId")
	}

	startTime := f.Timestamp
	if startTime == 0 {
		startTime = c.now().UnixMilli()
	}
	status := f.Status
	if status == "" {
		status = f.SessionType
	}
	if status == "" {
		status = string(models.StatusCharging)
	}
	sessionType := f.SessionType
	if sessionType == "" {
		sessionType = status
	}

	fields := map[string]any{
		store.FieldStartTime: startTime,
		store.FieldStatus:    status,
		store.FieldType:      sessionType,
	}
	if f.BatteryType != "" {
		fields[store.FieldBatteryType] = f.BatteryType
	}
	if f.RatedCapacity.Valid() && float64(f.RatedCapacity) > 0 {
		fields[store.FieldRatedCapacity] = float64(f.RatedCapacity)
	}
	if err := c.store.UpdateSession(ctx, c.portID, f.SessionID, fields); err != nil {
		return err
	}
	if err := c.store.UpdatePort(ctx, c.portID, map[string]any{
		store.FieldCurrentSessionID: f.SessionID,
	}); err != nil {
		return err
	}

	c.sessionID = f.SessionID
	c.logger.Info("ingest session started",
		zap.String("session_id", f.SessionID),
		zap.String("session_type", sessionType))
	return nil
}

func (c *connection) appendLog(ctx context.Context, f frame) error {
	if c.sessionID == "" {
		return fmt.Errorf("log frame before session-start")
	}
	ts := f.Timestamp
	if ts == 0 {
		ts = c.now().UnixMilli()
	}
	return c.store.AppendLog(ctx, c.portID, c.sessionID, models.LogSample{
		Timestamp: ts,
		Voltage:   f.Voltage,
		Current:   f.Current,
		Cycle:     f.Cycle,
	})
}

func (c *connection) stopSession(ctx context.Context, f frame) error {
	if c.sessionID == "" {
		return fmt.Errorf("session-stop before session-start")
	}
	endTime := f.Timestamp
	if endTime == 0 {
		endTime = c.now().UnixMilli()
	}
	if err := c.store.UpdateSession(ctx, c.portID, c.sessionID, map[string]any{
		store.FieldStatus:  string(models.StatusCompleted),
		store.FieldEndTime: endTime,
	}); err != nil {
		return err
	}
	if err := c.store.UpdatePort(ctx, c.portID, map[string]any{
		store.FieldCurrentSessionID: "",
	}); err != nil {
		return err
	}

	c.logger.Info("ingest session stopped", zap.String("session_id", c.sessionID))
	c.sessionID = ""
	return nil
}
