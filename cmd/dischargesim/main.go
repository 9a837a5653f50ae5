package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"battmon/libs/logging"
)

// dischargesim feeds a synthetic discharging session into a running monitor
// over the ingest WebSocket. Useful for exercising the metrics and staleness
// paths without real hardware.
func main() {
	var (
		addr        = flag.String("addr", "localhost:8080", "monitor host:port")
		portID      = flag.String("port", "port_3", "port to target")
		batteryType = flag.String("battery-type", "LiPo", "battery type label")
		rated       = flag.Float64("rated-capacity", 0, "rated capacity in Ah, 0 to omit")
		interval    = flag.Duration("interval", 5*time.Second, "delay between log samples")
		count       = flag.Int("count", 0, "number of samples to send, 0 for unlimited")
	)
	flag.Parse()

	logger, err := logging.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *addr, *portID, *batteryType, *rated, *interval, *count, logger); err != nil {
		logger.Fatal("simulation failed", zap.Error(err))
	}
}

func run(ctx context.Context, addr, portID, batteryType string, rated float64, interval time.Duration, count int, logger *zap.Logger) error {
	url := fmt.Sprintf("ws://%s/ingest/%s", addr, portID)
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer ws.Close()

	sessionID := fmt.Sprintf("discharge_session_%d", time.Now().UnixMilli())
	start := map[string]any{
		"type":        "session-start",
		"sessionId":   sessionID,
		"status":      "discharging",
		"sessionType": "discharging",
		"batteryType": batteryType,
		"timestamp":   time.Now().UnixMilli(),
	}
	if rated > 0 {
		start["ratedCapacity"] = rated
	}
	if err := writeFrame(ws, start); err != nil {
		return err
	}
	logger.Info("discharging session started",
		zap.String("port_id", portID),
		zap.String("session_id", sessionID))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sent := 0
	for count <= 0 || sent < count {
		select {
		case <-ctx.Done():
			return stopSession(ws, sessionID, logger)
		case <-ticker.C:
		}

		// Discharge: voltage drifts down, current stays negative.
		voltage := round2(4.1 - 0.9*rand.Float64())
		current := round2(-2.0 + 1.5*rand.Float64())
		frame := map[string]any{
			"type":      "log",
			"timestamp": time.Now().UnixMilli(),
			"voltage":   voltage,
			"current":   current,
			"cycle":     "discharging",
		}
		if err := writeFrame(ws, frame); err != nil {
			return err
		}
		sent++
		logger.Info("sample sent",
			zap.Float64("voltage", voltage),
			zap.Float64("current", current),
			zap.Int("sent", sent))
	}

	return stopSession(ws, sessionID, logger)
}

func stopSession(ws *websocket.Conn, sessionID string, logger *zap.Logger) error {
	err := writeFrame(ws, map[string]any{
		"type":      "session-stop",
		"timestamp": time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	logger.Info("discharging session completed", zap.String("session_id", sessionID))
	return nil
}

func writeFrame(ws *websocket.Conn, frame map[string]any) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return ws.WriteMessage(websocket.TextMessage, payload)
}

func round2(v float64) float64 {
	return float64(int(v*100)) / 100
}
