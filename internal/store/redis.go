package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"battmon/internal/models"
)

const portIndexKey = "ports"

// Redis implements Store on top of a Redis instance: one hash per port record,
// per session record, and per session log set, a single capacity-backup hash,
// and a pub/sub channel per port for change notifications.
type Redis struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedis returns a Redis-backed store.
func NewRedis(client *redis.Client, logger *zap.Logger) *Redis {
	return &Redis{client: client, logger: logger}
}

func portKey(portID string) string {
	return fmt.Sprintf("ports:%s", portID)
}

func sessionKey(portID, sessionID string) string {
	return fmt.Sprintf("ports:%s:sessions:%s", portID, sessionID)
}

func logsKey(portID, sessionID string) string {
	return fmt.Sprintf("ports:%s:sessions:%s:logs", portID, sessionID)
}

const capacityBackupKey = "batteryCapacityBackup"

func eventChannel(portID string) string {
	return fmt.Sprintf("battmon.events.%s", portID)
}

// Port returns the port record.
func (s *Redis) Port(ctx context.Context, portID string) (*models.Port, error) {
	fields, err := s.client.HGetAll(ctx, portKey(portID)).Result()
	if err != nil {
		return nil, fmt.Errorf("store: read port %s: %w", portID, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return parsePort(portID, fields), nil
}

// Ports lists all registered ports.
func (s *Redis) Ports(ctx context.Context) ([]*models.Port, error) {
	ids, err := s.client.SMembers(ctx, portIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("store: list ports: %w", err)
	}
	ports := make([]*models.Port, 0, len(ids))
	for _, id := range ids {
		port, err := s.Port(ctx, id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		ports = append(ports, port)
	}
	return ports, nil
}

// UpdatePort applies a partial field update and registers the port.
func (s *Redis) UpdatePort(ctx context.Context, portID string, fields map[string]any) error {
	if err := s.client.SAdd(ctx, portIndexKey, portID).Err(); err != nil {
		return fmt.Errorf("store: register port %s: %w", portID, err)
	}
	if len(fields) > 0 {
		if err := s.client.HSet(ctx, portKey(portID), fields).Err(); err != nil {
			return fmt.Errorf("store: update port %s: %w", portID, err)
		}
	}
	s.publish(ctx, Event{PortID: portID, Kind: EventPort, At: time.Now().UnixMilli()})
	return nil
}

// Session returns the session record including its log set.
func (s *Redis) Session(ctx context.Context, portID, sessionID string) (*models.Session, error) {
	fields, err := s.client.HGetAll(ctx, sessionKey(portID, sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("store: read session %s/%s: %w", portID, sessionID, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	rawLogs, err := s.client.HGetAll(ctx, logsKey(portID, sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("store: read logs %s/%s: %w", portID, sessionID, err)
	}

	session := parseSession(sessionID, fields)
	session.Logs = parseLogs(rawLogs)
	return session, nil
}

// UpdateSession applies a partial field update to the session record.
func (s *Redis) UpdateSession(ctx context.Context, portID, sessionID string, fields map[string]any) error {
	if len(fields) > 0 {
		if err := s.client.HSet(ctx, sessionKey(portID, sessionID), fields).Err(); err != nil {
			return fmt.Errorf("store: update session %s/%s: %w", portID, sessionID, err)
		}
	}
	s.publish(ctx, Event{PortID: portID, SessionID: sessionID, Kind: EventSession, At: time.Now().UnixMilli()})
	return nil
}

// AppendLog stores one sample keyed by timestamp.
func (s *Redis) AppendLog(ctx context.Context, portID, sessionID string, sample models.LogSample) error {
	value, err := json.Marshal(struct {
		Voltage models.Float `json:"voltage"`
		Current models.Float `json:"current"`
		Cycle   string       `json:"cycle"`
	}{sample.Voltage, sample.Current, sample.Cycle})
	if err != nil {
		return fmt.Errorf("store: encode log: %w", err)
	}
	field := strconv.FormatInt(sample.Timestamp, 10)
	if err := s.client.HSet(ctx, logsKey(portID, sessionID), field, value).Err(); err != nil {
		return fmt.Errorf("store: append log %s/%s: %w", portID, sessionID, err)
	}
	s.publish(ctx, Event{PortID: portID, SessionID: sessionID, Kind: EventLog, At: time.Now().UnixMilli()})
	return nil
}

// SetCapacityBackup writes the last-known rated capacity for a port.
func (s *Redis) SetCapacityBackup(ctx context.Context, portID string, capacity float64) error {
	if err := s.client.HSet(ctx, capacityBackupKey, portID, capacity).Err(); err != nil {
		return fmt.Errorf("store: set capacity backup %s: %w", portID, err)
	}
	return nil
}

// ClearCapacityBackup removes the port's entry.
func (s *Redis) ClearCapacityBackup(ctx context.Context, portID string) error {
	if err := s.client.HDel(ctx, capacityBackupKey, portID).Err(); err != nil {
		return fmt.Errorf("store: clear capacity backup %s: %w", portID, err)
	}
	return nil
}

// CapacityBackup returns the port's entry, false when absent.
func (s *Redis) CapacityBackup(ctx context.Context, portID string) (float64, bool, error) {
	raw, err := s.client.HGet(ctx, capacityBackupKey, portID).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("store: read capacity backup %s: %w", portID, err)
	}
	capacity, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, nil
	}
	return capacity, true, nil
}

// CapacityBackups returns all entries.
func (s *Redis) CapacityBackups(ctx context.Context) (map[string]float64, error) {
	raw, err := s.client.HGetAll(ctx, capacityBackupKey).Result()
	if err != nil {
		return nil, fmt.Errorf("store: read capacity backups: %w", err)
	}
	out := make(map[string]float64, len(raw))
	for portID, value := range raw {
		capacity, err := strconv.ParseFloat(value, 64)
		if err != nil {
			continue
		}
		out[portID] = capacity
	}
	return out, nil
}

// Watch subscribes to the port's event channel.
func (s *Redis) Watch(ctx context.Context, portID string) (<-chan Event, error) {
	pubsub := s.client.Subscribe(ctx, eventChannel(portID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("store: subscribe %s: %w", portID, err)
	}

	out := make(chan Event, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					s.logger.Warn("dropping malformed store event", zap.String("port_id", portID), zap.Error(err))
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *Redis) publish(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.client.Publish(ctx, eventChannel(event.PortID), payload).Err(); err != nil {
		s.logger.Warn("failed to publish store event", zap.String("port_id", event.PortID), zap.Error(err))
	}
}

func parsePort(portID string, fields map[string]string) *models.Port {
	return &models.Port{
		ID:                  portID,
		Name:                fields[FieldName],
		CurrentSessionID:    fields[FieldCurrentSessionID],
		RatedCapacity:       parseFloat(fields[FieldRatedCapacity]),
		AssignedBatteryType: fields[FieldAssignedBatteryType],
	}
}

func parseSession(sessionID string, fields map[string]string) *models.Session {
	return &models.Session{
		ID:            sessionID,
		StartTime:     parseInt(fields[FieldStartTime]),
		EndTime:       parseInt(fields[FieldEndTime]),
		Status:        models.SessionStatus(fields[FieldStatus]),
		Type:          models.SessionType(fields[FieldType]),
		BatteryType:   fields[FieldBatteryType],
		RatedCapacity: parseFloat(fields[FieldRatedCapacity]),

		RealTimeDischargedCapacity: parseFloat(fields[FieldRealTimeDischargedCapacity]),
		RealTimeSOC:                parseFloat(fields[FieldRealTimeSOC]),
		RealTimeSOH:                parseFloat(fields[FieldRealTimeSOH]),
		RealTimeRemainingCapacity:  parseFloat(fields[FieldRealTimeRemainingCapacity]),
		LastUpdated:                parseInt(fields[FieldLastUpdated]),

		FinalVoltage:            parseFloat(fields[FieldFinalVoltage]),
		FinalCurrent:            parseFloat(fields[FieldFinalCurrent]),
		FinalDischargedCapacity: parseFloat(fields[FieldFinalDischargedCapacity]),
		FinalMeasuredCapacity:   parseFloat(fields[FieldFinalMeasuredCapacity]),
		FinalSOH:                parseFloat(fields[FieldFinalSOH]),
		FinalSOC:                parseFloat(fields[FieldFinalSOC]),
		Note:                    fields[FieldNote],
	}
}

// parseLogs decodes the raw log hash. Samples with unparseable timestamps or
// bodies are dropped, not fatal.
func parseLogs(raw map[string]string) map[int64]models.LogSample {
	logs := make(map[int64]models.LogSample, len(raw))
	for field, value := range raw {
		ts, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			continue
		}
		var sample models.LogSample
		if err := json.Unmarshal([]byte(value), &sample); err != nil {
			continue
		}
		sample.Timestamp = ts
		logs[ts] = sample
	}
	return logs
}

func parseFloat(raw string) float64 {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt(raw string) int64 {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
