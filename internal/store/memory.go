package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"battmon/internal/models"
)

// Memory implements Store with in-process maps. It mirrors the Redis layout
// (string-valued hashes) so field coercion behaves identically; used by tests
// and simulator dry runs.
type Memory struct {
	mu       sync.RWMutex
	ports    map[string]map[string]string
	sessions map[string]map[string]string
	logs     map[string]map[string]string
	backup   map[string]float64
	watchers map[string][]chan Event
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		ports:    make(map[string]map[string]string),
		sessions: make(map[string]map[string]string),
		logs:     make(map[string]map[string]string),
		backup:   make(map[string]float64),
		watchers: make(map[string][]chan Event),
	}
}

// Port returns the port record.
func (m *Memory) Port(_ context.Context, portID string) (*models.Port, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fields, ok := m.ports[portID]
	if !ok {
		return nil, ErrNotFound
	}
	return parsePort(portID, fields), nil
}

// Ports lists all registered ports.
func (m *Memory) Ports(_ context.Context) ([]*models.Port, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ports := make([]*models.Port, 0, len(m.ports))
	for id, fields := range m.ports {
		ports = append(ports, parsePort(id, fields))
	}
	return ports, nil
}

// UpdatePort applies a partial field update and registers the port.
func (m *Memory) UpdatePort(_ context.Context, portID string, fields map[string]any) error {
	m.mu.Lock()
	record, ok := m.ports[portID]
	if !ok {
		record = make(map[string]string)
		m.ports[portID] = record
	}
	for k, v := range fields {
		record[k] = formatValue(v)
	}
	m.mu.Unlock()
	m.notify(Event{PortID: portID, Kind: EventPort, At: time.Now().UnixMilli()})
	return nil
}

// Session returns the session record including its log set.
func (m *Memory) Session(_ context.Context, portID, sessionID string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key := portID + "/" + sessionID
	fields, ok := m.sessions[key]
	if !ok {
		return nil, ErrNotFound
	}
	session := parseSession(sessionID, fields)
	session.Logs = parseLogs(m.logs[key])
	return session, nil
}

// UpdateSession applies a partial field update to the session record.
func (m *Memory) UpdateSession(_ context.Context, portID, sessionID string, fields map[string]any) error {
	m.mu.Lock()
	key := portID + "/" + sessionID
	record, ok := m.sessions[key]
	if !ok {
		record = make(map[string]string)
		m.sessions[key] = record
	}
	for k, v := range fields {
		record[k] = formatValue(v)
	}
	m.mu.Unlock()
	m.notify(Event{PortID: portID, SessionID: sessionID, Kind: EventSession, At: time.Now().UnixMilli()})
	return nil
}

// AppendLog stores one sample keyed by timestamp.
func (m *Memory) AppendLog(_ context.Context, portID, sessionID string, sample models.LogSample) error {
	value, err := json.Marshal(struct {
		Voltage models.Float `json:"voltage"`
		Current models.Float `json:"current"`
		Cycle   string       `json:"cycle"`
	}{sample.Voltage, sample.Current, sample.Cycle})
	if err != nil {
		return fmt.Errorf("store: encode log: %w", err)
	}
	m.mu.Lock()
	key := portID + "/" + sessionID
	logs, ok := m.logs[key]
	if !ok {
		logs = make(map[string]string)
		m.logs[key] = logs
	}
	logs[strconv.FormatInt(sample.Timestamp, 10)] = string(value)
	m.mu.Unlock()
	m.notify(Event{PortID: portID, SessionID: sessionID, Kind: EventLog, At: time.Now().UnixMilli()})
	return nil
}

// SetCapacityBackup writes the last-known rated capacity for a port.
func (m *Memory) SetCapacityBackup(_ context.Context, portID string, capacity float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backup[portID] = capacity
	return nil
}

// ClearCapacityBackup removes the port's entry.
func (m *Memory) ClearCapacityBackup(_ context.Context, portID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.backup, portID)
	return nil
}

// CapacityBackup returns the port's entry, false when absent.
func (m *Memory) CapacityBackup(_ context.Context, portID string) (float64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	capacity, ok := m.backup[portID]
	return capacity, ok, nil
}

// CapacityBackups returns all entries.
func (m *Memory) CapacityBackups(_ context.Context) (map[string]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]float64, len(m.backup))
	for k, v := range m.backup {
		out[k] = v
	}
	return out, nil
}

// Watch returns an event channel for the port; closed on context cancellation.
func (m *Memory) Watch(ctx context.Context, portID string) (<-chan Event, error) {
	ch := make(chan Event, 64)
	m.mu.Lock()
	m.watchers[portID] = append(m.watchers[portID], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		watchers := m.watchers[portID]
		for i, w := range watchers {
			if w == ch {
				m.watchers[portID] = append(watchers[:i], watchers[i+1:]...)
				break
			}
		}
		m.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

func (m *Memory) notify(event Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.watchers[event.PortID] {
		select {
		case ch <- event:
		default:
		}
	}
}

func formatValue(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(value, 10)
	case int:
		return strconv.Itoa(value)
	default:
		return fmt.Sprint(value)
	}
}
