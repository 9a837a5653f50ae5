package store

import (
	"context"
	"errors"

	"battmon/internal/models"
)

// ErrNotFound indicates a missing port or session record.
var ErrNotFound = errors.New("store: not found")

// Session and port field names for partial updates. One writer wins per field.
const (
	FieldStartTime     = "startTime"
	FieldEndTime       = "endTime"
	FieldStatus        = "status"
	FieldType          = "type"
	FieldBatteryType   = "batteryType"
	FieldRatedCapacity = "ratedCapacity"
	FieldNote          = "note"

	FieldRealTimeDischargedCapacity = "realTimeDischargedCapacity"
	FieldRealTimeSOC                = "realTimeSOC"
	FieldRealTimeSOH                = "realTimeSOH"
	FieldRealTimeRemainingCapacity  = "realTimeRemainingCapacity"
	FieldLastUpdated                = "lastUpdated"

	FieldFinalVoltage            = "finalVoltage"
	FieldFinalCurrent            = "finalCurrent"
	FieldFinalDischargedCapacity = "finalDischargedCapacity"
	FieldFinalMeasuredCapacity   = "finalMeasuredCapacity"
	FieldFinalSOH                = "finalSOH"
	FieldFinalSOC                = "finalSOC"

	FieldName                = "name"
	FieldCurrentSessionID    = "currentSessionId"
	FieldAssignedBatteryType = "assignedBatteryType"
)

// EventKind tells which part of a port subtree changed.
type EventKind string

const (
	EventPort    EventKind = "port"
	EventSession EventKind = "session"
	EventLog     EventKind = "log"
)

// Event is a change notification for one port's subtree. Consumers reload the
// relevant snapshot; events carry no payload beyond addressing.
type Event struct {
	PortID    string    `json:"portId"`
	SessionID string    `json:"sessionId,omitempty"`
	Kind      EventKind `json:"kind"`
	At        int64     `json:"at"`
}

// Store is the durable document store addressed by port, session, and field.
// Updates are partial (only the provided fields change) and every write emits
// a change notification on the owning port's watch channel.
type Store interface {
	// Port returns the port record, ErrNotFound when absent.
	Port(ctx context.Context, portID string) (*models.Port, error)
	// Ports lists all known port records.
	Ports(ctx context.Context) ([]*models.Port, error)
	// UpdatePort applies a partial field update to the port record.
	UpdatePort(ctx context.Context, portID string, fields map[string]any) error

	// Session returns the session record including its parsed log set,
	// ErrNotFound when absent.
	Session(ctx context.Context, portID, sessionID string) (*models.Session, error)
	// UpdateSession applies a partial field update to the session record.
	UpdateSession(ctx context.Context, portID, sessionID string, fields map[string]any) error
	// AppendLog stores one telemetry sample keyed by its timestamp. Logs are
	// append-only; historical samples are never revised.
	AppendLog(ctx context.Context, portID, sessionID string, sample models.LogSample) error

	// Capacity backup table: one last-known rated capacity per port, kept for
	// low-latency external readers.
	SetCapacityBackup(ctx context.Context, portID string, capacity float64) error
	ClearCapacityBackup(ctx context.Context, portID string) error
	CapacityBackup(ctx context.Context, portID string) (float64, bool, error)
	CapacityBackups(ctx context.Context) (map[string]float64, error)

	// Watch returns an ordered stream of change events for one port. The
	// channel closes when the context is cancelled.
	Watch(ctx context.Context, portID string) (<-chan Event, error)
}
