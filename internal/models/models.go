package models

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	StatusCharging    SessionStatus = "charging"
	StatusDischarging SessionStatus = "discharging"
	StatusCompleted   SessionStatus = "completed"
	StatusError       SessionStatus = "error"
)

// Terminal reports whether the session can no longer receive writes.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// SessionType is the declared operating mode, set by the operator or device.
// It is independent of SessionStatus; capacity accounting applies only to
// discharging sessions.
type SessionType string

const (
	TypeCharging    SessionType = "charging"
	TypeDischarging SessionType = "discharging"
	TypeResting     SessionType = "resting"
)

// LogSample is a single telemetry reading. Timestamp is epoch milliseconds and
// doubles as the sample key within a session; it is populated from the log key
// on read and never stored in the value.
type LogSample struct {
	Timestamp int64  `json:"timestamp,omitempty"`
	Voltage   Float  `json:"voltage"`
	Current   Float  `json:"current"`
	Cycle     string `json:"cycle"`
}

// Session represents one connect-to-disconnect battery episode.
type Session struct {
	ID            string              `json:"id"`
	StartTime     int64               `json:"startTime"`
	EndTime       int64               `json:"endTime,omitempty"`
	Status        SessionStatus       `json:"status"`
	Type          SessionType         `json:"type"`
	BatteryType   string              `json:"batteryType,omitempty"`
	RatedCapacity float64             `json:"ratedCapacity,omitempty"`
	Logs          map[int64]LogSample `json:"logs,omitempty"`

	// Real-time fields, written only by the throttled persister.
	RealTimeDischargedCapacity float64 `json:"realTimeDischargedCapacity"`
	RealTimeSOC                float64 `json:"realTimeSOC"`
	RealTimeSOH                float64 `json:"realTimeSOH"`
	RealTimeRemainingCapacity  float64 `json:"realTimeRemainingCapacity"`
	LastUpdated                int64   `json:"lastUpdated,omitempty"`

	// Final fields, written exactly once at finalization.
	FinalVoltage            float64 `json:"finalVoltage,omitempty"`
	FinalCurrent            float64 `json:"finalCurrent,omitempty"`
	FinalDischargedCapacity float64 `json:"finalDischargedCapacity,omitempty"`
	FinalMeasuredCapacity   float64 `json:"finalMeasuredCapacity,omitempty"`
	FinalSOH                float64 `json:"finalSOH,omitempty"`
	FinalSOC                float64 `json:"finalSOC,omitempty"`
	Note                    string  `json:"note,omitempty"`
}

// LastLogTime returns the newest log timestamp, or startTime when no logs exist.
func (s *Session) LastLogTime() int64 {
	last := s.StartTime
	for ts := range s.Logs {
		if ts > last {
			last = ts
		}
	}
	return last
}

// EffectiveRatedCapacity resolves the session capacity with the port-level
// value as fallback.
func (s *Session) EffectiveRatedCapacity(port *Port) float64 {
	if s.RatedCapacity > 0 {
		return s.RatedCapacity
	}
	if port != nil {
		return port.RatedCapacity
	}
	return 0
}

// Port owns at most one active session plus historical sessions by id.
type Port struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name,omitempty"`
	CurrentSessionID    string  `json:"currentSessionId,omitempty"`
	RatedCapacity       float64 `json:"ratedCapacity,omitempty"`
	AssignedBatteryType string  `json:"assignedBatteryType,omitempty"`
}

// Metrics is the derived health metric set. The zero value is the defined
// "insufficient data" result.
type Metrics struct {
	DischargedCapacity float64 `json:"dischargedCapacity"`
	SOC                float64 `json:"soc"`
	RemainingCapacity  float64 `json:"remainingCapacity"`
	MeasuredCapacity   float64 `json:"measuredCapacity"`
	SOH                float64 `json:"soh"`
}
