package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"battmon/internal/advisor"
	"battmon/internal/metrics"
	"battmon/internal/mirror"
	"battmon/internal/models"
	"battmon/internal/store"
)

// Configuration errors, rejected at the write boundary before any store
// mutation. Distinct from store I/O failures.
var (
	ErrNoActiveSession  = errors.New("port has no active session")
	ErrNotDischarging   = errors.New("capacity input allowed only during a discharging session")
	ErrInvalidCapacity  = errors.New("rated capacity must be a positive number")
	ErrChemistryLocked  = errors.New("battery type incompatible with port chemistry assignment")
	ErrAdvisorDisabled  = errors.New("advisor service is not configured")
	ErrSessionImmutable = errors.New("session already finalized")
)

// PortsService is the operator-facing write boundary over the store: it
// enforces capacity-input gating and the port chemistry lock, and assembles
// read views with live computed metrics.
type PortsService struct {
	store   store.Store
	mirror  *mirror.Mirror
	advisor *advisor.Client
	logger  *zap.Logger
}

// NewPortsService returns the service. advisorClient may be nil when the
// collaborator is not configured.
func NewPortsService(st store.Store, mir *mirror.Mirror, advisorClient *advisor.Client, logger *zap.Logger) *PortsService {
	return &PortsService{
		store:   st,
		mirror:  mir,
		advisor: advisorClient,
		logger:  logger,
	}
}

// Ports lists all known ports.
func (s *PortsService) Ports(ctx context.Context) ([]*models.Port, error) {
	return s.store.Ports(ctx)
}

// Port returns one port.
func (s *PortsService) Port(ctx context.Context, portID string) (*models.Port, error) {
	return s.store.Port(ctx, portID)
}

// SessionView is a session snapshot with metrics recomputed from the current
// log set, independent of the persisted real-time fields.
type SessionView struct {
	Session *models.Session `json:"session"`
	Metrics models.Metrics  `json:"metrics"`
}

// Session returns a session snapshot with live computed metrics.
func (s *PortsService) Session(ctx context.Context, portID, sessionID string) (*SessionView, error) {
	session, err := s.store.Session(ctx, portID, sessionID)
	if err != nil {
		return nil, err
	}
	port, err := s.store.Port(ctx, portID)
	if err != nil {
		return nil, err
	}
	return &SessionView{
		Session: session,
		Metrics: metrics.Compute(session.Logs, session.BatteryType, session.EffectiveRatedCapacity(port)),
	}, nil
}

// SetRatedCapacity writes the rated capacity onto the port's current session
// and mirrors it to the capacity backup table. Capacity input is only valid
// while a discharging session is active.
func (s *PortsService) SetRatedCapacity(ctx context.Context, portID string, capacity float64) error {
	if capacity <= 0 {
		return ErrInvalidCapacity
	}
	_, session, err := s.activeSession(ctx, portID)
	if err != nil {
		return err
	}
	if session.Type != models.TypeDischarging {
		return ErrNotDischarging
	}

	if err := s.store.UpdateSession(ctx, portID, session.ID, map[string]any{
		store.FieldRatedCapacity: capacity,
	}); err != nil {
		return err
	}
	if err := s.mirror.Set(ctx, portID, capacity); err != nil {
		s.logger.Warn("failed to mirror rated capacity", zap.String("port_id", portID), zap.Error(err))
	}
	s.logger.Info("rated capacity set",
		zap.String("port_id", portID),
		zap.String("session_id", session.ID),
		zap.Float64("rated_capacity", capacity))
	return nil
}

// SetBatteryType writes the battery type onto the port's current session,
// honoring the port's fixed chemistry assignment.
func (s *PortsService) SetBatteryType(ctx context.Context, portID, batteryType string) error {
	batteryType = strings.TrimSpace(batteryType)
	if batteryType == "" {
		return fmt.Errorf("battery type must not be empty")
	}
	port, session, err := s.activeSession(ctx, portID)
	if err != nil {
		return err
	}
	if port.AssignedBatteryType != "" && metrics.Classify(batteryType) != metrics.Classify(port.AssignedBatteryType) {
		return ErrChemistryLocked
	}

	return s.store.UpdateSession(ctx, portID, session.ID, map[string]any{
		store.FieldBatteryType: batteryType,
	})
}

// Advice serializes the current session's history and forwards it to the
// parameter advisor. The response is returned verbatim.
func (s *PortsService) Advice(ctx context.Context, portID string) (*advisor.Suggestion, error) {
	if s.advisor == nil {
		return nil, ErrAdvisorDisabled
	}
	port, session, err := s.activeSession(ctx, portID)
	if err != nil {
		return nil, err
	}

	name := port.Name
	if name == "" {
		name = port.ID
	}
	return s.advisor.Suggest(ctx, advisor.Request{
		PortName:       name,
		BatteryType:    session.BatteryType,
		SessionType:    session.Type,
		HistoricalData: advisor.FormatHistory(session.Logs),
	})
}

// CapacityBackups returns the full external capacity table.
func (s *PortsService) CapacityBackups(ctx context.Context) (map[string]float64, error) {
	return s.mirror.All(ctx)
}

func (s *PortsService) activeSession(ctx context.Context, portID string) (*models.Port, *models.Session, error) {
	port, err := s.store.Port(ctx, portID)
	if err != nil {
		return nil, nil, err
	}
	if port.CurrentSessionID == "" {
		return nil, nil, ErrNoActiveSession
	}
	session, err := s.store.Session(ctx, portID, port.CurrentSessionID)
	if err == store.ErrNotFound {
		return nil, nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, nil, err
	}
	if session.EndTime != 0 || session.Status.Terminal() {
		return nil, nil, ErrSessionImmutable
	}
	return port, session, nil
}
