package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"battmon/internal/mirror"
	"battmon/internal/models"
	"battmon/internal/store"
)

func newTestService(t *testing.T) (*PortsService, *store.Memory, *mirror.Mirror) {
	t.Helper()
	st := store.NewMemory()
	mir := mirror.New(st, zap.NewNop())
	return NewPortsService(st, mir, nil, zap.NewNop()), st, mir
}

func seedPort(t *testing.T, st store.Store, portID string, fields map[string]any) {
	t.Helper()
	require.NoError(t, st.UpdatePort(context.Background(), portID, fields))
}

func seedSession(t *testing.T, st store.Store, portID, sessionID string, fields map[string]any) {
	t.Helper()
	require.NoError(t, st.UpdateSession(context.Background(), portID, sessionID, fields))
}

func TestSetRatedCapacityRequiresDischargingSession(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	seedPort(t, st, "port_1", map[string]any{store.FieldCurrentSessionID: "s1"})
	seedSession(t, st, "port_1", "s1", map[string]any{
		store.FieldStatus: string(models.StatusCharging),
		store.FieldType:   string(models.TypeCharging),
	})

	err := svc.SetRatedCapacity(ctx, "port_1", 2.2)
	assert.ErrorIs(t, err, ErrNotDischarging)

	// Rejected before any mutation.
	session, readErr := st.Session(ctx, "port_1", "s1")
	require.NoError(t, readErr)
	assert.Zero(t, session.RatedCapacity)
}

func TestSetRatedCapacityNoActiveSession(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	seedPort(t, st, "port_1", map[string]any{store.FieldName: "Port 1"})

	err := svc.SetRatedCapacity(ctx, "port_1", 2.2)
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestSetRatedCapacityValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	assert.ErrorIs(t, svc.SetRatedCapacity(ctx, "port_1", 0), ErrInvalidCapacity)
	assert.ErrorIs(t, svc.SetRatedCapacity(ctx, "port_1", -1), ErrInvalidCapacity)
}

func TestSetRatedCapacityWritesAndMirrors(t *testing.T) {
	ctx := context.Background()
	svc, st, mir := newTestService(t)

	seedPort(t, st, "port_1", map[string]any{store.FieldCurrentSessionID: "s1"})
	seedSession(t, st, "port_1", "s1", map[string]any{
		store.FieldStatus: string(models.StatusDischarging),
		store.FieldType:   string(models.TypeDischarging),
	})

	require.NoError(t, svc.SetRatedCapacity(ctx, "port_1", 2.2))

	session, err := st.Session(ctx, "port_1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 2.2, session.RatedCapacity)

	capacity, ok, err := mir.Get(ctx, "port_1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2.2, capacity)
}

func TestSetBatteryTypeChemistryLock(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	seedPort(t, st, "port_4", map[string]any{
		store.FieldCurrentSessionID:    "s1",
		store.FieldAssignedBatteryType: "Lead Acid",
	})
	seedSession(t, st, "port_4", "s1", map[string]any{
		store.FieldStatus: string(models.StatusDischarging),
		store.FieldType:   string(models.TypeDischarging),
	})

	err := svc.SetBatteryType(ctx, "port_4", "LiPo 3S")
	assert.ErrorIs(t, err, ErrChemistryLocked)

	// Same chemistry family passes the lock.
	require.NoError(t, svc.SetBatteryType(ctx, "port_4", "Sealed Lead-Acid"))

	session, err := st.Session(ctx, "port_4", "s1")
	require.NoError(t, err)
	assert.Equal(t, "Sealed Lead-Acid", session.BatteryType)
}

func TestSetBatteryTypeUnlockedPort(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	seedPort(t, st, "port_1", map[string]any{store.FieldCurrentSessionID: "s1"})
	seedSession(t, st, "port_1", "s1", map[string]any{
		store.FieldStatus: string(models.StatusCharging),
		store.FieldType:   string(models.TypeCharging),
	})

	require.NoError(t, svc.SetBatteryType(ctx, "port_1", "NiMH"))
}

func TestWriteBoundaryRejectsFinalizedSession(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	seedPort(t, st, "port_1", map[string]any{store.FieldCurrentSessionID: "s1"})
	seedSession(t, st, "port_1", "s1", map[string]any{
		store.FieldStatus:  string(models.StatusCompleted),
		store.FieldType:    string(models.TypeDischarging),
		store.FieldEndTime: int64(1000),
	})

	assert.ErrorIs(t, svc.SetRatedCapacity(ctx, "port_1", 2.2), ErrSessionImmutable)
	assert.ErrorIs(t, svc.SetBatteryType(ctx, "port_1", "LiPo"), ErrSessionImmutable)
}

func TestSessionViewComputesMetrics(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	seedPort(t, st, "port_1", map[string]any{store.FieldRatedCapacity: 4.0})
	seedSession(t, st, "port_1", "s1", map[string]any{
		store.FieldStatus:      string(models.StatusDischarging),
		store.FieldType:        string(models.TypeDischarging),
		store.FieldBatteryType: "LiPo",
	})
	require.NoError(t, st.AppendLog(ctx, "port_1", "s1", models.LogSample{Timestamp: 0, Voltage: 4.2, Current: -2, Cycle: "discharging"}))
	require.NoError(t, st.AppendLog(ctx, "port_1", "s1", models.LogSample{Timestamp: 3600_000, Voltage: 3.8, Current: -2, Cycle: "discharging"}))

	view, err := svc.Session(ctx, "port_1", "s1")
	require.NoError(t, err)
	// Port-level rated capacity is inherited when the session has none.
	assert.InDelta(t, 2.0, view.Metrics.DischargedCapacity, 1e-9)
	assert.InDelta(t, 50.0, view.Metrics.SOH, 1e-9)
}

func TestAdviceDisabled(t *testing.T) {
	svc, st, _ := newTestService(t)
	seedPort(t, st, "port_1", map[string]any{store.FieldCurrentSessionID: "s1"})
	seedSession(t, st, "port_1", "s1", map[string]any{
		store.FieldStatus: string(models.StatusDischarging),
		store.FieldType:   string(models.TypeDischarging),
	})

	_, err := svc.Advice(context.Background(), "port_1")
	assert.ErrorIs(t, err, ErrAdvisorDisabled)
}
