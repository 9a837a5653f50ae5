package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"battmon/internal/models"
	"battmon/internal/store"
)

func dischargeLogs() map[int64]models.LogSample {
	return map[int64]models.LogSample{
		0:        {Voltage: 4.2, Current: -2.0, Cycle: "discharging"},
		3600_000: {Voltage: 3.8, Current: -2.0, Cycle: "discharging"},
	}
}

func TestPersisterThrottlesWithinInterval(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	now := time.Unix(1_700_000_000, 0)

	p := NewThrottledPersister(st, 10*time.Second, zap.NewNop())
	p.now = func() time.Time { return now }

	wrote, err := p.Schedule(ctx, "port_1", "s1", dischargeLogs(), "LiPo", 4.0)
	require.NoError(t, err)
	assert.True(t, wrote)

	session, err := st.Session(ctx, "port_1", "s1")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, session.RealTimeDischargedCapacity, 1e-9)
	assert.InDelta(t, 2.0, session.RealTimeRemainingCapacity, 1e-9)
	assert.InDelta(t, 50.0, session.RealTimeSOH, 1e-9)
	assert.Equal(t, now.UnixMilli(), session.LastUpdated)

	// Second call inside the interval is dropped with no write.
	now = now.Add(5 * time.Second)
	wrote, err = p.Schedule(ctx, "port_1", "s1", dischargeLogs(), "LiPo", 4.0)
	require.NoError(t, err)
	assert.False(t, wrote)

	session, err = st.Session(ctx, "port_1", "s1")
	require.NoError(t, err)
	assert.Equal(t, now.Add(-5*time.Second).UnixMilli(), session.LastUpdated)

	// Past the interval the write goes through again.
	now = now.Add(6 * time.Second)
	wrote, err = p.Schedule(ctx, "port_1", "s1", dischargeLogs(), "LiPo", 4.0)
	require.NoError(t, err)
	assert.True(t, wrote)
}

func TestPersisterKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	now := time.Unix(1_700_000_000, 0)

	p := NewThrottledPersister(st, 10*time.Second, zap.NewNop())
	p.now = func() time.Time { return now }

	wrote, err := p.Schedule(ctx, "port_1", "s1", dischargeLogs(), "LiPo", 4.0)
	require.NoError(t, err)
	assert.True(t, wrote)

	// Same instant, different session: its own throttle window.
	wrote, err = p.Schedule(ctx, "port_2", "s2", dischargeLogs(), "LiPo", 4.0)
	require.NoError(t, err)
	assert.True(t, wrote)
}

func TestPersisterReleaseResetsThrottle(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	now := time.Unix(1_700_000_000, 0)

	p := NewThrottledPersister(st, time.Minute, zap.NewNop())
	p.now = func() time.Time { return now }

	wrote, err := p.Schedule(ctx, "port_1", "s1", dischargeLogs(), "LiPo", 4.0)
	require.NoError(t, err)
	require.True(t, wrote)

	wrote, err = p.Schedule(ctx, "port_1", "s1", dischargeLogs(), "LiPo", 4.0)
	require.NoError(t, err)
	require.False(t, wrote)

	p.Release("port_1", "s1")

	wrote, err = p.Schedule(ctx, "port_1", "s1", dischargeLogs(), "LiPo", 4.0)
	require.NoError(t, err)
	assert.True(t, wrote)
}
