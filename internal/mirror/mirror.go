package mirror

import (
	"context"

	"go.uber.org/zap"

	"battmon/internal/store"
)

// Mirror maintains the external-facing capacity backup table: the last-known
// rated capacity of the active session per port, kept for low-latency reads by
// embedded devices. Entries are overwritten per session, not per-session
// history; a stale entry after a missed clear is acceptable by design of the
// table ("last known", not an audit log).
type Mirror struct {
	store  store.Store
	logger *zap.Logger
}

// New returns a mirror over the given store.
func New(st store.Store, logger *zap.Logger) *Mirror {
	return &Mirror{store: st, logger: logger}
}

// Set writes the port's capacity entry.
func (m *Mirror) Set(ctx context.Context, portID string, capacity float64) error {
	if err := m.store.SetCapacityBackup(ctx, portID, capacity); err != nil {
		return err
	}
	m.logger.Debug("capacity backup updated", zap.String("port_id", portID), zap.Float64("rated_capacity", capacity))
	return nil
}

// Clear marks the port inactive by removing its entry.
func (m *Mirror) Clear(ctx context.Context, portID string) error {
	return m.store.ClearCapacityBackup(ctx, portID)
}

// Get returns the port's entry, false when absent.
func (m *Mirror) Get(ctx context.Context, portID string) (float64, bool, error) {
	return m.store.CapacityBackup(ctx, portID)
}

// All returns every port's entry.
func (m *Mirror) All(ctx context.Context) (map[string]float64, error) {
	return m.store.CapacityBackups(ctx)
}
