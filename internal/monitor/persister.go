package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"battmon/internal/metrics"
	"battmon/internal/models"
	"battmon/internal/store"
)

type persistKey struct {
	portID    string
	sessionID string
}

// ThrottledPersister rate-limits write-through of computed real-time metrics
// per (port, session) key. Calls inside the minimum interval are dropped
// outright; the next telemetry arrival retries naturally, so the store is
// never more than one interval stale while samples keep coming.
type ThrottledPersister struct {
	store       store.Store
	minInterval time.Duration
	logger      *zap.Logger
	now         func() time.Time

	mu        sync.Mutex
	lastWrite map[persistKey]time.Time
}

// NewThrottledPersister returns a persister with the given minimum interval
// between writes per key.
func NewThrottledPersister(st store.Store, minInterval time.Duration, logger *zap.Logger) *ThrottledPersister {
	return &ThrottledPersister{
		store:       st,
		minInterval: minInterval,
		logger:      logger,
		now:         time.Now,
		lastWrite:   make(map[persistKey]time.Time),
	}
}

// Schedule computes metrics from the log snapshot and writes the real-time
// fields, unless the key was written within the minimum interval, in which
// case the call is dropped without side effects. Reports whether a write
// happened.
func (p *ThrottledPersister) Schedule(ctx context.Context, portID, sessionID string, logs map[int64]models.LogSample, batteryType string, ratedCapacity float64) (bool, error) {
	key := persistKey{portID: portID, sessionID: sessionID}

	p.mu.Lock()
	if last, ok := p.lastWrite[key]; ok && p.now().Sub(last) < p.minInterval {
		p.mu.Unlock()
		return false, nil
	}
	p.mu.Unlock()

	computed := metrics.Compute(logs, batteryType, ratedCapacity)
	fields := map[string]any{
		store.FieldRealTimeDischargedCapacity: computed.DischargedCapacity,
		store.FieldRealTimeSOC:                computed.SOC,
		store.FieldRealTimeSOH:                computed.SOH,
		store.FieldRealTimeRemainingCapacity:  computed.RemainingCapacity,
		store.FieldLastUpdated:                p.now().UnixMilli(),
	}
	if err := p.store.UpdateSession(ctx, portID, sessionID, fields); err != nil {
		return false, err
	}

	p.mu.Lock()
	p.lastWrite[key] = p.now()
	p.mu.Unlock()

	p.logger.Debug("real-time metrics persisted",
		zap.String("port_id", portID),
		zap.String("session_id", sessionID),
		zap.Float64("discharged_capacity", computed.DischargedCapacity),
		zap.Float64("soc", computed.SOC))
	return true, nil
}

// Release frees per-key throttle state. Must be called when a session ends or
// its owning subscription is torn down to bound memory.
func (p *ThrottledPersister) Release(portID, sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.lastWrite, persistKey{portID: portID, sessionID: sessionID})
}
