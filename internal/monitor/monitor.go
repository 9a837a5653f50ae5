package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"battmon/internal/metrics"
	"battmon/internal/mirror"
	"battmon/internal/models"
	"battmon/internal/store"
)

// Config holds monitor timings. The stale timeout is the single source of
// truth for inactivity detection; it is configuration, never a constant in
// code paths.
type Config struct {
	// StaleTimeout is the maximum telemetry silence before an active session
	// is auto-closed.
	StaleTimeout time.Duration
	// MinSessionDuration guards against closing sessions that start with a
	// long gap before the first sample.
	MinSessionDuration time.Duration
	// CheckInterval drives periodic staleness evaluation; a stale session
	// emits no change notifications of its own.
	CheckInterval time.Duration
	// AttemptGap is the debounce floor between persist attempts.
	AttemptGap time.Duration
	// FlushGap is the debounce floor since the last successful persist.
	FlushGap time.Duration
}

func (c Config) withDefaults() Config {
	if c.StaleTimeout <= 0 {
		c.StaleTimeout = 15 * time.Minute
	}
	if c.MinSessionDuration <= 0 {
		c.MinSessionDuration = 10 * time.Minute
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 30 * time.Second
	}
	if c.AttemptGap <= 0 {
		c.AttemptGap = 2 * time.Second
	}
	if c.FlushGap <= 0 {
		c.FlushGap = 10 * time.Second
	}
	return c
}

// Archiver persists completed sessions outside the live store.
type Archiver interface {
	ArchiveSession(ctx context.Context, portID string, session *models.Session) error
}

// Monitor watches one port: it attaches to the current session, drives metric
// persistence on new sample batches, detects staleness, and finalizes. All
// session state below the constructor dependencies is owned by the single
// Run goroutine; notifications for one port are never handled concurrently.
type Monitor struct {
	portID    string
	store     store.Store
	persister *ThrottledPersister
	mirror    *mirror.Mirror
	archiver  Archiver
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time

	sched *taskScheduler
	kicks chan struct{}

	sessionID      string
	lastLogCount   int
	lastRated      float64
	lastAttempt    time.Time
	lastPersist    time.Time
	persistPending bool
	closing        bool
}

// NewMonitor builds a monitor for one port. archiver may be nil.
func NewMonitor(portID string, st store.Store, persister *ThrottledPersister, mir *mirror.Mirror, archiver Archiver, cfg Config, logger *zap.Logger) *Monitor {
	return &Monitor{
		portID:    portID,
		store:     st,
		persister: persister,
		mirror:    mir,
		archiver:  archiver,
		cfg:       cfg.withDefaults(),
		logger:    logger.With(zap.String("port_id", portID)),
		now:       time.Now,
		sched:     newTaskScheduler(),
		kicks:     make(chan struct{}, 1),
	}
}

// Run consumes the port's change stream until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	events, err := m.store.Watch(ctx, m.portID)
	if err != nil {
		return err
	}
	defer m.sched.CancelAll()
	defer m.release()

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	// Pick up a session that was already active before we subscribed.
	m.handleChange(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-events:
			if !ok {
				return nil
			}
			m.handleChange(ctx)
		case <-m.kicks:
			m.handleChange(ctx)
		case <-ticker.C:
			m.handleChange(ctx)
		}
	}
}

// handleChange processes one snapshot of the port subtree.
func (m *Monitor) handleChange(ctx context.Context) {
	port, err := m.store.Port(ctx, m.portID)
	if err == store.ErrNotFound {
		return
	}
	if err != nil {
		m.logger.Warn("failed to read port", zap.Error(err))
		return
	}

	if port.CurrentSessionID == "" {
		if m.sessionID != "" {
			m.release()
			m.resetSession()
		}
		return
	}

	session, err := m.store.Session(ctx, m.portID, port.CurrentSessionID)
	if err == store.ErrNotFound {
		// currentSessionId without a session object does not activate.
		return
	}
	if err != nil {
		m.logger.Warn("failed to read session", zap.Error(err))
		return
	}

	if m.sessionID != session.ID {
		m.release()
		m.resetSession()
		m.sessionID = session.ID
		m.logger.Info("session attached", zap.String("session_id", session.ID))
	}

	// External completion: someone else finalized; clean up and go idle.
	if session.EndTime != 0 || session.Status.Terminal() {
		m.logger.Info("session completed externally", zap.String("session_id", session.ID))
		if err := m.mirror.Clear(ctx, m.portID); err != nil {
			m.logger.Warn("failed to clear capacity backup", zap.Error(err))
		}
		if err := m.store.UpdatePort(ctx, m.portID, map[string]any{store.FieldCurrentSessionID: ""}); err != nil {
			m.logger.Warn("failed to clear current session", zap.Error(err))
		}
		m.release()
		m.resetSession()
		return
	}

	// One-time auto-fill of the port's chemistry assignment.
	if port.AssignedBatteryType != "" && session.BatteryType == "" {
		if err := m.store.UpdateSession(ctx, m.portID, session.ID, map[string]any{
			store.FieldBatteryType: port.AssignedBatteryType,
		}); err != nil {
			m.logger.Warn("failed to auto-fill battery type", zap.Error(err))
		} else {
			session.BatteryType = port.AssignedBatteryType
		}
	}

	rated := session.EffectiveRatedCapacity(port)
	if rated > 0 && rated != m.lastRated {
		if err := m.mirror.Set(ctx, m.portID, rated); err != nil {
			m.logger.Warn("failed to write capacity backup", zap.Error(err))
		} else {
			m.lastRated = rated
		}
	}

	count := len(session.Logs)
	if count > m.lastLogCount {
		if count > 1 {
			m.persistPending = true
		}
		m.lastLogCount = count
	}
	if session.Type == models.TypeDischarging && session.BatteryType != "" && rated > 0 {
		m.maybePersist(ctx, session, rated)
	}

	m.checkStale(ctx, session, rated)
}

// maybePersist applies the caller-side debounce: a persist attempt requires
// both the attempt gap and the flush gap to have elapsed; otherwise a single
// re-armed timer defers to the later of the two remaining waits.
func (m *Monitor) maybePersist(ctx context.Context, session *models.Session, rated float64) {
	if !m.persistPending {
		return
	}
	now := m.now()
	waitAttempt := m.cfg.AttemptGap - now.Sub(m.lastAttempt)
	waitFlush := m.cfg.FlushGap - now.Sub(m.lastPersist)
	if waitAttempt > 0 || waitFlush > 0 {
		delay := waitAttempt
		if waitFlush > delay {
			delay = waitFlush
		}
		m.sched.Schedule(m.portID, delay, m.kick)
		return
	}

	m.lastAttempt = now
	m.persistPending = false
	wrote, err := m.persister.Schedule(ctx, m.portID, session.ID, session.Logs, session.BatteryType, rated)
	if err != nil {
		// Retried on the next notification or tick.
		m.persistPending = true
		m.logger.Warn("failed to persist real-time metrics", zap.Error(err))
		return
	}
	if wrote {
		m.lastPersist = now
	}
}

func (m *Monitor) kick() {
	select {
	case m.kicks <- struct{}{}:
	default:
	}
}

// checkStale closes the session when it has both run long enough and gone
// silent long enough. The dual condition avoids false positives on sessions
// that start with a long gap before the first sample.
func (m *Monitor) checkStale(ctx context.Context, session *models.Session, rated float64) {
	if session.Status != models.StatusCharging && session.Status != models.StatusDischarging {
		return
	}
	nowMs := m.now().UnixMilli()
	sessionDuration := nowMs - session.StartTime
	timeSinceLastLog := nowMs - session.LastLogTime()
	if sessionDuration <= m.cfg.MinSessionDuration.Milliseconds() {
		return
	}
	if timeSinceLastLog <= m.cfg.StaleTimeout.Milliseconds() {
		return
	}
	m.finalize(ctx, session, rated)
}

// finalize writes the terminal state for a stale session. Idempotent: the
// closing flag stops re-entry from notifications racing the close, and is
// always reset so a future session can be auto-closed again. Individual step
// failures are logged and do not block the remaining steps.
func (m *Monitor) finalize(ctx context.Context, session *models.Session, rated float64) {
	if m.closing {
		return
	}
	m.closing = true
	defer func() { m.closing = false }()

	nowMs := m.now().UnixMilli()
	fields := map[string]any{
		store.FieldStatus:  string(models.StatusCompleted),
		store.FieldEndTime: nowMs,
	}

	qualified := session.Type == models.TypeDischarging &&
		session.BatteryType != "" &&
		rated > 0 &&
		len(session.Logs) >= 2
	if qualified {
		computed := metrics.Compute(session.Logs, session.BatteryType, rated)
		if valid := metrics.ValidSamples(session.Logs); len(valid) > 0 {
			last := valid[len(valid)-1]
			fields[store.FieldFinalVoltage] = float64(last.Voltage)
			fields[store.FieldFinalCurrent] = float64(last.Current)
		}
		fields[store.FieldFinalDischargedCapacity] = computed.DischargedCapacity
		fields[store.FieldFinalMeasuredCapacity] = computed.MeasuredCapacity
		fields[store.FieldFinalSOH] = computed.SOH
		fields[store.FieldFinalSOC] = computed.SOC
		fields[store.FieldNote] = "auto-closed after inactivity; final metrics recorded"
	} else {
		fields[store.FieldNote] = "auto-closed after inactivity; final metrics unavailable"
	}

	if err := m.store.UpdateSession(ctx, m.portID, session.ID, fields); err != nil {
		m.logger.Error("failed to write final session fields", zap.String("session_id", session.ID), zap.Error(err))
	}
	if err := m.mirror.Clear(ctx, m.portID); err != nil {
		m.logger.Error("failed to clear capacity backup", zap.Error(err))
	}
	if err := m.store.UpdatePort(ctx, m.portID, map[string]any{store.FieldCurrentSessionID: ""}); err != nil {
		m.logger.Error("failed to clear current session", zap.Error(err))
	}
	m.release()

	if m.archiver != nil {
		archived := *session
		archived.EndTime = nowMs
		archived.Status = models.StatusCompleted
		archived.RatedCapacity = rated
		if qualified {
			applyFinalFields(&archived, fields)
		}
		archived.Note, _ = fields[store.FieldNote].(string)
		if err := m.archiver.ArchiveSession(ctx, m.portID, &archived); err != nil {
			m.logger.Error("failed to archive session", zap.String("session_id", session.ID), zap.Error(err))
		}
	}

	m.logger.Info("session auto-closed after inactivity",
		zap.String("session_id", session.ID),
		zap.Bool("final_metrics", qualified))
	m.resetSession()
}

func applyFinalFields(session *models.Session, fields map[string]any) {
	session.FinalVoltage, _ = fields[store.FieldFinalVoltage].(float64)
	session.FinalCurrent, _ = fields[store.FieldFinalCurrent].(float64)
	session.FinalDischargedCapacity, _ = fields[store.FieldFinalDischargedCapacity].(float64)
	session.FinalMeasuredCapacity, _ = fields[store.FieldFinalMeasuredCapacity].(float64)
	session.FinalSOH, _ = fields[store.FieldFinalSOH].(float64)
	session.FinalSOC, _ = fields[store.FieldFinalSOC].(float64)
}

// release frees throttle state and pending debounce work for the current
// session.
func (m *Monitor) release() {
	if m.sessionID != "" {
		m.persister.Release(m.portID, m.sessionID)
	}
	m.sched.Cancel(m.portID)
}

func (m *Monitor) resetSession() {
	m.sessionID = ""
	m.lastLogCount = 0
	m.lastRated = 0
	m.lastAttempt = time.Time{}
	m.lastPersist = time.Time{}
	m.persistPending = false
}
