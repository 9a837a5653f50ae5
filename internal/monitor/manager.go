package monitor

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"battmon/internal/mirror"
	"battmon/internal/store"
)

// Manager runs one Monitor goroutine per port. Ports are independent; no
// ordering is guaranteed across them.
type Manager struct {
	store     store.Store
	persister *ThrottledPersister
	mirror    *mirror.Mirror
	archiver  Archiver
	cfg       Config
	ports     []string
	logger    *zap.Logger
}

// NewManager builds the manager. An empty ports list discovers ports from the
// store at startup. archiver may be nil.
func NewManager(st store.Store, persister *ThrottledPersister, mir *mirror.Mirror, archiver Archiver, cfg Config, ports []string, logger *zap.Logger) *Manager {
	return &Manager{
		store:     st,
		persister: persister,
		mirror:    mir,
		archiver:  archiver,
		cfg:       cfg,
		ports:     ports,
		logger:    logger,
	}
}

// Run starts per-port monitors and blocks until the context is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	ports := m.ports
	if len(ports) == 0 {
		discovered, err := m.store.Ports(ctx)
		if err != nil {
			return err
		}
		for _, port := range discovered {
			ports = append(ports, port.ID)
		}
	}
	if len(ports) == 0 {
		m.logger.Warn("no ports configured or discovered; monitor idle")
		<-ctx.Done()
		return ctx.Err()
	}

	var wg sync.WaitGroup
	for _, portID := range ports {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			mon := NewMonitor(id, m.store, m.persister, m.mirror, m.archiver, m.cfg, m.logger)
			if err := mon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Error("port monitor stopped", zap.String("port_id", id), zap.Error(err))
			}
		}(portID)
	}
	wg.Wait()
	return ctx.Err()
}
