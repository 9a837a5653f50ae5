package app

import (
	"context"
	"database/sql"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"battmon/internal/advisor"
	"battmon/internal/archive"
	"battmon/internal/config"
	httpserver "battmon/internal/http"
	"battmon/internal/http/handlers"
	"battmon/internal/ingest"
	"battmon/internal/mirror"
	"battmon/internal/monitor"
	"battmon/internal/service"
	"battmon/internal/store"
	libdb "battmon/libs/db"
	libredis "battmon/libs/redis"
)

// App wires battery monitor dependencies.
type App struct {
	server      *httpserver.Server
	manager     *monitor.Manager
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// New constructs the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	redisClient, err := libredis.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	var sqlDB *sql.DB
	var archiver monitor.Archiver
	if strings.TrimSpace(cfg.Database.DSN) != "" {
		sqlDB, err = libdb.NewPostgresDB(cfg.Database.DSN)
		if err != nil {
			redisClient.Close()
			return nil, err
		}
		archiver = archive.NewRepository(sqlDB)
	} else {
		logger.Info("session archive disabled, no database dsn configured")
	}

	st := store.NewRedis(redisClient, logger)
	mir := mirror.New(st, logger)
	persister := monitor.NewThrottledPersister(st, cfg.PersistMinInterval(), logger)

	monitorCfg := monitor.Config{
		StaleTimeout:       cfg.StaleTimeout(),
		MinSessionDuration: cfg.MinSessionDuration(),
		CheckInterval:      cfg.CheckInterval(),
		AttemptGap:         cfg.AttemptGap(),
		FlushGap:           cfg.FlushGap(),
	}
	manager := monitor.NewManager(st, persister, mir, archiver, monitorCfg, cfg.Monitor.Ports, logger)

	var advisorClient *advisor.Client
	if strings.TrimSpace(cfg.Advisor.BaseURL) != "" {
		advisorClient = advisor.NewClient(cfg.Advisor.BaseURL, advisor.NewDefaultHTTPClient(cfg.AdvisorTimeout()))
	}

	portsService := service.NewPortsService(st, mir, advisorClient, logger)

	routes := httpserver.Routes{
		Health:         handlers.NewHealthHandler(),
		Ports:          handlers.NewPortsHandler(portsService),
		Port:           handlers.NewPortHandler(portsService),
		Session:        handlers.NewSessionHandler(portsService),
		SetCapacity:    handlers.NewSetCapacityHandler(portsService),
		SetBatteryType: handlers.NewSetBatteryTypeHandler(portsService),
		CapacityBackup: handlers.NewCapacityBackupHandler(portsService),
		Advice:         handlers.NewAdviceHandler(portsService),
		Ingest:         ingest.NewServer(st, logger),
	}

	router := httpserver.NewRouter(routes)
	server := httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	return &App{
		server:      server,
		manager:     manager,
		db:          sqlDB,
		redisClient: redisClient,
		logger:      logger,
	}, nil
}

// Run starts the HTTP server and the session monitors. It returns when either
// fails or ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- a.server.Run(runCtx) }()
	go func() { errCh <- a.manager.Run(runCtx) }()

	err := <-errCh
	cancel()
	<-errCh
	return err
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
