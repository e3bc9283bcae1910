package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/simaogato/dealflow-backend/internal/adapter/repository/postgres"
	"github.com/simaogato/dealflow-backend/internal/adapter/repository/sqlite"
	"github.com/simaogato/dealflow-backend/internal/adapter/repository/sqlstore"
	"github.com/simaogato/dealflow-backend/internal/config"
	"github.com/simaogato/dealflow-backend/internal/lock"
	"github.com/simaogato/dealflow-backend/internal/metrics"
	"github.com/simaogato/dealflow-backend/internal/usecase/recalc"
	"github.com/simaogato/dealflow-backend/internal/usecase/summary"
	"github.com/simaogato/dealflow-backend/pkg/logging"
)

// app holds everything a command needs, built once from config
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        *sqlstore.Store
	redis        *redis.Client
	registry     *prometheus.Registry
	orchestrator *recalc.Orchestrator
	summary      *summary.Service
}

func bootstrap(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logging.SetupWithLevel(logging.ParseLevel(cfg.Log.Level))
	logger := slog.Default()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("store ready", "driver", store.Dialect())

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var locker lock.Locker
	client := lock.ConnectRedis(ctx, cfg.Redis.Addr)
	if client != nil {
		locker = lock.NewRedisLocker(client, cfg.Redis.LockTTL)
	} else {
		locker = lock.NewLocalLocker()
	}

	orchestrator := recalc.NewOrchestrator(store, nil, locker, metrics.NewRecompute(registry), logger)

	return &app{
		cfg:          cfg,
		logger:       logger,
		store:        store,
		redis:        client,
		registry:     registry,
		orchestrator: orchestrator,
		summary:      summary.NewService(store),
	}, nil
}

// openStore connects to the configured database and applies the schema
func openStore(ctx context.Context, cfg *config.Config) (*sqlstore.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		db, err := postgres.NewDB(cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return postgres.NewStore(db), nil
	default:
		store, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return store, nil
	}
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis client", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store", "error", err)
	}
}
