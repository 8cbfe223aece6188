package main

import (
	"fmt"

	"github.com/otcheredev/ris-modality-workflow/internal/cache"
	"github.com/otcheredev/ris-modality-workflow/internal/config"
	"github.com/otcheredev/ris-modality-workflow/internal/database"
	"github.com/otcheredev/ris-modality-workflow/internal/dicomfs"
	"github.com/otcheredev/ris-modality-workflow/internal/gateway"
	"github.com/otcheredev/ris-modality-workflow/internal/metrics"
	"github.com/otcheredev/ris-modality-workflow/internal/repository"
	"github.com/otcheredev/ris-modality-workflow/internal/services"
	"github.com/otcheredev/ris-modality-workflow/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// app holds the wired components and what must be closed on exit
type app struct {
	cfg     *config.Config
	store   *repository.Store
	manager *services.LifecycleManager
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("Failed to close resource")
		}
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openStore connects the configured record store. Postgres schemas are migrated here
// only when migrate is set.
func openStore(cfg *config.Config, migrate bool) (*repository.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		db, err := database.Connect(database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
			LogLevel: cfg.Database.LogLevel,
		})
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := database.AutoMigrate(db); err != nil {
				return nil, err
			}
		}
		return repository.NewGormStore(db), nil
	case "sqlite":
		return repository.NewSQLiteStore(cfg.SQLite.Path)
	case "memory":
		log.Warn().Msg("Using the in-memory record store; nothing survives a restart")
		return repository.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// newApp wires the lifecycle manager and its collaborators
func newApp(cfg *config.Config, reg prometheus.Registerer) (*app, error) {
	a := &app{cfg: cfg}

	store, err := openStore(cfg, cfg.Store.Driver == "postgres")
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)
	log.Info().Str("driver", store.Driver()).Msg("Record store ready")

	var redisClient *redis.Client
	if cfg.Lock.Driver == "redis" || (cfg.Cache.Enabled && cfg.Cache.Type == "redis") {
		redisClient, err = cache.NewRedisClient(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, redisClient.Close)
		log.Info().Str("addr", cfg.Redis.Addr()).Msg("Redis connected")
	}

	m := metrics.New(reg)

	var locker session.Locker
	if cfg.Lock.Driver == "redis" {
		locker = session.NewRedisLocker(redisClient, cfg.Lock.Key, cfg.Lock.LeaseTTL)
	}
	coord := session.NewCoordinator(store, locker, session.WithWaitObserver(m.ObserveLockWait))

	var worklistCache *cache.WorklistCache
	if cfg.Cache.Enabled {
		var backend cache.Cache
		if cfg.Cache.Type == "redis" {
			backend = cache.NewRedisCache(redisClient, "modality-workflow:")
		} else {
			mem := cache.NewMemoryCache()
			a.closers = append(a.closers, mem.Close)
			backend = mem
		}
		worklistCache = cache.NewWorklistCache(backend, cfg.Cache.WorklistTTL)
		log.Info().Str("type", cfg.Cache.Type).Dur("ttl", cfg.Cache.WorklistTTL).Msg("Worklist cache enabled")
	}

	engine, err := gateway.NewScriptEngine(gateway.EngineConfig{
		Command:  cfg.Engine.Command,
		Args:     cfg.Engine.Args,
		CertPath: cfg.Engine.CertPath,
		Timeout:  cfg.Engine.Timeout,
	}, m)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.manager = services.NewLifecycleManager(coord, engine,
		services.WithHL7Sender(gateway.NewHL7Client(cfg.HL7.DialTimeout, cfg.HL7.ReadTimeout)),
		services.WithVerifier(gateway.NewEchoVerifier(cfg.Engine.EchoTimeout)),
		services.WithScanner(dicomfs.NewScanner()),
		services.WithWorklistCache(worklistCache),
		services.WithMetrics(m),
	)
	return a, nil
}
