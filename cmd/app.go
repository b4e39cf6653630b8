package cmd

import (
	"fmt"
	"time"

	"library-sync/core/config"
	"library-sync/core/database"
	"library-sync/core/logger"
	"library-sync/core/metrics"
	"library-sync/core/retry"
	"library-sync/core/storage"
	"library-sync/feature/backup"
	"library-sync/feature/integrity"
	"library-sync/feature/library"
	"library-sync/feature/library/batch"
	"library-sync/feature/library/metadata"
	"library-sync/feature/library/store"
	"library-sync/feature/replication"
	"library-sync/feature/replication/remote"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app wires the services shared by the server and the CLI commands.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	db       *gorm.DB
	store    *store.Store
	operator *batch.Operator

	// remote and controller are nil when replication is disabled or unreachable.
	remote     *remote.SQLBackend
	controller *replication.Controller

	// client is nil when the storage client could not be created.
	client storage.Client
}

// newApp loads configuration and opens the local store. The remote backend
// is only connected when withRemote is set and replication is enabled.
func newApp(withRemote bool) (*app, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logg, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logg, metrics: metrics.New()}

	if a.db, err = database.Connect(cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}

	policy := retry.New(cfg.Retry)
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		logg.Debug("Retrying store write", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
	}
	a.store = store.New(a.db, logg, store.WithRetry(policy), store.WithMetrics(a.metrics))
	if err := a.store.Migrate(); err != nil {
		return nil, err
	}
	a.operator = batch.New(a.store, logg, cfg.Batch, batch.WithMetrics(a.metrics))

	if client, err := storage.NewClient(cfg.Storage); err != nil {
		logg.Warn("Storage client unavailable, snapshots disabled", zap.Error(err))
	} else {
		a.client = client
	}

	if withRemote && cfg.Remote.Enabled {
		a.connectRemote()
	}
	return a, nil
}

func (a *app) connectRemote() {
	db, err := database.Connect(a.cfg.Remote.Database())
	if err != nil {
		a.logger.Warn("Remote backend unreachable, running local-only", zap.Error(err))
		return
	}
	backend := remote.New(db, a.logger,
		remote.WithPollInterval(a.cfg.Remote.PollInterval),
		remote.WithBatchSize(a.cfg.Remote.BatchSize))
	if err := backend.Migrate(); err != nil {
		a.logger.Warn("Failed to migrate remote backend, running local-only", zap.Error(err))
		return
	}
	a.remote = backend
	a.controller = replication.New(a.store, backend, a.logger, a.cfg.Sync, replication.WithMetrics(a.metrics))
	a.operator.SetFlusher(a.controller)
	a.logger.Info("Connected to remote backend", zap.String("host", a.cfg.Remote.Host))
}

func (a *app) metadataProvider() metadata.Provider {
	if !a.cfg.Metadata.Enabled() {
		return nil
	}
	client := metadata.NewClient(a.cfg.Metadata, retry.New(a.cfg.Retry), a.logger)
	return metadata.NewCached(client, a.cfg.Metadata.CacheTTL)
}

func (a *app) libraryService() *library.Service {
	return library.NewService(a.store, a.operator, a.metadataProvider(), a.logger)
}

func (a *app) backupService() *backup.Service {
	return backup.NewService(a.store, a.operator, a.client, a.cfg.Storage, a.cfg.Backup, a.logger)
}

func (a *app) integrityService() *integrity.Service {
	var r integrity.Remote
	if a.remote != nil {
		r = a.remote
	}
	return integrity.NewService(a.db, a.client, a.cfg.Storage, a.cfg.Backup.Prefix, r, a.logger)
}

func (a *app) close() {
	if a.controller != nil {
		a.controller.Close()
	}
	for _, db := range []*gorm.DB{a.db, a.remoteDB()} {
		if db == nil {
			continue
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = a.logger.Sync()
}

func (a *app) remoteDB() *gorm.DB {
	if a.remote == nil {
		return nil
	}
	return a.remote.DB()
}
