package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/1qh/nexvex/pkg/audit"
	"github.com/1qh/nexvex/pkg/cascade"
	"github.com/1qh/nexvex/pkg/config"
	"github.com/1qh/nexvex/pkg/crud"
	"github.com/1qh/nexvex/pkg/hooks"
	"github.com/1qh/nexvex/pkg/observability"
	"github.com/1qh/nexvex/pkg/orgs"
	"github.com/1qh/nexvex/pkg/ratelimit"
	"github.com/1qh/nexvex/pkg/storage"
	"github.com/1qh/nexvex/pkg/storage/memory"
	"github.com/1qh/nexvex/pkg/storage/postgres"
)

// Engine holds the wired engine components
type Engine struct {
	Store   storage.Store
	DB      *sql.DB       // nil for the memory store
	Redis   *redis.Client // nil without a Redis URL
	Limiter ratelimit.Limiter
	Audit   audit.Logger
	Factory *crud.Factory
	Cascade *cascade.Engine
	Orgs    *orgs.Manager

	// AuditSearch is set when events are stored in the database
	AuditSearch audit.Searcher

	closers []func() error
}

// Tables returns the table definitions named by the configuration. Without
// a tables file the engine serves organizations only.
func Tables(cfg *config.Config) ([]config.Table, error) {
	if cfg.Engine.TablesFile == "" {
		return nil, nil
	}
	return config.LoadTables(cfg.Engine.TablesFile)
}

// New wires the store, limiter, audit sinks, hooks, table handlers, cascade
// engine and organization manager from cfg. On error every component opened
// so far is closed.
func New(ctx context.Context, cfg *config.Config, tables []config.Table, logger *observability.Logger, metrics *observability.Metrics) (_ *Engine, err error) {
	if logger == nil {
		logger = observability.Nop()
	}
	e := &Engine{}
	defer func() {
		if err != nil {
			_ = e.Close()
		}
	}()

	if err = e.openStore(ctx, cfg, logger); err != nil {
		return nil, err
	}
	if err = e.openLimiter(cfg, logger); err != nil {
		return nil, err
	}
	if err = e.openAudit(ctx, cfg, logger); err != nil {
		return nil, err
	}

	pipeline, err := hooks.FromNames(cfg.Engine.Hooks,
		hooks.Builtins(e.Audit, cfg.Engine.SlowOperation, logger),
		hooks.WithLogger(logger), hooks.WithMetrics(metrics))
	if err != nil {
		return nil, fmt.Errorf("failed to build hook pipeline: %w", err)
	}

	e.Factory = crud.NewFactory(e.Store,
		crud.WithLimiter(e.Limiter),
		crud.WithHooks(pipeline),
		crud.WithMetrics(metrics),
		crud.WithLogger(logger),
		crud.WithMaxBulkItems(cfg.Engine.MaxBulkItems),
	)
	for _, t := range tables {
		if _, err = e.Factory.Build(t.Name, t.Options); err != nil {
			return nil, fmt.Errorf("failed to build table %s: %w", t.Name, err)
		}
	}
	if err = e.Factory.Validate(); err != nil {
		return nil, fmt.Errorf("invalid table definitions: %w", err)
	}

	e.Cascade, err = cascade.NewEngine(e.Store, e.Factory.CascadeTargets(),
		cascade.WithBatchSize(cfg.Engine.CascadeBatchSize),
		cascade.WithLogger(logger),
		cascade.WithMetrics(metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build cascade engine: %w", err)
	}

	e.Orgs = orgs.NewManager(e.Store, e.Cascade,
		orgs.WithAuditLogger(e.Audit),
		orgs.WithLogger(logger),
		orgs.WithMetrics(metrics),
		orgs.WithInviteTTL(cfg.Engine.InviteTTL),
		orgs.WithCacheConfig(orgs.CacheConfig{
			MaxEntries: cfg.Engine.PublicCacheSize,
			TTL:        cfg.Engine.PublicCacheTTL,
		}),
	)

	logger.WithFields(map[string]interface{}{
		"storage": cfg.Storage.Type,
		"tables":  len(tables),
		"hooks":   pipeline.Names(),
	}).Info("Engine initialized")
	return e, nil
}

func (e *Engine) openStore(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	switch cfg.Storage.Type {
	case config.StorageMemory:
		logger.Warn("Using in-memory storage; state is lost on restart")
		e.Store = memory.NewStore()
	case config.StoragePostgres:
		db, err := postgres.Open(ctx, cfg.Storage.Connection())
		if err != nil {
			return err
		}
		e.DB = db
		if cfg.Storage.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				_ = db.Close()
				e.DB = nil
				return err
			}
			logger.Info("Database schema applied")
		}
		e.Store = postgres.NewStore(db)
	default:
		return fmt.Errorf("unsupported storage type %q", cfg.Storage.Type)
	}
	e.closers = append(e.closers, e.Store.Close)
	return nil
}

func (e *Engine) openLimiter(cfg *config.Config, logger *observability.Logger) error {
	if !cfg.Redis.Enabled() {
		e.Limiter = ratelimit.NewMemoryLimiter()
		return nil
	}
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("failed to parse redis url: %w", err)
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	e.Redis = redis.NewClient(opts)
	e.closers = append(e.closers, e.Redis.Close)
	e.Limiter = ratelimit.NewRedisLimiter(e.Redis,
		ratelimit.WithPrefix(cfg.Redis.KeyPrefix),
		ratelimit.WithFailOpen(cfg.Redis.FailOpen),
		ratelimit.WithLogger(logger),
	)
	return nil
}

func (e *Engine) openAudit(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	sinks := []audit.Logger{audit.NewLogLogger(logger)}
	if cfg.Audit.Directory != "" {
		fileCfg := audit.DefaultFileLoggerConfig()
		fileCfg.BasePath = cfg.Audit.Directory
		fileCfg.Logger = logger
		if cfg.Audit.MaxSizeMB > 0 {
			fileCfg.MaxSize = int64(cfg.Audit.MaxSizeMB) << 20
		}
		if cfg.Audit.MaxFiles > 0 {
			fileCfg.MaxFiles = cfg.Audit.MaxFiles
		}
		sink, err := audit.NewFileLogger(fileCfg)
		if err != nil {
			return err
		}
		sinks = append(sinks, sink)
	}
	if cfg.Audit.Database {
		sink, err := e.openDBAudit(ctx)
		if err != nil {
			_ = audit.NewMultiLogger(sinks...).Close()
			return err
		}
		e.AuditSearch = sink
		sinks = append(sinks, sink)
	}

	multi := audit.NewMultiLogger(sinks...)
	multi.SetAsync(cfg.Audit.Async)
	multi.SetLogger(logger)
	e.Audit = multi
	e.closers = append(e.closers, e.Audit.Close)
	return nil
}

func (e *Engine) openDBAudit(ctx context.Context) (*audit.DBLogger, error) {
	if e.DB == nil {
		return nil, errors.New("database audit sink requires postgres storage")
	}
	return audit.NewDBLogger(ctx, e.DB)
}

// Ping checks the store. It backs the readiness probe.
func (e *Engine) Ping(ctx context.Context) error {
	return e.Store.Ping(ctx)
}

// Close releases the components in reverse opening order
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}
