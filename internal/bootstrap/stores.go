package bootstrap

import (
	"context"
	"fmt"
	"io"

	"basket_swap/internal/catalog"
	"basket_swap/internal/core"
	"basket_swap/internal/engine"
	"basket_swap/internal/engine/durable"
	"basket_swap/internal/engine/simple"
	"basket_swap/internal/trading/orchestrator"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
)

// LoadCatalog returns the basket store together with the baskets it was seeded from. A SQLite
// catalog is seeded only while empty, so edits made in the database survive restarts.
// Tokens declared in a catalog file are added to reg.
func LoadCatalog(ctx context.Context, cfg *Config, reg *catalog.Registry, logger core.ILogger) (catalog.Store, []catalog.Basket, io.Closer, error) {
	baskets := catalog.Defaults(reg)
	if cfg.Catalog.File != "" {
		loaded, err := catalog.LoadFile(cfg.Catalog.File, reg)
		if err != nil {
			return nil, nil, nil, err
		}
		baskets = loaded
		logger.Info("Loaded basket catalog", "file", cfg.Catalog.File, "baskets", len(baskets))
	}

	if cfg.Catalog.SQLitePath == "" {
		return catalog.NewCatalog(baskets), baskets, nil, nil
	}

	store, err := catalog.NewSQLiteStore(cfg.Catalog.SQLitePath)
	if err != nil {
		return nil, nil, nil, err
	}
	n, err := store.Count(ctx)
	if err != nil {
		_ = store.Close()
		return nil, nil, nil, err
	}
	if n == 0 {
		if err := store.Replace(ctx, baskets); err != nil {
			_ = store.Close()
			return nil, nil, nil, fmt.Errorf("failed to seed catalog: %w", err)
		}
		logger.Info("Seeded SQLite catalog", "path", cfg.Catalog.SQLitePath, "baskets", len(baskets))
	} else {
		// Mock quotes are derived from what the store actually serves
		if baskets, err = store.List(ctx); err != nil {
			_ = store.Close()
			return nil, nil, nil, err
		}
	}
	return store, baskets, store, nil
}

// NewEngine builds the purchase engine selected by cfg.App.EngineType
func NewEngine(cfg *Config, orch *orchestrator.Orchestrator, logger core.ILogger) (engine.Engine, []io.Closer, error) {
	var closers []io.Closer

	var store core.IRunStore = simple.NewMemoryStore()
	if cfg.App.RunStorePath != "" {
		sqlStore, err := simple.NewSQLiteStore(cfg.App.RunStorePath)
		if err != nil {
			return nil, nil, err
		}
		store = sqlStore
		closers = append(closers, sqlStore)
	}

	switch cfg.App.EngineType {
	case "dbos":
		dbosCtx, err := dbos.NewDBOSContext(context.Background(), dbos.Config{
			AppName:     cfg.Telemetry.ServiceName,
			DatabaseURL: cfg.App.DatabaseURL.Reveal(),
		})
		if err != nil {
			closeAll(closers, logger)
			return nil, nil, fmt.Errorf("failed to create DBOS context: %w", err)
		}
		logger.Info("Using DBOS durable engine")
		return durable.NewDBOSEngine(dbosCtx, orch, store, logger), closers, nil
	default:
		logger.Info("Using simple engine", "run_store", cfg.App.RunStorePath)
		return simple.NewSimpleEngine(orch, store, logger), closers, nil
	}
}

func closeAll(closers []io.Closer, logger core.ILogger) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			logger.Warn("Close failed", "error", err)
		}
	}
}
